package speech

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTranscript = errors.New("transcription returned no text")
	ErrNoAudioURL      = errors.New("no audio url in synthesis response")
	ErrNothingToSpeak  = errors.New("no text to synthesize")
)

// Stage 标识流水线中失败的步骤。
type Stage string

const (
	StageTranscribe  Stage = "transcribe"
	StageGenerate    Stage = "generate"
	StageSynthesize  Stage = "synthesize"
	StageConcatenate Stage = "concatenate"
	StageExport      Stage = "export"
	StagePersist     Stage = "persist"
)

// StageError 包装某一步骤的错误；Chunk 从 1 开始，仅在分片相关步骤中设置。
type StageError struct {
	Stage Stage
	Chunk int
	Err   error
}

func (e *StageError) Error() string {
	if e.Chunk > 0 {
		return fmt.Sprintf("%s failed on chunk %d: %v", e.Stage, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf 返回错误链中第一个 StageError 的步骤，没有时返回空串。
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// StatusError 表示外部服务返回了非 2xx 状态码。
type StatusError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Provider, e.Op, e.StatusCode)
}
