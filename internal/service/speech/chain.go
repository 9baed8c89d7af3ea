package speech

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/zhouzirui/voice-agent/backend/internal/audio"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/service/ai"
	"github.com/zhouzirui/voice-agent/backend/internal/textchunk"
)

// Transcriber 语音转文本
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer 文本转语音，返回音频字节
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// SessionHistory 按会话加锁并读写对话记录
type SessionHistory interface {
	Lock(sessionID string) func()
	AppendTurn(ctx context.Context, sessionID string, role chat.Role, content string) error
	History(ctx context.Context, sessionID string) []chat.Turn
}

// ChainOptions 语音处理链的输出配置
type ChainOptions struct {
	UploadsDir   string
	PublicPrefix string // 生成文件对外暴露的 URL 前缀
	ChunkLimit   int
	Format       audio.Format
	Now          func() time.Time
}

// Chain 语音处理链，串联 ASR、大模型、分片 TTS 与音频拼接
type Chain struct {
	stt      Transcriber
	llm      ai.Generator
	tts      Synthesizer
	sessions SessionHistory
	metrics  *metrics.Metrics
	opts     ChainOptions
}

// NewChain 创建语音处理链。m 可以为 nil。
func NewChain(stt Transcriber, llm ai.Generator, tts Synthesizer, sessions SessionHistory, m *metrics.Metrics, opts ChainOptions) *Chain {
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/uploads/"
	}
	if !strings.HasSuffix(opts.PublicPrefix, "/") {
		opts.PublicPrefix += "/"
	}
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = textchunk.DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Chain{stt: stt, llm: llm, tts: tts, sessions: sessions, metrics: m, opts: opts}
}

// EchoInput 回声模式输入
type EchoInput struct {
	Audio    []byte
	Filename string
	VoiceID  string
}

// EchoOutput 回声模式输出
type EchoOutput struct {
	AudioURL   string `json:"audio_url"`
	Transcript string `json:"transcript"`
}

// QueryInput 单轮问答输入
type QueryInput struct {
	Audio   []byte
	VoiceID string
}

// QueryOutput 单轮问答输出
type QueryOutput struct {
	Transcript string `json:"transcript"`
	LLMText    string `json:"llm_text"`
	AudioURL   string `json:"audio_url"`
}

// ChatInput 会话模式输入
type ChatInput struct {
	SessionID string
	Audio     []byte
	VoiceID   string
}

// ChatOutput 会话模式输出
type ChatOutput struct {
	Transcript   string      `json:"transcript"`
	ResponseText string      `json:"response_text"`
	AudioURL     string      `json:"audio_url"`
	History      []chat.Turn `json:"history"`
}

// Transcribe 仅做语音识别
func (c *Chain) Transcribe(ctx context.Context, audioData []byte) (string, error) {
	text, err := c.transcribe(ctx, audioData)
	c.observeTurn("transcribe", err)
	return text, err
}

// Echo 识别后用指定音色复述
func (c *Chain) Echo(ctx context.Context, input EchoInput) (out *EchoOutput, err error) {
	defer func() { c.observeTurn("echo", err) }()

	transcript, err := c.transcribe(ctx, input.Audio)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("echo_%s.mp3", safeStem(strings.TrimSuffix(filepath.Base(input.Filename), filepath.Ext(input.Filename))))
	url, err := c.synthesizeToFile(ctx, requestID(ctx), transcript, input.VoiceID, name)
	if err != nil {
		return nil, err
	}

	return &EchoOutput{AudioURL: url, Transcript: transcript}, nil
}

// Query 无状态的单轮问答
func (c *Chain) Query(ctx context.Context, input QueryInput) (out *QueryOutput, err error) {
	defer func() { c.observeTurn("query", err) }()

	transcript, err := c.transcribe(ctx, input.Audio)
	if err != nil {
		return nil, err
	}

	reply, err := c.generate(ctx, transcript)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("llm_response_%d.mp3", c.opts.Now().Unix())
	url, err := c.synthesizeToFile(ctx, requestID(ctx), reply, input.VoiceID, name)
	if err != nil {
		return nil, err
	}

	return &QueryOutput{Transcript: transcript, LLMText: reply, AudioURL: url}, nil
}

// Chat 带会话历史的完整一轮对话，整个过程持有该会话的锁。
func (c *Chain) Chat(ctx context.Context, input ChatInput) (out *ChatOutput, err error) {
	defer func() { c.observeTurn("chat", err) }()

	release := c.sessions.Lock(input.SessionID)
	defer release()

	reqID := requestID(ctx)
	log.Printf("[chain] chat start session=%s request=%s", input.SessionID, reqID)

	transcript, err := c.transcribe(ctx, input.Audio)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.AppendTurn(ctx, input.SessionID, chat.RoleUser, transcript); err != nil {
		return nil, &StageError{Stage: StagePersist, Err: err}
	}

	prompt := ai.BuildPrompt(c.sessions.History(ctx, input.SessionID))
	reply, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.AppendTurn(ctx, input.SessionID, chat.RoleAssistant, reply); err != nil {
		return nil, &StageError{Stage: StagePersist, Err: err}
	}

	name := fmt.Sprintf("agent_response_%s_%d.mp3", safeStem(input.SessionID), c.opts.Now().Unix())
	url, err := c.synthesizeToFile(ctx, reqID, reply, input.VoiceID, name)
	if err != nil {
		return nil, err
	}

	return &ChatOutput{
		Transcript:   transcript,
		ResponseText: reply,
		AudioURL:     url,
		History:      c.sessions.History(ctx, input.SessionID),
	}, nil
}

func (c *Chain) transcribe(ctx context.Context, audioData []byte) (string, error) {
	start := time.Now()
	text, err := c.stt.Transcribe(ctx, audioData)
	c.metrics.ObserveStage(string(StageTranscribe), time.Since(start))
	if err != nil {
		return "", &StageError{Stage: StageTranscribe, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &StageError{Stage: StageTranscribe, Err: ErrEmptyTranscript}
	}
	return text, nil
}

func (c *Chain) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	reply, err := c.llm.Generate(ctx, prompt)
	c.metrics.ObserveStage(string(StageGenerate), time.Since(start))
	if err != nil {
		return "", &StageError{Stage: StageGenerate, Err: err}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &StageError{Stage: StageGenerate, Err: ai.ErrEmptyReply}
	}
	return reply, nil
}

// synthesizeToFile 分片合成、按序拼接并原子写入 uploads 目录，返回公开 URL。
func (c *Chain) synthesizeToFile(ctx context.Context, reqID, text, voiceID, name string) (string, error) {
	chunks := textchunk.Split(text, c.opts.ChunkLimit)
	if len(chunks) == 0 {
		return "", &StageError{Stage: StageSynthesize, Err: ErrNothingToSpeak}
	}

	concat := audio.NewConcatenator(c.opts.Format)
	for i, chunk := range chunks {
		start := time.Now()
		segment, err := c.tts.Synthesize(ctx, chunk, voiceID)
		c.metrics.ObserveStage(string(StageSynthesize), time.Since(start))
		if err != nil {
			return "", &StageError{Stage: StageSynthesize, Chunk: i + 1, Err: err}
		}
		if err := concat.Append(segment); err != nil {
			return "", &StageError{Stage: StageConcatenate, Chunk: i + 1, Err: err}
		}
		c.metrics.ObserveChunk()
	}

	path := filepath.Join(c.opts.UploadsDir, name)
	if err := concat.Export(path); err != nil {
		return "", &StageError{Stage: StageExport, Err: err}
	}

	log.Printf("[chain] request=%s wrote %s chunks=%d frames=%d duration=%s",
		reqID, name, len(chunks), concat.Frames(), concat.Duration().Round(time.Millisecond))
	return c.opts.PublicPrefix + name, nil
}

func (c *Chain) observeTurn(pipeline string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Printf("[chain] %s failed stage=%s: %v", pipeline, StageOf(err), err)
	}
	c.metrics.ObserveTurn(pipeline, outcome)
}

// requestID 优先取 chi RequestID 中间件写入的 ID，没有时生成一个。
func requestID(ctx context.Context) string {
	if id := chimiddleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// safeStem 只保留文件名安全字符。
func safeStem(stem string) string {
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, stem)
	stem = strings.Trim(stem, ".")
	if stem == "" {
		return "audio"
	}
	return stem
}
