package speech

// SynthesisResponse Murf generate 响应，音频地址可能出现在不同字段。
type SynthesisResponse struct {
	AudioFile string `json:"audioFile"`
	AudioURL  string `json:"audio_url"`
	URL       string `json:"url"`
}

// Location 按 audioFile、audio_url、url 的顺序返回第一个非空地址。
func (r SynthesisResponse) Location() string {
	switch {
	case r.AudioFile != "":
		return r.AudioFile
	case r.AudioURL != "":
		return r.AudioURL
	default:
		return r.URL
	}
}

// UploadResponse AssemblyAI 上传响应
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
}

// TranscriptStatus 转写任务状态
type TranscriptStatus string

const (
	TranscriptQueued     TranscriptStatus = "queued"
	TranscriptProcessing TranscriptStatus = "processing"
	TranscriptCompleted  TranscriptStatus = "completed"
	TranscriptError      TranscriptStatus = "error"
)

// TranscriptResponse AssemblyAI 转写任务响应
type TranscriptResponse struct {
	ID     string           `json:"id"`
	Status TranscriptStatus `json:"status"`
	Text   string           `json:"text"`
	Error  string           `json:"error,omitempty"`
}
