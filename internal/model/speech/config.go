package speech

import "time"

// TranscriberConfig AssemblyAI 语音识别配置
type TranscriberConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration // 上传、提交、轮询整体超时
}

// SynthesizerConfig Murf 语音合成配置
type SynthesizerConfig struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration // 单个分片 POST + 下载的超时
	SampleRate  int
	ChannelType string // STEREO 或 MONO
}
