package speech

// SynthesisRequest Murf generate 请求体
type SynthesisRequest struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voiceId"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sampleRate"`
	ChannelType string `json:"channelType"`
}

// TranscriptRequest AssemblyAI 转写任务请求体
type TranscriptRequest struct {
	AudioURL string `json:"audio_url"`
}
