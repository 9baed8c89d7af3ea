package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig
	Speech      SpeechConfig
	AI          AIConfig
	Storage     StorageConfig
	Maintenance MaintenanceConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.AI.Provider = LLMProvider(strings.ToLower(strings.TrimSpace(string(cfg.AI.Provider))))
	switch cfg.AI.Provider {
	case "":
		cfg.AI.Provider = ProviderGemini
	case ProviderGemini, ProviderOpenAI, ProviderArk:
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER value: %q", cfg.AI.Provider)
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = BackendFile
	case BackendFile, BackendRedis:
	default:
		return nil, fmt.Errorf("invalid SESSION_BACKEND value: %q", cfg.Storage.Backend)
	}

	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port             string `env:"PORT" envDefault:"8000"`
	Addr             string
	StaticDir        string `env:"STATIC_DIR" envDefault:"static"`
	TemplatesDir     string `env:"TEMPLATES_DIR" envDefault:"templates"`
	UploadsDir       string `env:"UPLOADS_DIR" envDefault:"uploads"`
	FallbackAudioURL string `env:"FALLBACK_AUDIO_URL" envDefault:"/static/fallback.mp3"`
	FallbackMessage  string `env:"FALLBACK_MESSAGE" envDefault:"I'm having trouble connecting right now."`
	MaxUploadBytes   int64  `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// SpeechConfig 描述语音识别与合成服务配置
type SpeechConfig struct {
	AssemblyAIKey     string        `env:"ASSEMBLYAI_API_KEY"`
	AssemblyAIBaseURL string        `env:"ASSEMBLYAI_BASE_URL" envDefault:"https://api.assemblyai.com"`
	PollInterval      time.Duration `env:"ASSEMBLYAI_POLL_INTERVAL" envDefault:"1s"`
	STTTimeout        time.Duration `env:"STT_TIMEOUT" envDefault:"120s"`

	MurfKey          string        `env:"MURF_API_KEY"`
	MurfBaseURL      string        `env:"MURF_BASE_URL" envDefault:"https://api.murf.ai"`
	TTSTimeout       time.Duration `env:"TTS_TIMEOUT" envDefault:"60s"`
	TTSDefaultVoice  string        `env:"TTS_DEFAULT_VOICE" envDefault:"en-us-natalie"`
	EchoDefaultVoice string        `env:"ECHO_DEFAULT_VOICE" envDefault:"en-US-ken"`
	SampleRate       int           `env:"TTS_SAMPLE_RATE" envDefault:"24000"`
	ChannelType      string        `env:"TTS_CHANNEL_TYPE" envDefault:"STEREO"`
	ChunkLimit       int           `env:"TTS_CHUNK_LIMIT" envDefault:"3000"`
}

// Channels 返回与 ChannelType 对应的声道数。
func (c SpeechConfig) Channels() int {
	if strings.EqualFold(c.ChannelType, "MONO") {
		return 1
	}
	return 2
}

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderArk    LLMProvider = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider LLMProvider   `env:"LLM_PROVIDER" envDefault:"gemini"`
	APIKey   string        `env:"GEMINI_API_KEY"`
	BaseURL  string        `env:"LLM_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai"`
	Model    string        `env:"LLM_MODEL" envDefault:"gemini-2.5-flash"`
	Timeout  time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	Ark ArkConfig
}

// ArkConfig 描述火山方舟模型配置，仅在 LLM_PROVIDER=ark 时使用。
type ArkConfig struct {
	APIKey      string  `env:"ARK_API_KEY"`
	AccessKey   string  `env:"ARK_ACCESS_KEY"`
	SecretKey   string  `env:"ARK_SECRET_KEY"`
	Model       string  `env:"ARK_MODEL"`
	BaseURL     string  `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string  `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature float64 `env:"ARK_TEMPERATURE"`
	MaxTokens   int     `env:"ARK_MAX_TOKENS"`
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}
	if c.Temperature > 0 {
		temperature := float32(c.Temperature)
		cfg.Temperature = &temperature
	}
	if c.MaxTokens > 0 {
		maxTokens := c.MaxTokens
		cfg.MaxTokens = &maxTokens
	}

	return ark.NewChatModel(ctx, cfg)
}

// Configured 表示当前选择的大模型是否具备凭证。
func (c AIConfig) Configured() bool {
	if c.Provider == ProviderArk {
		return c.Ark.Enabled()
	}
	return c.APIKey != ""
}

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// StorageConfig 描述会话存储配置。
type StorageConfig struct {
	Backend         string `env:"SESSION_BACKEND" envDefault:"file"`
	ChatHistoryFile string `env:"CHAT_HISTORY_FILE" envDefault:"chat_history.json"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix  string `env:"REDIS_KEY_PREFIX" envDefault:"session:"`
}

// MaintenanceConfig 描述后台清理任务配置。
type MaintenanceConfig struct {
	UploadsRetention time.Duration `env:"UPLOADS_RETENTION" envDefault:"24h"`
	CleanupSchedule  string        `env:"CLEANUP_SCHEDULE" envDefault:"@hourly"`
}

// Provider 标识一个外部服务的凭证。
type Provider string

const (
	ProviderSTT Provider = "stt"
	ProviderLLM Provider = "llm"
	ProviderTTS Provider = "tts"
)

// ProvidersMissing 返回 required 中缺少凭证的服务。
func (c *Config) ProvidersMissing(required ...Provider) []Provider {
	var missing []Provider
	for _, p := range required {
		ok := false
		switch p {
		case ProviderSTT:
			ok = c.Speech.AssemblyAIKey != ""
		case ProviderTTS:
			ok = c.Speech.MurfKey != ""
		case ProviderLLM:
			ok = c.AI.Configured()
		}
		if !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
