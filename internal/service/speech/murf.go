package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/zhouzirui/voice-agent/backend/internal/model/speech"
)

const defaultMurfBaseURL = "https://api.murf.ai"

// MurfClient Murf 文本转语音客户端。每次合成都固定输出 MP3 和配置的采样率、声道。
type MurfClient struct {
	config     speech.SynthesizerConfig
	httpClient *http.Client
}

// NewMurfClient 创建 Murf 客户端，httpClient 为空时使用默认客户端。
func NewMurfClient(config speech.SynthesizerConfig, httpClient *http.Client) *MurfClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultMurfBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.SampleRate <= 0 {
		config.SampleRate = 24000
	}
	if config.ChannelType == "" {
		config.ChannelType = "STEREO"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MurfClient{config: config, httpClient: httpClient}
}

// RequestAudioURL 请求合成并返回 Murf 托管的音频地址。
func (c *MurfClient) RequestAudioURL(ctx context.Context, text, voiceID string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.requestAudioURL(ctx, text, voiceID)
}

// Synthesize 合成并下载音频字节。
func (c *MurfClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	audioURL, err := c.requestAudioURL(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: "murf", Op: "download", StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("murf download: read body: %w", err)
	}
	log.Printf("[tts] synthesized voice=%s chars=%d bytes=%d", voiceID, len([]rune(text)), len(data))
	return data, nil
}

// ListVoices 原样返回 Murf 的音色列表。
func (c *MurfClient) ListVoices(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/speech/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("build voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf voices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("murf voices: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: "murf", Op: "voices", StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("murf voices: response is not json")
	}
	return json.RawMessage(body), nil
}

func (c *MurfClient) requestAudioURL(ctx context.Context, text, voiceID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNothingToSpeak
	}

	payload, err := json.Marshal(speech.SynthesisRequest{
		Text:        text,
		VoiceID:     voiceID,
		Format:      "MP3",
		SampleRate:  c.config.SampleRate,
		ChannelType: c.config.ChannelType,
	})
	if err != nil {
		return "", fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/speech/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("murf generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Provider: "murf", Op: "generate", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out speech.SynthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("murf generate: decode response: %w", err)
	}

	location := out.Location()
	if location == "" {
		return "", ErrNoAudioURL
	}
	return location, nil
}

func (c *MurfClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(ctx, c.config.Timeout)
	}
	return context.WithCancel(ctx)
}
