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
	"time"

	"github.com/zhouzirui/voice-agent/backend/internal/model/speech"
)

const defaultAssemblyAIBaseURL = "https://api.assemblyai.com"

// AssemblyAIClient 通过 上传 -> 提交 -> 轮询 三步完成一次离线转写。
type AssemblyAIClient struct {
	config     speech.TranscriberConfig
	httpClient *http.Client
}

// NewAssemblyAIClient 创建 AssemblyAI 客户端，httpClient 为空时使用默认客户端。
func NewAssemblyAIClient(config speech.TranscriberConfig, httpClient *http.Client) *AssemblyAIClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultAssemblyAIBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AssemblyAIClient{config: config, httpClient: httpClient}
}

// Transcribe 返回音频的转写文本；文本为空时返回 ErrEmptyTranscript。
func (c *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return "", err
	}

	id, err := c.submit(ctx, uploadURL)
	if err != nil {
		return "", err
	}

	return c.poll(ctx, id)
}

func (c *AssemblyAIClient) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v2/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out speech.UploadResponse
	if err := c.do(req, "upload", &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("assemblyai upload: missing upload_url")
	}
	return out.UploadURL, nil
}

func (c *AssemblyAIClient) submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(speech.TranscriptRequest{AudioURL: audioURL})
	if err != nil {
		return "", fmt.Errorf("encode transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out speech.TranscriptResponse
	if err := c.do(req, "submit", &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("assemblyai submit: missing transcript id")
	}
	return out.ID, nil
}

func (c *AssemblyAIClient) poll(ctx context.Context, id string) (string, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v2/transcript/"+id, nil)
		if err != nil {
			return "", fmt.Errorf("build poll request: %w", err)
		}

		var out speech.TranscriptResponse
		if err := c.do(req, "poll", &out); err != nil {
			return "", err
		}

		switch out.Status {
		case speech.TranscriptCompleted:
			text := strings.TrimSpace(out.Text)
			if text == "" {
				return "", ErrEmptyTranscript
			}
			log.Printf("[stt] transcript %s completed, length=%d", id, len(text))
			return text, nil
		case speech.TranscriptError:
			return "", fmt.Errorf("assemblyai transcript %s failed: %s", id, out.Error)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("assemblyai transcript %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *AssemblyAIClient) do(req *http.Request, op string, out any) error {
	req.Header.Set("authorization", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assemblyai %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: "assemblyai", Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("assemblyai %s: decode response: %w", op, err)
	}
	return nil
}
