package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

// ErrEmptyReply 表示模型调用成功但没有返回可用文本。
var ErrEmptyReply = errors.New("language model returned no text")

// Generator 把一段提示词转换为模型回复。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewGenerator 根据 LLM_PROVIDER 构建对应的实现。
func NewGenerator(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini, config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewArkGenerator(chatModel, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// BuildPrompt 将会话记录序列化为单个提示词，并以待续写的 Assistant 行结尾。
func BuildPrompt(turns []chat.Turn) string {
	var builder strings.Builder
	for _, turn := range turns {
		if turn.Role == chat.RoleUser {
			builder.WriteString("User: ")
		} else {
			builder.WriteString("Assistant: ")
		}
		builder.WriteString(turn.Content)
		builder.WriteByte('\n')
	}
	builder.WriteString("Assistant:")
	return builder.String()
}

func normalizeReply(content string) (string, error) {
	reply := strings.TrimSpace(content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
