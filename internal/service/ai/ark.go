package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ArkGenerator 使用 eino ChatModel（火山方舟）生成回复。
type ArkGenerator struct {
	chatModel model.ChatModel
	timeout   time.Duration
}

func NewArkGenerator(chatModel model.ChatModel, timeout time.Duration) *ArkGenerator {
	return &ArkGenerator{chatModel: chatModel, timeout: timeout}
}

func (g *ArkGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("AI generation failed: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyReply
	}

	return normalizeReply(resp.Content)
}
