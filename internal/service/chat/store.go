package chat

import (
	"context"
	"errors"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists session transcripts.
//
// Load reads the complete mapping once at startup. Append and Delete persist
// before returning. Get returns a copy and an empty slice for unknown ids.
type Store interface {
	Load(ctx context.Context) error
	Append(ctx context.Context, sessionID string, turn chat.Turn) error
	Get(ctx context.Context, sessionID string) ([]chat.Turn, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}
