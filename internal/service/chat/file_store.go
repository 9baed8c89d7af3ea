package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

// FileStore keeps every session in memory and rewrites a single JSON document
// after each mutation.
type FileStore struct {
	path string

	mu       sync.RWMutex
	sessions map[string][]chat.Turn
}

// NewFileStore returns an empty store backed by path. Call Load before use.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:     path,
		sessions: make(map[string][]chat.Turn),
	}
}

// Load implements Store. A missing file yields an empty mapping.
func (s *FileStore) Load(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.sessions = make(map[string][]chat.Turn)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history file: %w", err)
	}

	sessions := make(map[string][]chat.Turn)
	if len(data) > 0 {
		if err := sonic.Unmarshal(data, &sessions); err != nil {
			return fmt.Errorf("decode history file: %w", err)
		}
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}

// Append implements Store. The in-memory append is undone if the rewrite fails.
func (s *FileStore) Append(_ context.Context, sessionID string, turn chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.sessions[sessionID]
	s.sessions[sessionID] = append(previous[:len(previous):len(previous)], turn)

	if err := s.persistLocked(); err != nil {
		if existed {
			s.sessions[sessionID] = previous
		} else {
			delete(s.sessions, sessionID)
		}
		return err
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)

	if err := s.persistLocked(); err != nil {
		s.sessions[sessionID] = previous
		return err
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) persistLocked() error {
	data, err := sonic.ConfigStd.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure history dir: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
