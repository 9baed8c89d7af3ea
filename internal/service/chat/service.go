package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

var ErrSessionIDRequired = errors.New("session id is required")

// Service serializes work per session and fronts the configured Store.
type Service struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewService wraps store. Load must already have been called on it.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		locks: make(map[string]*sessionLock),
	}
}

// Lock acquires the lock for sessionID and returns its release function.
// Turns on different sessions proceed in parallel.
func (s *Service) Lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, sessionID)
			}
			s.mu.Unlock()
		})
	}
}

// AppendTurn records a turn for the session.
func (s *Service) AppendTurn(ctx context.Context, sessionID string, role chat.Role, content string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionIDRequired
	}
	return s.store.Append(ctx, sessionID, chat.NewTurn(role, content))
}

// History returns the turns for a session. Read failures are logged and
// yield an empty transcript.
func (s *Service) History(ctx context.Context, sessionID string) []chat.Turn {
	turns, err := s.store.Get(ctx, sessionID)
	if err != nil {
		log.Printf("[chat] load history session=%s err=%v", sessionID, err)
		return []chat.Turn{}
	}
	if turns == nil {
		return []chat.Turn{}
	}
	return turns
}

// DeleteHistory drops the whole transcript. Unknown ids return ErrSessionNotFound.
// It waits for any in-flight turn on the same session to finish.
func (s *Service) DeleteHistory(ctx context.Context, sessionID string) error {
	release := s.Lock(sessionID)
	defer release()
	return s.store.Delete(ctx, sessionID)
}
