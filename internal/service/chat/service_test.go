package chat_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	model "github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	chat "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
)

type failingStore struct {
	chat.Store
}

func (failingStore) Get(context.Context, string) ([]model.Turn, error) {
	return nil, errors.New("boom")
}

func TestServiceHistoryEmptyForUnknownSession(t *testing.T) {
	store := chat.NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	svc := chat.NewService(store)

	got := svc.History(context.Background(), "nobody")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", got)
	}
}

func TestServiceHistorySwallowsStoreErrors(t *testing.T) {
	svc := chat.NewService(failingStore{})

	got := svc.History(context.Background(), "s1")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty history on failure, got %#v", got)
	}
}

func TestServiceAppendTurnRequiresSessionID(t *testing.T) {
	svc := chat.NewService(chat.NewFileStore(filepath.Join(t.TempDir(), "h.json")))

	err := svc.AppendTurn(context.Background(), "  ", model.RoleUser, "hi")
	if !errors.Is(err, chat.ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired, got %v", err)
	}
}

func TestServiceLockSerializesSameSession(t *testing.T) {
	svc := chat.NewService(chat.NewFileStore(filepath.Join(t.TempDir(), "h.json")))

	release := svc.Lock("s1")

	acquired := make(chan struct{})
	go func() {
		unlock := svc.Lock("s1")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestServiceLockIndependentSessions(t *testing.T) {
	svc := chat.NewService(chat.NewFileStore(filepath.Join(t.TempDir(), "h.json")))

	release := svc.Lock("a")
	defer release()

	done := make(chan struct{})
	go func() {
		unlock := svc.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session blocked")
	}
}

func TestServiceConcurrentTurnsKeepPairsAdjacent(t *testing.T) {
	store := chat.NewFileStore(filepath.Join(t.TempDir(), "h.json"))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	svc := chat.NewService(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := svc.Lock("shared")
			defer release()
			if err := svc.AppendTurn(ctx, "shared", model.RoleUser, "q"); err != nil {
				t.Errorf("append user: %v", err)
				return
			}
			if err := svc.AppendTurn(ctx, "shared", model.RoleAssistant, "a"); err != nil {
				t.Errorf("append assistant: %v", err)
			}
		}()
	}
	wg.Wait()

	turns := svc.History(ctx, "shared")
	if len(turns) != 16 {
		t.Fatalf("expected 16 turns, got %d", len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != model.RoleUser || turns[i+1].Role != model.RoleAssistant {
			t.Fatalf("turns %d/%d interleaved: %s %s", i, i+1, turns[i].Role, turns[i+1].Role)
		}
	}
}

func TestServiceDeleteWaitsForInFlightTurn(t *testing.T) {
	store := chat.NewFileStore(filepath.Join(t.TempDir(), "h.json"))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	svc := chat.NewService(store)
	ctx := context.Background()

	release := svc.Lock("s1")
	if err := svc.AppendTurn(ctx, "s1", model.RoleUser, "question"); err != nil {
		t.Fatalf("append user: %v", err)
	}

	deleted := make(chan error, 1)
	go func() {
		deleted <- svc.DeleteHistory(ctx, "s1")
	}()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while the turn held the lock: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := svc.AppendTurn(ctx, "s1", model.RoleAssistant, "reply"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}
	release()

	select {
	case err := <-deleted:
		if err != nil {
			t.Fatalf("DeleteHistory err: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("delete never acquired the lock")
	}

	if got := svc.History(ctx, "s1"); len(got) != 0 {
		t.Fatalf("expected whole turn deleted, got %#v", got)
	}
}
