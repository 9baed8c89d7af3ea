package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	chatService "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/voice-agent/backend/internal/service/speech"
)

type fakeAgent struct {
	input speechsvc.ChatInput
	err   error
}

func (f *fakeAgent) Chat(_ context.Context, input speechsvc.ChatInput) (*speechsvc.ChatOutput, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &speechsvc.ChatOutput{
		Transcript:   "hi",
		ResponseText: "hello",
		AudioURL:     "/uploads/agent_response_s1_1.mp3",
		History:      []chat.Turn{chat.NewTurn(chat.RoleUser, "hi"), chat.NewTurn(chat.RoleAssistant, "hello")},
	}, nil
}

type fakeSessions struct {
	history   map[string][]chat.Turn
	deleteErr error
}

func (f *fakeSessions) History(_ context.Context, sessionID string) []chat.Turn {
	if turns, ok := f.history[sessionID]; ok {
		return turns
	}
	return []chat.Turn{}
}

func (f *fakeSessions) DeleteHistory(_ context.Context, sessionID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.history[sessionID]; !ok {
		return chatService.ErrSessionNotFound
	}
	delete(f.history, sessionID)
	return nil
}

func newTestRouter(agent Agent, sessions Sessions) http.Handler {
	h := New(agent, sessions, nil, nil, Options{
		FallbackAudioURL: "/static/fallback.mp3",
		FallbackMessage:  "fallback",
		DefaultVoice:     "en-US-ken",
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func chatRequest(t *testing.T, sessionID string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "clip.webm")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/agent/chat/"+sessionID, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandleChatPassesSessionAndVoice(t *testing.T) {
	agent := &fakeAgent{}
	r := newTestRouter(agent, &fakeSessions{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, chatRequest(t, "s1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if agent.input.SessionID != "s1" || agent.input.VoiceID != "en-US-ken" || string(agent.input.Audio) != "audio" {
		t.Fatalf("unexpected chat input %+v", agent.input)
	}

	var out speechsvc.ChatOutput
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ResponseText != "hello" || len(out.History) != 2 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestHandleChatFallbackReturnsStoredHistory(t *testing.T) {
	agent := &fakeAgent{err: &speechsvc.StageError{Stage: speechsvc.StageGenerate, Err: errors.New("down")}}
	sessions := &fakeSessions{history: map[string][]chat.Turn{
		"s1": {chat.NewTurn(chat.RoleUser, "earlier")},
	}}
	r := newTestRouter(agent, sessions)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, chatRequest(t, "s1"))

	var out speechsvc.ChatOutput
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AudioURL != "/static/fallback.mp3" || out.Transcript != "fallback" || out.ResponseText != "fallback" {
		t.Fatalf("unexpected fallback %+v", out)
	}
	if len(out.History) != 1 || out.History[0].Content != "earlier" {
		t.Fatalf("fallback history mismatch: %+v", out.History)
	}
}

func TestHandleDeleteHistory(t *testing.T) {
	sessions := &fakeSessions{history: map[string][]chat.Turn{"s1": {chat.NewTurn(chat.RoleUser, "x")}}}
	r := newTestRouter(&fakeAgent{}, sessions)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/agent/history/s1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/agent/history/s1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rr.Code)
	}

	sessions.deleteErr = errors.New("disk full")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/agent/history/s2", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", rr.Code)
	}
}
