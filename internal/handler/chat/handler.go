package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	chatService "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/voice-agent/backend/internal/service/speech"
	"github.com/zhouzirui/voice-agent/backend/pkg/utils"
)

// Agent 带会话历史的语音对话流程
type Agent interface {
	Chat(ctx context.Context, input speechsvc.ChatInput) (*speechsvc.ChatOutput, error)
}

// Sessions 会话历史的读取与删除
type Sessions interface {
	History(ctx context.Context, sessionID string) []chat.Turn
	DeleteHistory(ctx context.Context, sessionID string) error
}

// Credentials 报告缺失凭证的外部服务
type Credentials interface {
	ProvidersMissing(required ...config.Provider) []config.Provider
}

// Options 处理器的静态配置
type Options struct {
	FallbackAudioURL string
	FallbackMessage  string
	DefaultVoice     string
	MaxUploadBytes   int64
}

// Handler 会话对话的HTTP处理器
type Handler struct {
	agent    Agent
	sessions Sessions
	creds    Credentials
	metrics  *metrics.Metrics
	opts     Options
}

// New 创建会话处理器
func New(agent Agent, sessions Sessions, creds Credentials, m *metrics.Metrics, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Handler{agent: agent, sessions: sessions, creds: creds, metrics: m, opts: opts}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/agent", func(agent chi.Router) {
		agent.Post("/chat/{sessionID}", h.handleChat)
		agent.Get("/history/{sessionID}", h.handleGetHistory)
		agent.Delete("/history/{sessionID}", h.handleDeleteHistory)
	})
}

// handleChat 处理一轮语音对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.creds != nil {
		if missing := h.creds.ProvidersMissing(config.ProviderLLM, config.ProviderTTS, config.ProviderSTT); len(missing) > 0 {
			log.Printf("[chat] missing credentials: %v", missing)
			utils.RespondError(w, http.StatusInternalServerError, "One or more API keys not configured.")
			return
		}
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	utils.LimitBody(w, r, h.opts.MaxUploadBytes)
	audio, _, err := utils.ReadFormFile(r, "file", h.opts.MaxUploadBytes)
	defer utils.CleanupMultipart(r)
	if err != nil {
		utils.RespondError(w, utils.UploadErrorStatus(err), err.Error())
		return
	}

	voiceID := strings.TrimSpace(r.FormValue("voice_id"))
	if voiceID == "" {
		voiceID = h.opts.DefaultVoice
	}

	out, err := h.agent.Chat(r.Context(), speechsvc.ChatInput{
		SessionID: sessionID,
		Audio:     audio,
		VoiceID:   voiceID,
	})
	if err != nil {
		log.Printf("[chat] session=%s falling back stage=%s: %v", sessionID, speechsvc.StageOf(err), err)
		h.metrics.ObserveFallback("/agent/chat/{sessionID}")
		utils.RespondJSON(w, http.StatusOK, speechsvc.ChatOutput{
			Transcript:   h.opts.FallbackMessage,
			ResponseText: h.opts.FallbackMessage,
			AudioURL:     h.opts.FallbackAudioURL,
			History:      h.sessions.History(r.Context(), sessionID),
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, out)
}

// handleGetHistory 返回会话历史，未知会话返回空数组
func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"history": h.sessions.History(r.Context(), sessionID),
	})
}

// handleDeleteHistory 删除整段会话历史
func (h *Handler) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	err := h.sessions.DeleteHistory(r.Context(), sessionID)
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session ID not found")
	case err != nil:
		log.Printf("[chat] delete history session=%s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete chat history")
	default:
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Chat history deleted successfully."})
	}
}
