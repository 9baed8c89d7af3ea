package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	speechsvc "github.com/zhouzirui/voice-agent/backend/internal/service/speech"
	"github.com/zhouzirui/voice-agent/backend/pkg/utils"
)

const (
	msgAPIKeyMissing  = "API key not configured."
	msgAPIKeysMissing = "One or more API keys not configured."
)

// Pipeline 无会话的语音处理流程
type Pipeline interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Echo(ctx context.Context, input speechsvc.EchoInput) (*speechsvc.EchoOutput, error)
	Query(ctx context.Context, input speechsvc.QueryInput) (*speechsvc.QueryOutput, error)
}

// VoiceService 直接调用 TTS 服务的能力
type VoiceService interface {
	RequestAudioURL(ctx context.Context, text, voiceID string) (string, error)
	ListVoices(ctx context.Context) (json.RawMessage, error)
}

// Credentials 报告缺失凭证的外部服务
type Credentials interface {
	ProvidersMissing(required ...config.Provider) []config.Provider
}

// Options 处理器的静态配置
type Options struct {
	UploadsDir       string
	FallbackAudioURL string
	FallbackMessage  string
	TTSDefaultVoice  string
	EchoDefaultVoice string
	MaxUploadBytes   int64
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	pipeline Pipeline
	voices   VoiceService
	creds    Credentials
	metrics  *metrics.Metrics
	opts     Options
}

// New 创建语音处理器
func New(pipeline Pipeline, voices VoiceService, creds Credentials, m *metrics.Metrics, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Handler{pipeline: pipeline, voices: voices, creds: creds, metrics: m, opts: opts}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tts", h.handleTTS)
	r.Get("/voices", h.handleVoices)
	r.Post("/upload-audio/", h.handleUpload)
	r.Post("/transcribe/file", h.handleTranscribe)
	r.Post("/tts/echo", h.handleEcho)
	r.Post("/llm/query", h.handleQuery)
}

// handleTTS 文本转语音，直接返回 TTS 服务托管的音频地址
func (h *Handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if h.missing(config.ProviderTTS) {
		utils.RespondError(w, http.StatusInternalServerError, msgAPIKeyMissing)
		return
	}

	utils.LimitBody(w, r, h.opts.MaxUploadBytes)
	if err := utils.ParseForm(r, h.opts.MaxUploadBytes); err != nil {
		utils.RespondError(w, utils.UploadErrorStatus(err), "invalid form: "+err.Error())
		return
	}
	defer utils.CleanupMultipart(r)

	text := r.FormValue("text")
	if strings.TrimSpace(text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	voiceID := formValueOr(r, "voice_id", h.opts.TTSDefaultVoice)

	audioURL, err := h.voices.RequestAudioURL(r.Context(), text, voiceID)
	if err != nil {
		h.fallback(r, err)
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"audio_url": h.opts.FallbackAudioURL,
			"message":   h.opts.FallbackMessage,
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"audio_url": audioURL})
}

// handleVoices 代理 TTS 服务的音色列表
func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	if h.missing(config.ProviderTTS) {
		utils.RespondError(w, http.StatusInternalServerError, msgAPIKeyMissing)
		return
	}

	voices, err := h.voices.ListVoices(r.Context())
	if err != nil {
		log.Printf("[speech] list voices: %v", err)
		var statusErr *speechsvc.StatusError
		if errors.As(err, &statusErr) {
			utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to fetch voices",
				"details": statusErr.Body,
			})
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(voices); err != nil {
		log.Printf("failed to write voices response: %v", err)
	}
}

// handleUpload 把原始上传文件保存到 uploads 目录
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	utils.LimitBody(w, r, h.opts.MaxUploadBytes)
	if err := utils.ParseForm(r, h.opts.MaxUploadBytes); err != nil {
		utils.RespondError(w, utils.UploadErrorStatus(err), "failed to parse form: "+err.Error())
		return
	}
	defer utils.CleanupMultipart(r)

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.ErrMissingFile.Error())
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == ".." {
		utils.RespondError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	if err := os.MkdirAll(h.opts.UploadsDir, 0o755); err != nil {
		log.Printf("[speech] ensure uploads dir: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	path := filepath.Join(h.opts.UploadsDir, name)
	dst, err := os.Create(path)
	if err != nil {
		log.Printf("[speech] create upload: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	size, err := io.Copy(dst, file)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Printf("[speech] write upload: %v", err)
		_ = os.Remove(path)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"filename":     name,
		"content_type": header.Header.Get("Content-Type"),
		"size":         size,
	})
}

// handleTranscribe 仅返回转写文本
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, _, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	defer utils.CleanupMultipart(r)

	transcript, err := h.pipeline.Transcribe(r.Context(), audio)
	if err != nil {
		h.fallback(r, err)
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"transcript": h.opts.FallbackMessage,
			"audio_url":  h.opts.FallbackAudioURL,
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"transcript": transcript})
}

// handleEcho 用指定音色复述上传的语音
func (h *Handler) handleEcho(w http.ResponseWriter, r *http.Request) {
	if h.missing(config.ProviderTTS, config.ProviderSTT) {
		utils.RespondError(w, http.StatusInternalServerError, msgAPIKeyMissing)
		return
	}

	audio, header, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	defer utils.CleanupMultipart(r)

	out, err := h.pipeline.Echo(r.Context(), speechsvc.EchoInput{
		Audio:    audio,
		Filename: header.Filename,
		VoiceID:  formValueOr(r, "voice_id", h.opts.EchoDefaultVoice),
	})
	if err != nil {
		h.fallback(r, err)
		utils.RespondJSON(w, http.StatusOK, speechsvc.EchoOutput{
			AudioURL:   h.opts.FallbackAudioURL,
			Transcript: h.opts.FallbackMessage,
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, out)
}

// handleQuery 单轮语音问答，不保存历史
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.missing(config.ProviderLLM, config.ProviderTTS, config.ProviderSTT) {
		utils.RespondError(w, http.StatusInternalServerError, msgAPIKeysMissing)
		return
	}

	audio, _, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	defer utils.CleanupMultipart(r)

	out, err := h.pipeline.Query(r.Context(), speechsvc.QueryInput{
		Audio:   audio,
		VoiceID: formValueOr(r, "voice_id", h.opts.EchoDefaultVoice),
	})
	if err != nil {
		h.fallback(r, err)
		utils.RespondJSON(w, http.StatusOK, speechsvc.QueryOutput{
			AudioURL:   h.opts.FallbackAudioURL,
			Transcript: h.opts.FallbackMessage,
			LLMText:    h.opts.FallbackMessage,
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, *multipart.FileHeader, bool) {
	utils.LimitBody(w, r, h.opts.MaxUploadBytes)
	audio, header, err := utils.ReadFormFile(r, "file", h.opts.MaxUploadBytes)
	if err != nil {
		utils.CleanupMultipart(r)
		utils.RespondError(w, utils.UploadErrorStatus(err), err.Error())
		return nil, nil, false
	}
	return audio, header, true
}

func (h *Handler) missing(required ...config.Provider) bool {
	if h.creds == nil {
		return false
	}
	missing := h.creds.ProvidersMissing(required...)
	if len(missing) > 0 {
		log.Printf("[speech] missing credentials: %v", missing)
		return true
	}
	return false
}

func (h *Handler) fallback(r *http.Request, err error) {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	log.Printf("[speech] %s falling back stage=%s: %v", route, speechsvc.StageOf(err), err)
	h.metrics.ObserveFallback(route)
}

func formValueOr(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return fallback
}
