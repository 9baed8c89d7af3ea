package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/handler/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/voice-agent/backend/internal/middleware"
	chatService "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	speechService "github.com/zhouzirui/voice-agent/backend/internal/service/speech"
	"github.com/zhouzirui/voice-agent/backend/pkg/utils"
)

// Dependencies 组装路由所需的服务。
type Dependencies struct {
	Config   *config.Config
	Chain    *speechService.Chain
	Voices   speech.VoiceService
	Sessions *chatService.Service
	Metrics  *metrics.Metrics
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(middlewarePkg.Metrics(deps.Metrics))

	speechHandler := speech.New(deps.Chain, deps.Voices, cfg, deps.Metrics, speech.Options{
		UploadsDir:       cfg.Server.UploadsDir,
		FallbackAudioURL: cfg.Server.FallbackAudioURL,
		FallbackMessage:  cfg.Server.FallbackMessage,
		TTSDefaultVoice:  cfg.Speech.TTSDefaultVoice,
		EchoDefaultVoice: cfg.Speech.EchoDefaultVoice,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
	})
	chatHandler := chat.New(deps.Chain, deps.Sessions, cfg, deps.Metrics, chat.Options{
		FallbackAudioURL: cfg.Server.FallbackAudioURL,
		FallbackMessage:  cfg.Server.FallbackMessage,
		DefaultVoice:     cfg.Speech.EchoDefaultVoice,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
	})

	// 页面与静态资源
	index := filepath.Join(cfg.Server.TemplatesDir, "index.html")
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, index)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Server.StaticDir))))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Server.UploadsDir))))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	speechHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	return r
}
