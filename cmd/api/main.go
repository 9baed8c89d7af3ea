package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/voice-agent/backend/internal/audio"
	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/handler"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	speechModel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/scheduler"
	"github.com/zhouzirui/voice-agent/backend/internal/service/ai"
	"github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/service/speech"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := newSessionStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close session store: %v", err)
		}
	}()

	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load chat history: %w", err)
	}
	sessions := chat.NewService(store)
	log.Printf("session store ready (backend=%s)", cfg.Storage.Backend)

	// LLM 缺失凭证时不阻止启动，由接口在请求时返回配置错误
	var generator ai.Generator
	if missing := cfg.ProvidersMissing(config.ProviderLLM); len(missing) == 0 {
		generator, err = ai.NewGenerator(ctx, cfg.AI)
		if err != nil {
			return fmt.Errorf("failed to initialize language model: %w", err)
		}
		log.Printf("language model initialized (provider=%s)", cfg.AI.Provider)
	} else {
		log.Printf("warning: %s credentials not configured, LLM endpoints will report a configuration error", cfg.AI.Provider)
	}

	httpClient := &http.Client{}
	transcriber := speech.NewAssemblyAIClient(speechModel.TranscriberConfig{
		APIKey:       cfg.Speech.AssemblyAIKey,
		BaseURL:      cfg.Speech.AssemblyAIBaseURL,
		PollInterval: cfg.Speech.PollInterval,
		Timeout:      cfg.Speech.STTTimeout,
	}, httpClient)
	synthesizer := speech.NewMurfClient(speechModel.SynthesizerConfig{
		APIKey:      cfg.Speech.MurfKey,
		BaseURL:     cfg.Speech.MurfBaseURL,
		Timeout:     cfg.Speech.TTSTimeout,
		SampleRate:  cfg.Speech.SampleRate,
		ChannelType: cfg.Speech.ChannelType,
	}, httpClient)

	m := metrics.New()
	chain := speech.NewChain(transcriber, generator, synthesizer, sessions, m, speech.ChainOptions{
		UploadsDir: cfg.Server.UploadsDir,
		ChunkLimit: cfg.Speech.ChunkLimit,
		Format:     audio.Format{SampleRate: cfg.Speech.SampleRate, Channels: cfg.Speech.Channels()},
	})

	if err := os.MkdirAll(cfg.Server.UploadsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create uploads dir: %w", err)
	}

	sched := scheduler.New()
	if cfg.Maintenance.UploadsRetention > 0 {
		retention := cfg.Maintenance.UploadsRetention
		err := sched.Add("prune-uploads", cfg.Maintenance.CleanupSchedule, func(context.Context) error {
			removed, err := speech.PruneArtifacts(cfg.Server.UploadsDir, retention, time.Now())
			m.ObservePruned(removed)
			if removed > 0 {
				log.Printf("[cleanup] removed %d generated audio files older than %s", removed, retention)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	router := handler.NewRouter(handler.Dependencies{
		Config:   cfg,
		Chain:    chain,
		Voices:   synthesizer,
		Sessions: sessions,
		Metrics:  m,
	})

	return startServer(ctx, cfg.Server, router)
}

func newSessionStore(cfg config.StorageConfig) (chat.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return chat.NewFileStore(cfg.ChatHistoryFile), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return chat.NewRedisStore(client, cfg.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voice agent backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
