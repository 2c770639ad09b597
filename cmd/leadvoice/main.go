package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/propertyhub/leadvoice/internal/config"
	"github.com/propertyhub/leadvoice/internal/conversation"
	"github.com/propertyhub/leadvoice/internal/dialer"
	"github.com/propertyhub/leadvoice/internal/gateway"
	"github.com/propertyhub/leadvoice/internal/httpapi"
	"github.com/propertyhub/leadvoice/internal/interrupt"
	"github.com/propertyhub/leadvoice/internal/llm"
	"github.com/propertyhub/leadvoice/internal/logging"
	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/scheduler"
	"github.com/propertyhub/leadvoice/internal/sessionstore"
	"github.com/propertyhub/leadvoice/internal/store"
	"github.com/propertyhub/leadvoice/internal/stt"
	"github.com/propertyhub/leadvoice/internal/telephony"
	"github.com/propertyhub/leadvoice/internal/tts"
	"github.com/propertyhub/leadvoice/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	snapshots := sessionstore.New(cfg.RedisURL, logger)
	defer snapshots.Close()

	var (
		transcriber stt.Transcriber
		generator   llm.Generator
		synthesizer tts.Synthesizer
	)
	mode := strings.ToLower(cfg.ProviderMode)
	useLive := mode == "live" || (mode == "auto" && cfg.HasLiveProviderKeys())
	if mode == "live" && !cfg.HasLiveProviderKeys() {
		logger.Error("PROVIDER_MODE=live but provider keys are missing")
		os.Exit(1)
	}
	if useLive {
		transcriber = stt.NewDeepgram(cfg.DeepgramAPIKey)
		generator = llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		synthesizer = tts.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID)
		logger.Info("providers: live", "llm_model", cfg.OpenAIModel)
	} else {
		transcriber = stt.NewMock()
		generator = llm.NewMock()
		synthesizer = tts.NewMock()
		logger.Warn("providers: mock, calls will use canned speech and replies")
	}

	fillers, err := conversation.PrewarmFillers(ctx, synthesizer)
	if err != nil {
		logger.Warn("filler prewarm incomplete", "error", err)
	}

	manager := conversation.NewManager(conversation.Options{
		STT:             transcriber,
		LLM:             generator,
		TTS:             synthesizer,
		Snapshots:       snapshots,
		Store:           st,
		Flags:           interrupt.NewFlags(),
		Metrics:         metrics,
		Fillers:         fillers,
		Logger:          logger,
		Model:           cfg.OpenAIModel,
		MaxCallDuration: cfg.MaxCallDuration,
	})

	sch := scheduler.New(st, cfg.CallingHoursStart, cfg.CallingHoursEnd, cfg.MaxConcurrentCalls, logger)
	exotel := telephony.NewExotel(telephony.Settings{
		AccountSID:        cfg.ExotelAccountSID,
		APIKey:            cfg.ExotelAPIKey,
		APIToken:          cfg.ExotelAPIToken,
		Subdomain:         cfg.ExotelSubdomain,
		VirtualNumber:     cfg.ExotelVirtualNumber,
		FlowID:            cfg.ExotelFlowID,
		StatusCallbackURL: cfg.OurBaseURL + "/webhooks/exotel/call-status",
	})
	executor := dialer.NewExecutor(st, exotel, sch, metrics, logger)
	worker := dialer.NewWorker(sch, executor, st, metrics, logger, cfg.WorkerInterval)

	gw := gateway.New(manager, metrics, logger)
	wh := webhook.NewHandler(st, sch, metrics, logger)

	api := httpapi.New(cfg, st, snapshots, gw, wh, manager, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr(),
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go worker.Run(runCtx)

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
