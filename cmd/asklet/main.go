package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dmarini/asklet/internal/agentlink"
	"github.com/dmarini/asklet/internal/assist"
	"github.com/dmarini/asklet/internal/capture"
	"github.com/dmarini/asklet/internal/config"
	"github.com/dmarini/asklet/internal/device"
	"github.com/dmarini/asklet/internal/history"
	"github.com/dmarini/asklet/internal/httpapi"
	"github.com/dmarini/asklet/internal/observability"
	"github.com/dmarini/asklet/internal/playback"
	"github.com/dmarini/asklet/internal/session"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("history store init failed", zap.Error(err))
	}
	defer historyStore.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	var (
		captureDevice  capture.Device
		synthesizer    playback.Synthesizer
		realtimeDevice *device.RealtimeDevice
	)

	speechMode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	if speechMode == "" {
		speechMode = "auto"
	}

	tryRealtime := func() bool {
		if strings.TrimSpace(cfg.SpeechAPIKey) == "" {
			return false
		}
		d := device.NewRealtimeDevice(device.Config{
			WSBaseURL:    cfg.SpeechWSBaseURL,
			APIKey:       cfg.SpeechAPIKey,
			STTModelID:   cfg.SpeechSTTModel,
			TTSVoiceID:   cfg.SpeechTTSVoice,
			SampleRate:   cfg.SpeechSampleRate,
			OutputFormat: cfg.SpeechOutputFormat,
		}, logger.Named("device"))
		captureDevice = d
		synthesizer = d
		realtimeDevice = d
		logger.Info("speech provider: realtime websocket")
		return true
	}

	useMock := func() {
		mock := capture.NewMockDevice()
		captureDevice = mock
		synthesizer = playback.NewMockSynthesizer()
		logger.Info("speech provider: mock")
	}

	switch speechMode {
	case "realtime":
		if !tryRealtime() {
			logger.Fatal("SPEECH_PROVIDER=realtime but SPEECH_API_KEY is not set")
		}
	case "mock":
		useMock()
	case "auto":
		if !tryRealtime() {
			useMock()
		}
	default:
		logger.Fatal("invalid SPEECH_PROVIDER", zap.String("value", cfg.SpeechProvider))
	}

	var agent agentlink.Channel
	if strings.TrimSpace(cfg.AgentWSURL) != "" {
		ws, err := agentlink.NewWSChannel(agentlink.Config{
			URL:            cfg.AgentWSURL,
			ConnectTimeout: cfg.AgentConnectTimeout,
			BackoffBase:    cfg.AgentBackoffBase,
			BackoffCap:     cfg.AgentBackoffCap,
		}, logger.Named("agentlink"))
		if err != nil {
			logger.Fatal("agent channel init failed", zap.Error(err))
		}
		go ws.Run(runCtx)
		agent = ws
		logger.Info("agent channel: websocket", zap.String("url", cfg.AgentWSURL))
	} else {
		mock := agentlink.NewMockChannel()
		_ = mock.Connect(ctx)
		agent = mock
		logger.Info("agent channel: mock (AGENT_WS_URL not set)")
	}
	defer agent.Close()

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})
	sessions.StartJanitor(runCtx, 5*time.Second)

	orchestrator := assist.NewOrchestrator(
		sessions,
		capture.NewAdapter(captureDevice, logger.Named("capture")),
		playback.NewAdapter(synthesizer, logger.Named("playback")),
		agent,
		historyStore,
		metrics,
		logger.Named("assist"),
		cfg.ListenWindow,
	)
	if realtimeDevice != nil {
		orchestrator.AttachAudioStreamer(realtimeDevice)
	}

	api := httpapi.New(cfg, sessions, orchestrator, historyStore, metrics, logger.Named("httpapi"))
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
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
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
