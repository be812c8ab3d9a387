package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/capture"
	"github.com/lexiqai/voice-widget/internal/config"
	"github.com/lexiqai/voice-widget/internal/control"
	"github.com/lexiqai/voice-widget/internal/llm"
	"github.com/lexiqai/voice-widget/internal/observability"
	"github.com/lexiqai/voice-widget/internal/resilience"
	"github.com/lexiqai/voice-widget/internal/session"
	"github.com/lexiqai/voice-widget/internal/stt"
	"github.com/lexiqai/voice-widget/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	sessionID := observability.NewSessionID()
	sessionLogger := observability.WithSessionID(sessionID)

	logger.Info().
		Str("session_id", sessionID).
		Str("speech_model", cfg.SpeechModel).
		Str("speech_transport", cfg.SpeechTransport).
		Str("gemini_model", cfg.GeminiModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice assistant starting")

	httpClient := &http.Client{}

	var transcriber stt.Transcriber
	switch cfg.SpeechTransport {
	case config.SpeechTransportGRPC:
		grpcClient, err := stt.NewGRPCClient(context.Background(), cfg, newPolicy("speech", cfg, logger), sessionLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Speech-to-Text client")
		}
		defer grpcClient.Close()
		transcriber = grpcClient
	default:
		transcriber = stt.NewGoogleClient(cfg, httpClient, newPolicy("speech", cfg, logger), sessionLogger)
	}
	responder := llm.NewGeminiClient(cfg, httpClient, newPolicy("gemini", cfg, logger), sessionLogger)

	speaker := tts.NewCommandSpeaker(cfg.TTSCommand, cfg.TTSArgList(), sessionLogger)
	if err := speaker.Available(); err != nil {
		logger.Warn().Err(err).Msg("Speech engine not found, replies cannot be spoken")
	}

	microphone := capture.NewMicrophone(cfg, sessionLogger)

	controller, err := session.NewController(session.Options{
		Source:       microphone,
		Transcriber:  transcriber,
		Responder:    responder,
		Speaker:      speaker,
		LanguageCode: cfg.SpeechLanguage,
		Model:        cfg.SpeechModel,
		TurnTimeout:  cfg.TurnTimeout(),
		SessionID:    sessionID,
		Logger:       logger,
		OnTransition: func(from, to session.Phase) {
			logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Phase changed")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create session controller")
	}

	// Create HTTP server
	mux := http.NewServeMux()
	control.NewHandlers(controller, logger).Register(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness validates local prerequisites only, remote APIs are not called to avoid cost
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"speech_engine": func(ctx context.Context) (bool, error) {
			if err := speaker.Available(); err != nil {
				return false, err
			}
			return true, nil
		},
		"google_api_key": func(ctx context.Context) (bool, error) {
			if cfg.GoogleAPIKey == "" {
				return false, errors.New("GOOGLE_API_KEY is not set")
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No write timeout: /ws/status connections are long-lived
	server := &http.Server{
		Addr:        net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("endpoint", fmt.Sprintf("http://%s/trigger", server.Addr)).
			Msg("Control API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.KeyboardEnabled {
		go func() {
			if err := control.RunKeyboard(ctx, controller, stop, logger); err != nil {
				logger.Warn().Err(err).Msg("Keyboard input unavailable, use POST /trigger instead")
			}
		}()
	}

	// Wait for interrupt signal or quit key to shut down
	<-ctx.Done()

	logger.Info().Msg("Shutting down...")

	if err := controller.Close(); err != nil {
		logger.Warn().Err(err).Msg("Session did not close cleanly")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Voice assistant exited")
}

// newPolicy builds the breaker and retry budget guarding one remote service
func newPolicy(service string, cfg *config.Config, logger zerolog.Logger) *resilience.Policy {
	breaker := resilience.NewCircuitBreaker(
		service,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		if state == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(name)
		}
		logger.Warn().Str("service", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	}

	return &resilience.Policy{
		Breaker: breaker,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}
