/**
 * web-ocr server - Main Entry Point
 *
 * HTTP server for region-based image OCR:
 * - Image upload with MIME sniffing and dimension probing
 * - Async region extraction sessions (batched vision calls with retry)
 * - Polling status API with per-region results
 * - Pluggable session store (memory, Redis, PostgreSQL)
 * - Pluggable vision backend (Gemini API, local Tesseract)
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/wakka810/web-ocr/internal/config"
	"github.com/wakka810/web-ocr/internal/imagestore"
	"github.com/wakka810/web-ocr/internal/logging"
	"github.com/wakka810/web-ocr/internal/orchestrator"
	"github.com/wakka810/web-ocr/internal/retry"
	"github.com/wakka810/web-ocr/internal/server"
	"github.com/wakka810/web-ocr/internal/session"
	"github.com/wakka810/web-ocr/internal/vision"
)

func main() {
	// Load environment variables (.env is optional, system environment still applies)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  os.Stderr,
		Service: "web-ocr",
	})

	logger.Info().
		Int("port", cfg.Port).
		Str("sessionStore", cfg.SessionStore).
		Str("ocrEngine", cfg.OCREngine).
		Int("concurrency", cfg.OCRConcurrency).
		Msg("web-ocr server starting")

	// Initialize session store
	store, err := session.NewStore(session.StoreConfig{
		Backend:     cfg.SessionStore,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		Retention:   cfg.SessionRetention,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer store.Close()
	logger.Info().Str("backend", cfg.SessionStore).Msg("Session store initialized")

	// Initialize image store
	images, err := imagestore.NewStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize image store")
	}
	logger.Info().Str("dir", cfg.UploadDir).Msg("Image store initialized")

	// Initialize vision backend
	engine, visionReady, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize vision engine")
	}
	if visionReady {
		logger.Info().Str("engine", engine.Name()).Msg("Vision engine initialized")
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, OCR requests will be rejected")
	}

	// Initialize orchestrator
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.OCRMaxAttempts
	orch := orchestrator.New(store, &imageSource{images: images}, engine, orchestrator.Config{
		ConcurrencyLimit: cfg.OCRConcurrency,
		CallTimeout:      cfg.OCRTimeout,
		Retry:            retryCfg,
		Retention:        cfg.SessionRetention,
	}, logger)

	// Initialize HTTP server
	handlers := server.NewHandlers(logger, images, orch, cfg.MaxUploadSize, visionReady)
	router := server.NewRouter(handlers, server.RouterConfig{
		CORSOrigin: cfg.CORSOrigin,
		UploadDir:  cfg.UploadDir,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Let in-flight extraction sessions finish writing results
	orch.Wait()

	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("Session store close error")
	}

	logger.Info().Msg("Shutdown complete")
}

// buildEngine selects the vision backend from configuration. visionReady is
// false when the Gemini backend is selected without an API key; the server
// still starts so uploads work, but OCR requests are rejected.
func buildEngine(cfg *config.Config, logger zerolog.Logger) (vision.Engine, bool, error) {
	switch cfg.OCREngine {
	case "tesseract":
		return vision.NewTesseractEngine(""), true, nil
	default:
		if cfg.GeminiAPIKey == "" {
			return &unconfiguredEngine{}, false, nil
		}
		engine, err := vision.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, false, err
		}
		return engine, true, nil
	}
}

// unconfiguredEngine stands in when no API key is present; the handler gate
// rejects OCR requests before this is ever called.
type unconfiguredEngine struct{}

func (e *unconfiguredEngine) ExtractText(ctx context.Context, req vision.ExtractRequest) (string, error) {
	return "", fmt.Errorf("vision engine not configured")
}

func (e *unconfiguredEngine) Name() string { return "unconfigured" }

// imageSource adapts the image store to the orchestrator's resolver interface
type imageSource struct {
	images *imagestore.Store
}

func (s *imageSource) Resolve(id string) (*orchestrator.SourceImage, error) {
	data, meta, err := s.images.Get(id)
	if err != nil {
		return nil, err
	}
	return &orchestrator.SourceImage{
		Bytes:  data,
		Width:  meta.Width,
		Height: meta.Height,
	}, nil
}
