/**
 * OCR orchestrator
 *
 * Owns the session lifecycle: creates the session, runs the background
 * pipeline (resolve image -> validate -> crop -> batched extraction),
 * records every outcome into the session store and finalizes status. A
 * single supervisor goroutine per session is the only writer of that
 * session after creation; no fault escapes it.
 */

package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wakka810/web-ocr/internal/apperr"
	"github.com/wakka810/web-ocr/internal/region"
	"github.com/wakka810/web-ocr/internal/retry"
	"github.com/wakka810/web-ocr/internal/session"
	"github.com/wakka810/web-ocr/internal/vision"
)

// SourceImage is a resolved upload
type SourceImage struct {
	Bytes  []byte
	Width  int
	Height int
}

// ImageSource resolves opaque image ids to bytes and dimensions
type ImageSource interface {
	Resolve(id string) (*SourceImage, error)
}

// Config controls batching and the per-region call budget
type Config struct {
	// ConcurrencyLimit caps simultaneous outbound vision calls; batches of
	// this size run sequentially.
	ConcurrencyLimit int

	// CallTimeout bounds one region's total extraction time including all
	// retries.
	CallTimeout time.Duration

	Retry retry.Config

	// Retention controls the opportunistic sweep after each session ends
	Retention time.Duration
}

// DefaultConfig matches the production pipeline settings
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: 3,
		CallTimeout:      30 * time.Second,
		Retry:            retry.DefaultConfig(),
		Retention:        time.Hour,
	}
}

// Orchestrator dispatches region extraction work
type Orchestrator struct {
	store  session.Store
	images ImageSource
	engine vision.Engine
	cfg    Config
	logger zerolog.Logger

	// wg tracks supervisor goroutines for clean shutdown in tests
	wg sync.WaitGroup
}

// New creates an orchestrator
func New(store session.Store, images ImageSource, engine vision.Engine, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.ConcurrencyLimit < 1 {
		cfg.ConcurrencyLimit = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}

	return &Orchestrator{
		store:  store,
		images: images,
		engine: engine,
		cfg:    cfg,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// StartSession creates a session and launches its background pipeline. It
// returns immediately; callers poll Status for progress.
func (o *Orchestrator) StartSession(ctx context.Context, imageID string, regions []session.Region) (string, error) {
	sess := &session.Session{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		Regions:   regions,
		Results:   []session.OCRResult{},
		Status:    session.StatusProcessing,
		CreatedAt: time.Now(),
	}

	if err := o.store.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	o.wg.Add(1)
	go o.run(sess.ID, imageID, regions)

	return sess.ID, nil
}

// Wait blocks until all in-flight sessions finish. Test helper.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run is the supervisor task for one session. It owns the session's full
// lifecycle; every fault ends in a terminal session status.
func (o *Orchestrator) run(sessionID, imageID string, regions []session.Region) {
	defer o.wg.Done()

	ctx := context.Background()
	logger := o.logger.With().Str("session_id", sessionID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("session pipeline panicked")
			o.fail(ctx, sessionID)
		}
		o.sweep(ctx, logger)
	}()

	logger.Info().Str("image_id", imageID).Int("regions", len(regions)).Msg("session started")

	// Step 1: resolve the image
	src, err := o.images.Resolve(imageID)
	if err != nil {
		logger.Warn().Err(err).Msg("image lookup failed")
		o.fail(ctx, sessionID)
		return
	}

	// Step 2: validate region geometry
	validation := region.ValidateRegions(src.Width, src.Height, regions)
	if !validation.Valid {
		logger.Warn().Strs("violations", validation.Errors).Msg("region validation failed")
		o.fail(ctx, sessionID)
		return
	}

	// Step 3: crop all regions up front (fail-fast)
	img, _, err := image.Decode(bytes.NewReader(src.Bytes))
	if err != nil {
		logger.Warn().Err(err).Msg("image decode failed")
		o.fail(ctx, sessionID)
		return
	}

	crops, err := region.CropRegions(img, regions)
	if err != nil {
		logger.Warn().Err(err).Msg("region crop failed")
		o.fail(ctx, sessionID)
		return
	}

	// Steps 4-6: batches run strictly in sequence; members of a batch run
	// concurrently, capping simultaneous calls to the vision backend.
	for start := 0; start < len(crops); start += o.cfg.ConcurrencyLimit {
		end := start + o.cfg.ConcurrencyLimit
		if end > len(crops) {
			end = len(crops)
		}
		batch := crops[start:end]

		results := make([]session.OCRResult, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = o.processRegion(ctx, sessionID, batch[i], logger)
			}(i)
		}
		wg.Wait()

		// Append in batch declaration order, not arrival order
		for _, res := range results {
			if err := o.store.UpsertResult(ctx, sessionID, res); err != nil {
				logger.Error().Err(err).Str("region_id", res.RegionID).Msg("failed to record result")
			}
		}

		logger.Debug().Int("batch_start", start).Int("batch_size", len(batch)).Msg("batch settled")
	}

	// Step 7: finalize
	if err := o.store.SetStatus(ctx, sessionID, session.StatusCompleted); err != nil {
		logger.Error().Err(err).Msg("failed to finalize session")
		return
	}

	logger.Info().Int("regions", len(regions)).Msg("session completed")
}

// processRegion runs one region through enhancement and extraction. Errors
// are captured into the result, never propagated: a region exhausting its
// retries must not abort sibling regions or later batches.
func (o *Orchestrator) processRegion(ctx context.Context, sessionID string, crop region.Crop, logger zerolog.Logger) session.OCRResult {
	start := time.Now()

	optimized, enhanced := region.OptimizeForOCR(crop.Bytes)
	if !enhanced {
		logger.Debug().Str("region_id", crop.RegionID).Msg("enhancement fell back to original bytes")
	}

	// Once the call settles the observer goes dead: an abandoned attempt
	// still unwinding after a timeout must never write over the final
	// outcome recorded for this region.
	var mu sync.Mutex
	settled := false

	observer := func(attempt int, err error, delay time.Duration) {
		logger.Warn().
			Str("region_id", crop.RegionID).
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Err(err).
			Msg("vision call failed, retrying")

		mu.Lock()
		defer mu.Unlock()
		if settled {
			return
		}

		// Informational note for pollers. It only refreshes an entry that
		// already exists; it never creates one, so progress counts settled
		// regions only.
		sess, getErr := o.store.Get(ctx, sessionID)
		if getErr != nil {
			return
		}
		known := false
		for _, res := range sess.Results {
			if res.RegionID == crop.RegionID {
				known = true
				break
			}
		}
		if !known {
			return
		}

		progress := session.OCRResult{
			RegionID:       crop.RegionID,
			Text:           fmt.Sprintf("retry attempt %d: %v", attempt, err),
			ProcessingTime: time.Since(start).Milliseconds(),
			Enhanced:       enhanced,
		}
		if err := o.store.UpsertResult(ctx, sessionID, progress); err != nil {
			logger.Debug().Err(err).Str("region_id", crop.RegionID).Msg("could not record retry progress")
		}
	}

	// Timeout wraps the whole backoff loop: the deadline bounds total
	// retry time, not each attempt.
	text, err := retry.WithTimeout(ctx, o.cfg.CallTimeout, func(ctx context.Context) (string, error) {
		return retry.Do(ctx, o.cfg.Retry, func(ctx context.Context) (string, error) {
			return o.engine.ExtractText(ctx, vision.ExtractRequest{
				ImageBytes: optimized,
				MimeType:   crop.MimeType,
				Prompt:     vision.DefaultPrompt,
			})
		}, observer)
	})

	mu.Lock()
	settled = true
	mu.Unlock()

	result := session.OCRResult{
		RegionID:       crop.RegionID,
		ProcessingTime: time.Since(start).Milliseconds(),
		Enhanced:       enhanced,
	}

	if err != nil {
		appErr := apperr.Classify(err, apperr.CodeGeminiError)
		result.Error = &session.ResultError{
			Code:      string(appErr.Code),
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
		}
		return result
	}

	result.Text = text
	return result
}

// fail marks the session failed; best-effort since the session may have
// been swept underneath us.
func (o *Orchestrator) fail(ctx context.Context, sessionID string) {
	if err := o.store.SetStatus(ctx, sessionID, session.StatusFailed); err != nil {
		o.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to mark session failed")
	}
}

// sweep opportunistically evicts expired sessions after any session ends
func (o *Orchestrator) sweep(ctx context.Context, logger zerolog.Logger) {
	evicted, err := o.store.Sweep(ctx, time.Now(), o.cfg.Retention)
	if err != nil {
		logger.Warn().Err(err).Msg("session sweep failed")
		return
	}
	if evicted > 0 {
		logger.Info().Int("evicted", evicted).Msg("swept expired sessions")
	}
}
