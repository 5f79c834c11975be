package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/imageprocessor"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/preference"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/repository"
)

var (
	// ErrNotFound is returned when the analysis id is unknown.
	ErrNotFound = repository.ErrNotFound
	// ErrOCRNotReady is returned when confirming before text is available.
	ErrOCRNotReady = errors.New("ocr has not completed")
	// ErrAlreadyConfirmed is returned when OCR is retried after confirmation.
	ErrAlreadyConfirmed = errors.New("analysis already confirmed")
	// ErrEmptyText is returned when confirming blank text.
	ErrEmptyText = errors.New("confirmed text is required")
	// ErrInvalidPreference is returned for preferences outside the known set.
	ErrInvalidPreference = errors.New("invalid preference")
	// ErrEmptyImage is returned when an upload carries no bytes.
	ErrEmptyImage = errors.New("image is empty")
)

const defaultCacheTTL = 5 * time.Minute

// Upload describes an incoming image.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AnalysisUseCase encapsulates business logic for the analysis flow.
type AnalysisUseCase struct {
	repo           repository.Repository
	cache          Cache
	processor      imageprocessor.Client
	logger         *zap.Logger
	cacheTTL       time.Duration
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option customises the use case.
type Option func(*AnalysisUseCase)

// WithCacheTTL sets how long completed snapshots stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(uc *AnalysisUseCase) {
		if ttl > 0 {
			uc.cacheTTL = ttl
		}
	}
}

// WithNow overrides the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(uc *AnalysisUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

// NewAnalysisUseCase constructs a new use case instance.
func NewAnalysisUseCase(repo repository.Repository, cache Cache, processor imageprocessor.Client, logger *zap.Logger, opts ...Option) *AnalysisUseCase {
	uc := &AnalysisUseCase{
		repo:           repo,
		cache:          cache,
		processor:      processor,
		logger:         logger.Named("analysis_usecase"),
		cacheTTL:       defaultCacheTTL,
		now:            time.Now,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func cacheKey(id string) string {
	return fmt.Sprintf("analysis:%s", id)
}

// Upload registers a new analysis and hands the image to the processor.
func (uc *AnalysisUseCase) Upload(ctx context.Context, in Upload) (*repository.AnalysisRecord, error) {
	if len(in.Data) == 0 {
		return nil, ErrEmptyImage
	}
	id := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.upload", id)

	result, err := uc.processor.Process(ctx, id, in.Data)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.process_image", id, err)
		opLogger.Error("image processing failed", zap.Error(wrapped))
		return nil, wrapped
	}

	hash := sha1.Sum(in.Data)
	now := uc.now().UTC()
	record := &repository.AnalysisRecord{
		ID:          id,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Size:        int64(len(in.Data)),
		SHA1Hash:    hex.EncodeToString(hash[:]),
		Status:      string(analysis.StatusOCRPending),
		OCRStatus:   string(analysis.PhasePending),
		LLMStatus:   string(analysis.PhasePending),
		PendingText: result.Text,
		ReadyAfter:  result.ReadyAfter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.create_analysis", id, err)
		opLogger.Error("failed to persist analysis", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("analysis created", zap.String("filename", in.Filename), zap.Int64("size", record.Size))
	return record, nil
}

// Get returns the current state of an analysis. Each read of an analysis
// still in OCR moves the scripted pipeline one step forward.
func (uc *AnalysisUseCase) Get(ctx context.Context, id string) (*repository.AnalysisRecord, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get", id)

	if cached, err := uc.withRedisGet(ctx, id, "cache.get.analysis", cacheKey(id)); err == nil {
		var record repository.AnalysisRecord
		if err := json.Unmarshal([]byte(cached), &record); err != nil {
			opLogger.Warn("failed to decode cached analysis", zap.Error(err))
		} else {
			return &record, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	record, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !uc.advance(record) {
		return record, nil
	}
	if err := uc.repo.Save(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_analysis", id, err)
		opLogger.Error("failed to persist status", zap.Error(wrapped))
		return nil, wrapped
	}

	if record.OCRStatus == string(analysis.PhaseCompleted) {
		uc.cacheRecord(ctx, record)
	}
	return record, nil
}

// advance moves an analysis through ocr_pending, ocr_processing and
// ocr_completed as status reads accumulate. It reports whether the record
// changed.
func (uc *AnalysisUseCase) advance(record *repository.AnalysisRecord) bool {
	switch analysis.StatusKind(record.Status) {
	case analysis.StatusOCRPending, analysis.StatusOCRProcessing:
	default:
		return false
	}

	record.StatusReads++
	switch {
	case record.StatusReads > record.ReadyAfter:
		record.Status = string(analysis.StatusOCRCompleted)
		record.OCRStatus = string(analysis.PhaseCompleted)
		record.OCRText = record.PendingText
	case record.StatusReads > 1:
		record.Status = string(analysis.StatusOCRProcessing)
		record.OCRStatus = string(analysis.PhaseProcessing)
	}
	record.UpdatedAt = uc.now().UTC()
	return true
}

// Confirm records user-approved text and hands the analysis to the LLM stage.
func (uc *AnalysisUseCase) Confirm(ctx context.Context, id, text, pref string) (*repository.AnalysisRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	p, ok := preference.Parse(pref)
	if !ok {
		return nil, ErrInvalidPreference
	}

	record, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.OCRStatus != string(analysis.PhaseCompleted) {
		return nil, ErrOCRNotReady
	}

	record.ConfirmedText = text
	record.Preference = string(p)
	record.Status = string(analysis.StatusLLMPending)
	record.LLMStatus = string(analysis.PhasePending)
	record.UpdatedAt = uc.now().UTC()
	if err := uc.repo.Save(ctx, record); err != nil {
		return nil, logging.NewOperationError("usecase.confirm", id, err)
	}
	uc.evict(ctx, id)
	return record, nil
}

// RetryOCR restarts recognition for an analysis that has not been confirmed.
func (uc *AnalysisUseCase) RetryOCR(ctx context.Context, id string) (*repository.AnalysisRecord, error) {
	record, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.ConfirmedText != "" {
		return nil, ErrAlreadyConfirmed
	}

	record.Status = string(analysis.StatusOCRPending)
	record.OCRStatus = string(analysis.PhasePending)
	record.OCRText = ""
	record.ErrorMessage = ""
	record.StatusReads = 0
	record.UpdatedAt = uc.now().UTC()
	if err := uc.repo.Save(ctx, record); err != nil {
		return nil, logging.NewOperationError("usecase.retry_ocr", id, err)
	}
	uc.evict(ctx, id)
	return record, nil
}

func (uc *AnalysisUseCase) cacheRecord(ctx context.Context, record *repository.AnalysisRecord) {
	serialized, err := json.Marshal(record)
	if err != nil {
		uc.logger.Warn("failed to serialize analysis", zap.Error(err))
		return
	}
	if err := uc.withRedisRetry(ctx, record.ID, "cache.set.analysis", func() error {
		return uc.cache.Set(ctx, cacheKey(record.ID), string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.analysis", record.ID).Warn("failed to cache analysis", zap.Error(err))
	}
}

func (uc *AnalysisUseCase) evict(ctx context.Context, id string) {
	if err := uc.withRedisRetry(ctx, id, "cache.del.analysis", func() error {
		return uc.cache.Del(ctx, cacheKey(id))
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.del.analysis", id).Warn("failed to evict cached analysis", zap.Error(err))
	}
}

func (uc *AnalysisUseCase) withRedisRetry(ctx context.Context, id, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, id, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, id)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, id, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return err
		}

		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, id, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, id, err)
}

func (uc *AnalysisUseCase) withRedisGet(ctx context.Context, id, operation, key string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, id, operation, func() error {
		value, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
