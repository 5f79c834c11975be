package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/imageprocessor"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/repository"
)

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	getKeys   []string
	delKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error = redis.Nil
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

func (s *stubCache) Del(ctx context.Context, key string) error {
	s.delKeys = append(s.delKeys, key)
	return nil
}

type stubProcessor struct {
	result *imageprocessor.Result
	err    error
}

func (s *stubProcessor) Process(ctx context.Context, analysisID string, image []byte) (*imageprocessor.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestUseCase(cache Cache, readyAfter int, opts ...Option) *AnalysisUseCase {
	uc := NewAnalysisUseCase(
		repository.NewMemoryRepository(),
		cache,
		imageprocessor.NewScripted("水,糖,盐", readyAfter),
		zap.NewNop(),
		opts...,
	)
	uc.initialBackoff = time.Millisecond
	uc.maxBackoff = 2 * time.Millisecond
	return uc
}

func upload(t *testing.T, uc *AnalysisUseCase) string {
	t.Helper()
	record, err := uc.Upload(context.Background(), Upload{Filename: "label.png", ContentType: "image/png", Data: []byte("png")})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return record.ID
}

func TestGetAdvancesScriptedOCR(t *testing.T) {
	cache := &stubCache{}
	uc := newTestUseCase(cache, 2)
	id := upload(t, uc)

	want := []struct{ status, ocrStatus, text string }{
		{"ocr_pending", "pending", ""},
		{"ocr_processing", "processing", ""},
		{"ocr_completed", "completed", "水,糖,盐"},
	}
	for i, w := range want {
		record, err := uc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("read %d: %v", i+1, err)
		}
		if record.Status != w.status || record.OCRStatus != w.ocrStatus || record.OCRText != w.text {
			t.Fatalf("read %d: unexpected record %+v", i+1, record)
		}
	}
	if len(cache.setKeys) != 1 || cache.setKeys[0] != "analysis:"+id {
		t.Fatalf("expected completed snapshot to be cached once, got %v", cache.setKeys)
	}
}

func TestGetServesCompletedSnapshotFromCache(t *testing.T) {
	uc := newTestUseCase(NewMemoryCache(), 0)
	id := upload(t, uc)

	first, err := uc.Get(context.Background(), id)
	if err != nil || first.Status != "ocr_completed" {
		t.Fatalf("expected immediate completion, got %+v, %v", first, err)
	}

	// Remove the record from persistence; the cache must still answer.
	uc.repo = repository.NewMemoryRepository()
	cached, err := uc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}
	if cached.OCRText != "水,糖,盐" {
		t.Fatalf("unexpected cached record: %+v", cached)
	}
}

func TestGetRetriesTransientCacheRead(t *testing.T) {
	cache := &stubCache{getErrs: []error{transientRedisError{}, redis.Nil}}
	uc := newTestUseCase(cache, 3)
	id := upload(t, uc)

	record, err := uc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if record.Status != "ocr_pending" {
		t.Fatalf("unexpected status: %s", record.Status)
	}
	if len(cache.getKeys) != 2 || cache.getKeys[0] != cache.getKeys[1] {
		t.Fatalf("expected one retry on the same key, got %v", cache.getKeys)
	}
}

func TestGetUnknownID(t *testing.T) {
	uc := newTestUseCase(&stubCache{}, 0)
	if _, err := uc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadReturnsOperationErrorOnProcessorFailure(t *testing.T) {
	uc := NewAnalysisUseCase(repository.NewMemoryRepository(), &stubCache{}, &stubProcessor{err: errors.New("boom")}, zap.NewNop())

	_, err := uc.Upload(context.Background(), Upload{Data: []byte("x")})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "usecase.process_image" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}

	if _, err := uc.Upload(context.Background(), Upload{}); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestConfirmRequiresCompletedOCR(t *testing.T) {
	cache := &stubCache{}
	uc := newTestUseCase(cache, 1)
	id := upload(t, uc)
	ctx := context.Background()

	if _, err := uc.Confirm(ctx, id, "水", "normal"); !errors.Is(err, ErrOCRNotReady) {
		t.Fatalf("expected ErrOCRNotReady, got %v", err)
	}

	_, _ = uc.Get(ctx, id)
	if _, err := uc.Get(ctx, id); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if _, err := uc.Confirm(ctx, id, "   ", "normal"); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := uc.Confirm(ctx, id, "水", "vegan"); !errors.Is(err, ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}

	record, err := uc.Confirm(ctx, id, " 水,糖 ", "")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if record.Status != "llm_pending" || record.ConfirmedText != "水,糖" || record.Preference != "normal" {
		t.Fatalf("unexpected confirmed record: %+v", record)
	}
	if len(cache.delKeys) != 1 {
		t.Fatalf("expected cache eviction, got %v", cache.delKeys)
	}

	if _, err := uc.RetryOCR(ctx, id); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestRetryOCRRestartsPipeline(t *testing.T) {
	uc := newTestUseCase(NewMemoryCache(), 0)
	id := upload(t, uc)
	ctx := context.Background()

	if record, _ := uc.Get(ctx, id); record.Status != "ocr_completed" {
		t.Fatalf("expected completion, got %s", record.Status)
	}

	record, err := uc.RetryOCR(ctx, id)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if record.Status != "ocr_pending" || record.OCRText != "" || record.StatusReads != 0 {
		t.Fatalf("unexpected reset record: %+v", record)
	}

	// The cached completed snapshot must not survive the retry.
	again, err := uc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.StatusReads != 1 {
		t.Fatalf("expected a fresh read after retry, got %+v", again)
	}
}

func TestHistoryPaging(t *testing.T) {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	uc := newTestUseCase(&stubCache{}, 0, WithNow(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, upload(t, uc))
	}

	page, err := uc.History(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if page.Total != 3 || page.Page != 1 || page.Limit != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].ID != ids[2] {
		t.Fatalf("expected newest first, got %s", page.Items[0].ID)
	}
	if page.Items[0].CreatedAt != base.Add(3*time.Minute).Format(time.RFC3339) {
		t.Fatalf("unexpected timestamp: %s", page.Items[0].CreatedAt)
	}

	clamped, err := uc.History(context.Background(), 1, 1000)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if clamped.Limit != maxHistoryLimit {
		t.Fatalf("expected limit clamp, got %d", clamped.Limit)
	}
	if len(clamped.Items) != 3 {
		t.Fatalf("expected all items, got %d", len(clamped.Items))
	}
}
