package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func newRetryingRepository(attempts int) *GormRepository {
	return &GormRepository{
		logger:         zap.NewNop(),
		retryAttempts:  attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	repo := newRetryingRepository(3)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "analysis-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	repo := newRetryingRepository(2)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "analysis-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" || opErr.RequestID != "analysis-2" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
}

func TestExecuteWithRetryDoesNotRetryNotFound(t *testing.T) {
	repo := newRetryingRepository(3)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "repository.find_by_id", "missing", func() error {
		attempts++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteWithRetryStopsOnCancel(t *testing.T) {
	repo := newRetryingRepository(5)
	repo.initialBackoff = time.Second
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := repo.executeWithRetry(ctx, "repository.save", "analysis-3", func() error {
		attempts++
		cancel()
		return transientTestError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retry after cancel, got %d attempts", attempts)
	}
}

func TestMemoryRepositoryLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	record := &AnalysisRecord{ID: "a1", Status: "ocr_pending", CreatedAt: time.Now()}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, record); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	record.Status = "mutated-after-create"
	found, err := repo.FindByID(ctx, "a1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Status != "ocr_pending" {
		t.Fatalf("repository must hold its own copy, got %s", found.Status)
	}

	found.Status = "ocr_completed"
	if err := repo.Save(ctx, found); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	reloaded, _ := repo.FindByID(ctx, "a1")
	if reloaded.Status != "ocr_completed" {
		t.Fatalf("expected saved status, got %s", reloaded.Status)
	}

	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Save(ctx, &AnalysisRecord{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on save, got %v", err)
	}
}

func TestMemoryRepositoryListNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		record := &AnalysisRecord{ID: fmt.Sprintf("a%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	page, total, err := repo.List(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(page) != 2 || page[0].ID != "a3" || page[1].ID != "a2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	empty, _, err := repo.List(ctx, 10, 2)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %d items, err %v", len(empty), err)
	}
}
