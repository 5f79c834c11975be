package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
)

// ErrNotFound is returned when no analysis matches the requested id.
var ErrNotFound = errors.New("analysis not found")

// AnalysisRecord represents a persisted analysis request.
type AnalysisRecord struct {
	ID            string    `gorm:"column:id;primaryKey;size:36"`
	Filename      string    `gorm:"column:filename;size:255"`
	ContentType   string    `gorm:"column:content_type;size:64"`
	Size          int64     `gorm:"column:size"`
	SHA1Hash      string    `gorm:"column:sha1_hash;index;size:40"`
	Status        string    `gorm:"column:status;size:32"`
	OCRStatus     string    `gorm:"column:ocr_status;size:32"`
	LLMStatus     string    `gorm:"column:llm_status;size:32"`
	OCRText       string    `gorm:"column:ocr_text;type:text"`
	PendingText   string    `gorm:"column:pending_text;type:text"`
	ConfirmedText string    `gorm:"column:confirmed_text;type:text"`
	Preference    string    `gorm:"column:preference;size:32"`
	ErrorMessage  string    `gorm:"column:error_message;type:text"`
	StatusReads   int       `gorm:"column:status_reads"`
	ReadyAfter    int       `gorm:"column:ready_after"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (AnalysisRecord) TableName() string {
	return "analyses"
}

// Repository provides persistence APIs for analyses.
type Repository interface {
	Create(ctx context.Context, record *AnalysisRecord) error
	Save(ctx context.Context, record *AnalysisRecord) error
	FindByID(ctx context.Context, id string) (*AnalysisRecord, error)
	List(ctx context.Context, offset, limit int) ([]*AnalysisRecord, int64, error)
}

// GormRepository is the PostgreSQL-backed repository.
type GormRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewGormRepository creates a new repository instance.
func NewGormRepository(db *gorm.DB, logger *zap.Logger) *GormRepository {
	return &GormRepository{
		db:             db,
		logger:         logger.Named("analysis_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *GormRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&AnalysisRecord{})
}

// Create persists a new analysis.
func (r *GormRepository) Create(ctx context.Context, record *AnalysisRecord) error {
	return r.executeWithRetry(ctx, "repository.create", record.ID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// Save writes every column of an existing analysis.
func (r *GormRepository) Save(ctx context.Context, record *AnalysisRecord) error {
	return r.executeWithRetry(ctx, "repository.save", record.ID, func() error {
		return r.db.WithContext(ctx).Save(record).Error
	})
}

// FindByID loads a single analysis.
func (r *GormRepository) FindByID(ctx context.Context, id string) (*AnalysisRecord, error) {
	var record AnalysisRecord
	err := r.executeWithRetry(ctx, "repository.find_by_id", id, func() error {
		err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns a page of analyses, newest first, with the total count.
func (r *GormRepository) List(ctx context.Context, offset, limit int) ([]*AnalysisRecord, int64, error) {
	var (
		records []*AnalysisRecord
		total   int64
	)
	err := r.executeWithRetry(ctx, "repository.list", "", func() error {
		if err := r.db.WithContext(ctx).Model(&AnalysisRecord{}).Count(&total).Error; err != nil {
			return err
		}
		return r.db.WithContext(ctx).
			Order("created_at DESC").
			Offset(offset).
			Limit(limit).
			Find(&records).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *GormRepository) executeWithRetry(ctx context.Context, operation, analysisID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, analysisID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, analysisID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return logging.NewOperationError(operation, analysisID, err)
		}
		if !logging.IsTransient(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, analysisID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, analysisID, err)
}

// MemoryRepository keeps analyses in process memory. It backs the reference
// server when no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*AnalysisRecord
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*AnalysisRecord)}
}

func (r *MemoryRepository) Create(ctx context.Context, record *AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return logging.NewOperationError("repository.create", record.ID, errors.New("duplicate id"))
	}
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *MemoryRepository) Save(ctx context.Context, record *AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; !exists {
		return logging.NewOperationError("repository.save", record.ID, ErrNotFound)
	}
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, logging.NewOperationError("repository.find_by_id", id, ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

func (r *MemoryRepository) List(ctx context.Context, offset, limit int) ([]*AnalysisRecord, int64, error) {
	r.mu.RLock()
	all := make([]*AnalysisRecord, 0, len(r.records))
	for _, record := range r.records {
		copied := *record
		all = append(all, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*AnalysisRecord{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}
