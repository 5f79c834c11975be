package usecase

import (
	"context"
	"time"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// History returns a page of analyses, newest first. Out-of-range paging
// parameters are clamped.
func (uc *AnalysisUseCase) History(ctx context.Context, page, limit int) (*analysis.HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, total, err := uc.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, logging.NewOperationError("usecase.history", "", err)
	}

	items := make([]analysis.HistoryItem, 0, len(records))
	for _, record := range records {
		items = append(items, analysis.HistoryItem{
			ID:        record.ID,
			CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return &analysis.HistoryPage{
		Total: total,
		Page:  int64(page),
		Limit: int64(limit),
		Items: items,
	}, nil
}
