package preference

import (
	"context"

	"go.uber.org/zap"
)

// Service is the best-effort preference capability. It never reports store
// failures to callers.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService wraps store. A nil store behaves like an empty MemoryStore.
func NewService(store Store, logger *zap.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("preference")}
}

// Get returns the stored preference, or Default when nothing valid is stored
// or the store is unavailable.
func (s *Service) Get(ctx context.Context) Preference {
	raw, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Debug("preference load failed", zap.Error(err))
		return Default
	}
	p, ok := Parse(raw)
	if !ok {
		s.logger.Debug("ignoring unknown stored preference", zap.String("value", raw))
		return Default
	}
	return p
}

// Set persists value when it names a known preference. Unknown values and
// store failures are dropped.
func (s *Service) Set(ctx context.Context, value string) {
	p, ok := Parse(value)
	if !ok {
		s.logger.Debug("ignoring unknown preference", zap.String("value", value))
		return
	}
	if err := s.store.Save(ctx, string(p)); err != nil {
		s.logger.Debug("preference save failed", zap.Error(err))
	}
}
