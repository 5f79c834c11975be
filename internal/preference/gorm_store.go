package preference

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is one persisted key/value row.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey;size:64"`
	Value     string    `gorm:"column:value;size:64"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (Setting) TableName() string {
	return "preferences"
}

// GormStore keeps the preference in a relational table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate ensures the schema is available.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return storageError("migrate", s.db.WithContext(ctx).AutoMigrate(&Setting{}))
}

func (s *GormStore) Load(ctx context.Context) (string, error) {
	var row Setting
	err := s.db.WithContext(ctx).First(&row, "key = ?", Key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", storageError("load", err)
	}
	return row.Value, nil
}

func (s *GormStore) Save(ctx context.Context, value string) error {
	row := Setting{Key: Key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	return storageError("save", err)
}
