package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsRowID = 1

type SettingsRepository interface {
	// Get returns stored pipeline settings, or domain.ErrNotFound when the
	// row has never been written. Callers fall back to domain.DefaultSettings.
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, s *domain.Settings) error
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	var model SettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settingsModelToDomain(&model), nil
}

func (r *GormSettingsRepo) Update(ctx context.Context, s *domain.Settings) error {
	if s == nil {
		return domain.ErrValidation
	}
	if err := s.Validate(); err != nil {
		return err
	}

	model := SettingsModel{
		ID:               settingsRowID,
		MaxTotalContacts: s.MaxTotalContacts,
		MaxPerChannel:    s.MaxPerChannel,
		Enabled:          s.Enabled,
		DelayMs:          int(s.Delay / time.Millisecond),
		UpdatedAt:        time.Now().UTC(),
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}
