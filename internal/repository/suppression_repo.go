package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
)

type SuppressionRepository interface {
	// FindActive returns the active entry matching value and type, or
	// domain.ErrNotFound when no entry matches.
	FindActive(ctx context.Context, value string, typ domain.SuppressionType) (*domain.SuppressionEntry, error)
	Create(ctx context.Context, entry *domain.SuppressionEntry) error
	List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error)
}

type GormSuppressionRepo struct {
	db *gorm.DB
}

func NewGormSuppressionRepo(db *gorm.DB) *GormSuppressionRepo {
	return &GormSuppressionRepo{db: db}
}

func (r *GormSuppressionRepo) FindActive(ctx context.Context, value string, typ domain.SuppressionType) (*domain.SuppressionEntry, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return nil, domain.ErrNotFound
	}

	var model SuppressionEntryModel
	err := r.db.WithContext(ctx).
		Where("LOWER(value) = ? AND type = ? AND active", normalized, typ).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return suppressionModelToDomain(&model), nil
}

func (r *GormSuppressionRepo) Create(ctx context.Context, entry *domain.SuppressionEntry) error {
	model := suppressionModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if entry != nil {
		*entry = *suppressionModelToDomain(model)
	}
	return nil
}

func (r *GormSuppressionRepo) List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	if limit < 1 {
		limit = 100
	}

	var models []SuppressionEntryModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.SuppressionEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *suppressionModelToDomain(&models[i]))
	}
	return entries, nil
}
