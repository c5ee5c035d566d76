package repository

import (
	"context"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
)

// ResultRepository is the append-only audit log: one row per candidate per batch.
type ResultRepository interface {
	Create(ctx context.Context, r *domain.ProcessingResult) error
	ByBatchID(ctx context.Context, batchID string) ([]domain.ProcessingResult, error)
}

type GormResultRepo struct {
	db *gorm.DB
}

func NewGormResultRepo(db *gorm.DB) *GormResultRepo {
	return &GormResultRepo{db: db}
}

func (r *GormResultRepo) Create(ctx context.Context, result *domain.ProcessingResult) error {
	model := resultModelFromDomain(result)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if result != nil {
		*result = *resultModelToDomain(model)
	}
	return nil
}

func (r *GormResultRepo) ByBatchID(ctx context.Context, batchID string) ([]domain.ProcessingResult, error) {
	var models []ProcessingResultModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	results := make([]domain.ProcessingResult, 0, len(models))
	for i := range models {
		results = append(results, *resultModelToDomain(&models[i]))
	}
	return results, nil
}
