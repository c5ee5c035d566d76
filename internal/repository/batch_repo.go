package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressDelta is the counter change for one processed candidate. Exactly one
// field is 1, the others 0, keeping processed == added + skipped + errors.
type ProgressDelta struct {
	Added   int
	Skipped int
	Errors  int
}

type BatchRepository interface {
	Upsert(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	GetStatus(ctx context.Context, id string) (domain.BatchStatus, error)
	// FindResumable returns the most recent PROCESSING batch that does not
	// belong to a parallel orchestration group.
	FindResumable(ctx context.Context) (*domain.Batch, error)
	// LastLeadLimited returns the most recent batch that hit the external
	// lead limit, for the circuit breaker.
	LastLeadLimited(ctx context.Context) (*domain.Batch, error)
	// AppendProcessed atomically appends a contact ID to the processed set
	// and applies the counter delta.
	AppendProcessed(ctx context.Context, id string, contactID string, delta ProgressDelta) error
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, lastError *string) error
	Finalize(ctx context.Context, id string, status domain.BatchStatus, completedAt time.Time) error
	List(ctx context.Context, limit int) ([]domain.Batch, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Upsert(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) GetStatus(ctx context.Context, id string) (domain.BatchStatus, error) {
	var status domain.BatchStatus
	err := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Select("status").
		Where("id = ?", id).
		Scan(&status).Error
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", domain.ErrNotFound
	}
	return status, nil
}

func (r *GormBatchRepo) FindResumable(ctx context.Context) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND orchestration_id IS NULL", domain.BatchStatusProcessing).
		Order("started_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) LastLeadLimited(ctx context.Context) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.BatchStatusLeadLimitReached).
		Order("updated_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) AppendProcessed(ctx context.Context, id string, contactID string, delta ProgressDelta) error {
	encoded, err := json.Marshal([]string{contactID})
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status = ?", id, domain.BatchStatusProcessing).
		Updates(map[string]any{
			"processed_ids": gorm.Expr("processed_ids || ?::jsonb", string(encoded)),
			"processed":     gorm.Expr("processed + 1"),
			"added":         gorm.Expr("added + ?", delta.Added),
			"skipped":       gorm.Expr("skipped + ?", delta.Skipped),
			"errors":        gorm.Expr("errors + ?", delta.Errors),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		// Some deployments sit behind poolers that reject the jsonb concat
		// expression; fall back to read-modify-write.
		return r.appendProcessedFallback(ctx, id, contactID, delta)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormBatchRepo) appendProcessedFallback(ctx context.Context, id string, contactID string, delta ProgressDelta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model BatchModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if model.Status != domain.BatchStatusProcessing {
			return domain.ErrConflict
		}

		var processed []string
		_ = json.Unmarshal(model.ProcessedIDs, &processed)
		for _, existing := range processed {
			if existing == contactID {
				// Already appended by an earlier retry; keep counters as-is.
				return nil
			}
		}
		processed = append(processed, contactID)

		return tx.Model(&BatchModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"processed_ids": mustJSON(processed),
				"processed":     model.Processed + 1,
				"added":         model.Added + delta.Added,
				"skipped":       model.Skipped + delta.Skipped,
				"errors":        model.Errors + delta.Errors,
				"updated_at":    time.Now().UTC(),
			}).Error
	})
}

// UpdateStatus moves a live batch to a new status. Terminal statuses are
// never overwritten: a failure stamp racing an operator cancellation loses,
// reported as ErrConflict.
func (r *GormBatchRepo) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, lastError *string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if lastError != nil {
		updates["last_error"] = *lastError
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status NOT IN ?", id, []domain.BatchStatus{
			domain.BatchStatusCompleted,
			domain.BatchStatusFailed,
			domain.BatchStatusCancelled,
			domain.BatchStatusLeadLimitReached,
		}).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&BatchModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *GormBatchRepo) Finalize(ctx context.Context, id string, status domain.BatchStatus, completedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status NOT IN ?", id, []domain.BatchStatus{
			domain.BatchStatusCompleted,
			domain.BatchStatusFailed,
			domain.BatchStatusCancelled,
			domain.BatchStatusLeadLimitReached,
		}).
		Updates(map[string]any{
			"status":       status,
			"completed_at": completedAt,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormBatchRepo) List(ctx context.Context, limit int) ([]domain.Batch, error) {
	if limit < 1 {
		limit = 50
	}

	var models []BatchModel
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}
