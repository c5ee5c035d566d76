package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Contacts are permanently disqualified after this many cumulative transient failures.
const MaxContactRetries = 3

type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	// LinkCampaign records the destination campaign on the contact without
	// touching outreach state. Used on duplicate-skip so the contact is not
	// re-selected even though no new lead was created.
	LinkCampaign(ctx context.Context, id string, campaignID string) error
	// MarkEnrolled links the campaign, stores the external lead ID, flips the
	// contact into outreach, and stamps the touch time.
	MarkEnrolled(ctx context.Context, id string, campaignID string, leadID string, at time.Time) error
	// IncrementRetry bumps the transient-failure counter and returns the new
	// count. Disqualifies the contact when the counter reaches MaxContactRetries.
	IncrementRetry(ctx context.Context, id string, note string) (int, error)
	Disqualify(ctx context.Context, id string, note string) error
}

type GormContactRepo struct {
	db *gorm.DB
}

func NewGormContactRepo(db *gorm.DB) *GormContactRepo {
	return &GormContactRepo{db: db}
}

func (r *GormContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	var model ContactModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return contactModelToDomain(&model), nil
}

func (r *GormContactRepo) LinkCampaign(ctx context.Context, id string, campaignID string) error {
	result := r.db.WithContext(ctx).
		Model(&ContactModel{}).
		Where("id = ?", id).
		Update("campaign_id", campaignID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormContactRepo) MarkEnrolled(ctx context.Context, id string, campaignID string, leadID string, at time.Time) error {
	updates := map[string]any{
		"campaign_id":     campaignID,
		"outreach_state":  domain.OutreachStateInOutreach,
		"last_touched_at": at,
	}
	if strings.TrimSpace(leadID) != "" {
		updates["lead_id"] = leadID
	}

	result := r.db.WithContext(ctx).
		Model(&ContactModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormContactRepo) IncrementRetry(ctx context.Context, id string, note string) (int, error) {
	var newCount int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ContactModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		newCount = model.RetryCount + 1
		updates := map[string]any{
			"retry_count":      newCount,
			"processing_notes": appendNote(model.ProcessingNotes, note),
		}
		if newCount >= MaxContactRetries {
			updates["disqualified"] = true
		}

		return tx.Model(&ContactModel{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

func (r *GormContactRepo) Disqualify(ctx context.Context, id string, note string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ContactModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		return tx.Model(&ContactModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"disqualified":     true,
				"processing_notes": appendNote(model.ProcessingNotes, note),
			}).Error
	})
}

func appendNote(existing string, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	stamped := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), note)
	if strings.TrimSpace(existing) == "" {
		return stamped
	}
	return existing + "\n" + stamped
}
