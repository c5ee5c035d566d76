package repository

import (
	"context"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
)

type CompanyRepository interface {
	// SetCRMOrgID writes a discovered CRM organization ID onto the company.
	// Writing the same ID again is a no-op, so gate write-backs can repeat.
	SetCRMOrgID(ctx context.Context, companyID string, orgID string) error
}

type GormCompanyRepo struct {
	db *gorm.DB
}

func NewGormCompanyRepo(db *gorm.DB) *GormCompanyRepo {
	return &GormCompanyRepo{db: db}
}

func (r *GormCompanyRepo) SetCRMOrgID(ctx context.Context, companyID string, orgID string) error {
	result := r.db.WithContext(ctx).
		Model(&CompanyModel{}).
		Where("id = ?", companyID).
		Update("crm_org_id", orgID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
