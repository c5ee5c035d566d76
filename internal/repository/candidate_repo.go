package repository

import (
	"context"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
)

// candidateRowColumns is the shared projection both selection paths produce,
// so the same eligibility predicate filters rows from either source.
const candidateRowColumns = `
	c.id AS contact_id,
	c.first_name,
	c.last_name,
	c.email,
	c.phone,
	c.title,
	c.profile_url,
	c.job_posting_note,
	c.campaign_id AS contact_campaign_id,
	c.disqualified,
	co.id AS company_id,
	co.name AS company_name,
	co.website AS company_website,
	co.location AS company_location,
	co.size_tier AS company_size_tier,
	co.status AS company_status,
	co.crm_org_id AS company_crm_org_id,
	co.routing_key`

// CandidateSourceRepository reads raw selection rows. FromPool reads the
// precomputed candidate_pool view; FromJoin re-derives the same shape with a
// direct join when the view is unavailable.
type CandidateSourceRepository interface {
	FromPool(ctx context.Context, limit int) ([]domain.CandidateRow, error)
	FromJoin(ctx context.Context, limit int) ([]domain.CandidateRow, error)
	// ByContactIDs reloads rows for a resumed batch, preserving the order of ids.
	ByContactIDs(ctx context.Context, ids []string) ([]domain.CandidateRow, error)
}

type candidateRowModel struct {
	ContactID         string
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	Title             string
	ProfileURL        string
	JobPostingNote    string
	ContactCampaignID *string
	Disqualified      bool
	CompanyID         string
	CompanyName       string
	CompanyWebsite    string
	CompanyLocation   string
	CompanySizeTier   domain.SizeTier
	CompanyStatus     domain.CompanyStatus
	CompanyCRMOrgID   *string
	RoutingKey        string
}

type GormCandidateSourceRepo struct {
	db *gorm.DB
}

func NewGormCandidateSourceRepo(db *gorm.DB) *GormCandidateSourceRepo {
	return &GormCandidateSourceRepo{db: db}
}

func (r *GormCandidateSourceRepo) FromPool(ctx context.Context, limit int) ([]domain.CandidateRow, error) {
	var models []candidateRowModel
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM candidate_pool ORDER BY created_at ASC LIMIT ?`, limit).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}
	return rowModelsToDomain(models), nil
}

func (r *GormCandidateSourceRepo) FromJoin(ctx context.Context, limit int) ([]domain.CandidateRow, error) {
	var models []candidateRowModel
	err := r.db.WithContext(ctx).
		Raw(`SELECT `+candidateRowColumns+`
			FROM contacts c
			JOIN companies co ON co.id = c.company_id
			ORDER BY c.created_at ASC
			LIMIT ?`, limit).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}
	return rowModelsToDomain(models), nil
}

func (r *GormCandidateSourceRepo) ByContactIDs(ctx context.Context, ids []string) ([]domain.CandidateRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []candidateRowModel
	err := r.db.WithContext(ctx).
		Raw(`SELECT `+candidateRowColumns+`
			FROM contacts c
			JOIN companies co ON co.id = c.company_id
			WHERE c.id IN ?`, ids).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.CandidateRow, len(models))
	for _, row := range rowModelsToDomain(models) {
		byID[row.ContactID] = row
	}

	ordered := make([]domain.CandidateRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

func rowModelsToDomain(models []candidateRowModel) []domain.CandidateRow {
	rows := make([]domain.CandidateRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, domain.CandidateRow{
			Candidate: domain.Candidate{
				ContactID:       m.ContactID,
				CompanyID:       m.CompanyID,
				CompanyName:     m.CompanyName,
				CompanyWebsite:  m.CompanyWebsite,
				CompanySize:     m.CompanySizeTier.String(),
				CompanyLocation: m.CompanyLocation,
				FirstName:       m.FirstName,
				LastName:        m.LastName,
				Email:           m.Email,
				Phone:           m.Phone,
				Title:           m.Title,
				ProfileURL:      m.ProfileURL,
				JobPostingNote:  m.JobPostingNote,
			},
			CompanyStatus:     m.CompanyStatus,
			CompanySizeTier:   m.CompanySizeTier,
			CompanyCRMOrgID:   m.CompanyCRMOrgID,
			ContactCampaignID: m.ContactCampaignID,
			RoutingKey:        m.RoutingKey,
			Disqualified:      m.Disqualified,
		})
	}
	return rows
}
