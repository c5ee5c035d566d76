package repository

import (
	"encoding/json"
	"time"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/datatypes"
)

// BatchModel is the persistence model for the assignment_batches table.
// CandidateIDs is fixed at creation; ProcessedIDs only ever grows.
type BatchModel struct {
	ID               string             `gorm:"type:uuid;primaryKey"`
	Status           domain.BatchStatus `gorm:"type:varchar(24);not null"`
	OrchestrationID  *string            `gorm:"type:uuid"`
	Total            int                `gorm:"not null;default:0"`
	Processed        int                `gorm:"not null;default:0"`
	Added            int                `gorm:"not null;default:0"`
	Skipped          int                `gorm:"not null;default:0"`
	Errors           int                `gorm:"not null;default:0"`
	ChannelBreakdown datatypes.JSON     `gorm:"type:jsonb"`
	CandidateIDs     datatypes.JSON     `gorm:"type:jsonb;not null;default:'[]'"`
	ProcessedIDs     datatypes.JSON     `gorm:"type:jsonb;not null;default:'[]'"`
	LastError        *string            `gorm:"type:text"`
	StartedAt        time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

func (BatchModel) TableName() string {
	return "assignment_batches"
}

// CompanyModel is the persistence model for companies.
type CompanyModel struct {
	ID         string               `gorm:"type:uuid;primaryKey"`
	Name       string               `gorm:"type:varchar(255);not null"`
	Website    string               `gorm:"type:varchar(255)"`
	Location   string               `gorm:"type:varchar(255)"`
	SizeTier   domain.SizeTier      `gorm:"type:varchar(16);not null"`
	Status     domain.CompanyStatus `gorm:"type:varchar(16);not null"`
	RoutingKey string               `gorm:"type:varchar(64)"`
	CRMOrgID   *string              `gorm:"type:varchar(64)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CompanyModel) TableName() string {
	return "companies"
}

// ContactModel is the persistence model for contacts.
type ContactModel struct {
	ID              string               `gorm:"type:uuid;primaryKey"`
	CompanyID       string               `gorm:"type:uuid;not null"`
	FirstName       string               `gorm:"type:varchar(128)"`
	LastName        string               `gorm:"type:varchar(128)"`
	Email           string               `gorm:"type:varchar(255);not null"`
	Phone           string               `gorm:"type:varchar(64)"`
	Title           string               `gorm:"type:varchar(255)"`
	ProfileURL      string               `gorm:"type:varchar(512)"`
	JobPostingNote  string               `gorm:"type:text"`
	CampaignID      *string              `gorm:"type:varchar(64)"`
	LeadID          *string              `gorm:"type:varchar(64)"`
	OutreachState   domain.OutreachState `gorm:"type:varchar(16);not null;default:'NONE'"`
	RetryCount      int                  `gorm:"not null;default:0"`
	Disqualified    bool                 `gorm:"not null;default:false"`
	ProcessingNotes string               `gorm:"type:text"`
	LastTouchedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

// ProcessingResultModel is the persistence model for processing_results.
// Rows are append-only; nothing updates them after creation.
type ProcessingResultModel struct {
	ID               string                  `gorm:"type:uuid;primaryKey"`
	BatchID          string                  `gorm:"type:uuid;not null"`
	ContactID        string                  `gorm:"type:uuid;not null"`
	Channel          string                  `gorm:"type:varchar(64)"`
	Status           domain.ProcessingStatus `gorm:"type:varchar(32);not null"`
	LeadID           *string                 `gorm:"type:varchar(64)"`
	SkipReason       *string                 `gorm:"type:text"`
	Error            *string                 `gorm:"type:text"`
	Enrichment       datatypes.JSON          `gorm:"type:jsonb"`
	EnrichmentMillis int64                   `gorm:"not null;default:0"`
	CRMOrgID         *string                 `gorm:"type:varchar(64)"`
	CreatedAt        time.Time
}

func (ProcessingResultModel) TableName() string {
	return "processing_results"
}

// SuppressionEntryModel is the persistence model for suppression_entries.
type SuppressionEntryModel struct {
	ID        string                 `gorm:"type:uuid;primaryKey"`
	Value     string                 `gorm:"type:varchar(255);not null"`
	Type      domain.SuppressionType `gorm:"type:varchar(16);not null"`
	Reason    string                 `gorm:"type:text"`
	Active    bool                   `gorm:"not null;default:true"`
	CreatedAt time.Time
}

func (SuppressionEntryModel) TableName() string {
	return "suppression_entries"
}

// ChannelModel is the persistence model for outreach_channels.
type ChannelModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Name       string `gorm:"type:varchar(64);not null;uniqueIndex"`
	RoutingKey string `gorm:"type:varchar(64);not null;uniqueIndex"`
	CampaignID string `gorm:"type:varchar(64);not null"`
	Enabled    bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ChannelModel) TableName() string {
	return "outreach_channels"
}

// SettingsModel is the single-row persistence model for pipeline settings.
type SettingsModel struct {
	ID               int  `gorm:"primaryKey"`
	MaxTotalContacts int  `gorm:"not null"`
	MaxPerChannel    int  `gorm:"not null"`
	Enabled          bool `gorm:"not null"`
	DelayMs          int  `gorm:"not null"`
	UpdatedAt        time.Time
}

func (SettingsModel) TableName() string {
	return "pipeline_settings"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:               b.ID,
		Status:           b.Status,
		OrchestrationID:  b.OrchestrationID,
		Total:            b.Total,
		Processed:        b.Processed,
		Added:            b.Added,
		Skipped:          b.Skipped,
		Errors:           b.Errors,
		ChannelBreakdown: mustJSON(b.ChannelBreakdown),
		CandidateIDs:     mustJSON(stringsOrEmpty(b.CandidateIDs)),
		ProcessedIDs:     mustJSON(stringsOrEmpty(b.ProcessedIDs)),
		LastError:        b.LastError,
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	batch := &domain.Batch{
		ID:              m.ID,
		Status:          m.Status,
		OrchestrationID: m.OrchestrationID,
		Total:           m.Total,
		Processed:       m.Processed,
		Added:           m.Added,
		Skipped:         m.Skipped,
		Errors:          m.Errors,
		LastError:       m.LastError,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		UpdatedAt:       m.UpdatedAt,
	}

	_ = json.Unmarshal(m.ChannelBreakdown, &batch.ChannelBreakdown)
	_ = json.Unmarshal(m.CandidateIDs, &batch.CandidateIDs)
	_ = json.Unmarshal(m.ProcessedIDs, &batch.ProcessedIDs)

	return batch
}

func resultModelFromDomain(r *domain.ProcessingResult) *ProcessingResultModel {
	if r == nil {
		return nil
	}

	model := &ProcessingResultModel{
		ID:               r.ID,
		BatchID:          r.BatchID,
		ContactID:        r.ContactID,
		Channel:          r.Channel,
		Status:           r.Status,
		LeadID:           r.LeadID,
		SkipReason:       r.SkipReason,
		Error:            r.Error,
		EnrichmentMillis: r.EnrichmentMillis,
		CRMOrgID:         r.CRMOrgID,
		CreatedAt:        r.CreatedAt,
	}

	if r.Enrichment != nil {
		model.Enrichment = mustJSON(r.Enrichment)
	}

	return model
}

func resultModelToDomain(m *ProcessingResultModel) *domain.ProcessingResult {
	if m == nil {
		return nil
	}

	result := &domain.ProcessingResult{
		ID:               m.ID,
		BatchID:          m.BatchID,
		ContactID:        m.ContactID,
		Channel:          m.Channel,
		Status:           m.Status,
		LeadID:           m.LeadID,
		SkipReason:       m.SkipReason,
		Error:            m.Error,
		EnrichmentMillis: m.EnrichmentMillis,
		CRMOrgID:         m.CRMOrgID,
		CreatedAt:        m.CreatedAt,
	}

	if len(m.Enrichment) > 0 {
		var enrichment domain.Enrichment
		if err := json.Unmarshal(m.Enrichment, &enrichment); err == nil {
			result.Enrichment = &enrichment
		}
	}

	return result
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	if m == nil {
		return nil
	}

	return &domain.Contact{
		ID:              m.ID,
		CompanyID:       m.CompanyID,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		Email:           m.Email,
		Phone:           m.Phone,
		Title:           m.Title,
		ProfileURL:      m.ProfileURL,
		CampaignID:      m.CampaignID,
		LeadID:          m.LeadID,
		OutreachState:   m.OutreachState,
		RetryCount:      m.RetryCount,
		Disqualified:    m.Disqualified,
		ProcessingNotes: m.ProcessingNotes,
		LastTouchedAt:   m.LastTouchedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func suppressionModelFromDomain(e *domain.SuppressionEntry) *SuppressionEntryModel {
	if e == nil {
		return nil
	}

	return &SuppressionEntryModel{
		ID:        e.ID,
		Value:     e.Value,
		Type:      e.Type,
		Reason:    e.Reason,
		Active:    e.Active,
		CreatedAt: e.CreatedAt,
	}
}

func suppressionModelToDomain(m *SuppressionEntryModel) *domain.SuppressionEntry {
	if m == nil {
		return nil
	}

	return &domain.SuppressionEntry{
		ID:        m.ID,
		Value:     m.Value,
		Type:      m.Type,
		Reason:    m.Reason,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}

func channelModelToDomain(m *ChannelModel) *domain.OutreachChannel {
	if m == nil {
		return nil
	}

	return &domain.OutreachChannel{
		ID:         m.ID,
		Name:       m.Name,
		RoutingKey: m.RoutingKey,
		CampaignID: m.CampaignID,
		Enabled:    m.Enabled,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func settingsModelToDomain(m *SettingsModel) *domain.Settings {
	if m == nil {
		return nil
	}

	return &domain.Settings{
		MaxTotalContacts: m.MaxTotalContacts,
		MaxPerChannel:    m.MaxPerChannel,
		Enabled:          m.Enabled,
		Delay:            time.Duration(m.DelayMs) * time.Millisecond,
		UpdatedAt:        m.UpdatedAt,
	}
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func mustJSON(v any) datatypes.JSON {
	encoded, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(encoded)
}
