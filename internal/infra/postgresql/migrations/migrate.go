package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/prospectly/assignment-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_companies",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.CompanyModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_companies_status_size ON companies (status, size_tier)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.CompanyModel{})
			},
		},
		{
			ID: "000002_create_contacts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ContactModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts (company_id)`,
					`CREATE INDEX IF NOT EXISTS idx_contacts_selection ON contacts (disqualified, campaign_id) WHERE campaign_id IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts (LOWER(email))`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ContactModel{})
			},
		},
		{
			ID: "000003_create_outreach_channels",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.ChannelModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ChannelModel{})
			},
		},
		{
			ID: "000004_create_suppression_entries",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.SuppressionEntryModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_suppression_lookup ON suppression_entries (LOWER(value), type) WHERE active`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SuppressionEntryModel{})
			},
		},
		{
			ID: "000005_create_assignment_batches",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_batches_resumable ON assignment_batches (started_at DESC) WHERE status = 'PROCESSING' AND orchestration_id IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_batches_lead_limited ON assignment_batches (updated_at DESC) WHERE status = 'LEAD_LIMIT_REACHED'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BatchModel{})
			},
		},
		{
			ID: "000006_create_processing_results",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ProcessingResultModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_results_batch_id ON processing_results (batch_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ProcessingResultModel{})
			},
		},
		{
			ID: "000007_create_pipeline_settings",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.SettingsModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SettingsModel{})
			},
		},
		{
			ID: "000008_create_candidate_pool_view",
			Migrate: func(tx *gorm.DB) error {
				// Precomputed primary selection path. The selector re-applies
				// the eligibility predicate client-side, so the view only has
				// to be a superset-safe prefilter.
				return tx.Exec(`CREATE OR REPLACE VIEW candidate_pool AS
					SELECT
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
						c.created_at,
						co.id AS company_id,
						co.name AS company_name,
						co.website AS company_website,
						co.location AS company_location,
						co.size_tier AS company_size_tier,
						co.status AS company_status,
						co.crm_org_id AS company_crm_org_id,
						co.routing_key
					FROM contacts c
					JOIN companies co ON co.id = c.company_id
					WHERE c.campaign_id IS NULL
					  AND NOT c.disqualified
					  AND co.crm_org_id IS NULL
					  AND co.status = 'PROSPECT'
					  AND co.size_tier <> 'ENTERPRISE'`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP VIEW IF EXISTS candidate_pool`).Error
			},
		},
	})

	return m.Migrate()
}
