package domain

import "strings"

// Personalization paragraphs are clipped so campaign templates never overflow.
const MaxPersonalizationLen = 600

const defaultEnrichmentFallback = "General"

// Enrichment is the structured payload produced by the text-generation call
// for a single candidate. Generated fresh per candidate, never cached.
type Enrichment struct {
	JobTitle            string   `json:"job_title"`
	CompanyName         string   `json:"company_name"`
	CompanyDescription  string   `json:"company_description"`
	Category            string   `json:"category"`
	CategoryConfidence  float64  `json:"category_confidence"`
	CustomCategory      string   `json:"custom_category,omitempty"`
	Sector              string   `json:"sector"`
	Region              string   `json:"region"`
	RegionInsight       string   `json:"region_insight"`
	PainPoint           string   `json:"pain_point"`
	ComparableCompanies []string `json:"comparable_companies"`
	Personalization     string   `json:"personalization"`
}

// ApplyDefaults fills required fields so downstream consumers never see empty
// values, and clips the personalization paragraph to its bound.
func (e *Enrichment) ApplyDefaults(candidate Candidate) {
	if e == nil {
		return
	}

	if strings.TrimSpace(e.JobTitle) == "" {
		e.JobTitle = candidate.Title
	}
	if strings.TrimSpace(e.CompanyName) == "" {
		e.CompanyName = candidate.CompanyName
	}
	if strings.TrimSpace(e.Category) == "" {
		e.Category = defaultEnrichmentFallback
	}
	if strings.TrimSpace(e.Sector) == "" {
		e.Sector = defaultEnrichmentFallback
	}
	if strings.TrimSpace(e.Region) == "" {
		e.Region = candidate.CompanyLocation
	}
	if e.ComparableCompanies == nil {
		e.ComparableCompanies = []string{}
	}

	if runes := []rune(e.Personalization); len(runes) > MaxPersonalizationLen {
		e.Personalization = string(runes[:MaxPersonalizationLen])
	}
}
