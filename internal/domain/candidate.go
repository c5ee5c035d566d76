package domain

import (
	"fmt"
	"strings"
)

// Candidate is a read-only contact snapshot taken at selection time. It carries
// the denormalized channel and company context the rest of the pipeline needs,
// so processing never re-reads the contact row mid-batch.
type Candidate struct {
	ContactID       string
	Channel         string
	CampaignID      string
	CompanyID       string
	CompanyName     string
	CompanyWebsite  string
	CompanySize     string
	CompanyLocation string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Title           string
	ProfileURL      string
	JobPostingNote  string
}

func (c Candidate) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

func (c Candidate) Validate() error {
	if strings.TrimSpace(c.ContactID) == "" {
		return fmt.Errorf("%w: candidate contact id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: candidate email is required", ErrValidation)
	}
	return nil
}

// SelectionLimits caps one selection call. Channels optionally scopes selection
// to a subset of routing channels; empty means all enabled channels.
type SelectionLimits struct {
	MaxTotal      int
	MaxPerChannel int
	Channels      []string
}

// CandidateRow is a raw selection row before the eligibility predicate runs.
// Both the precomputed-pool path and the fallback join path produce this shape,
// so one predicate filters both.
type CandidateRow struct {
	Candidate

	CompanyStatus     CompanyStatus
	CompanySizeTier   SizeTier
	CompanyCRMOrgID   *string
	ContactCampaignID *string
	RoutingKey        string
	Disqualified      bool
}
