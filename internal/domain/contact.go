package domain

import (
	"fmt"
	"strings"
	"time"
)

// CompanyStatus represents the lifecycle state of a company in the funnel.
type CompanyStatus string

const (
	CompanyStatusProspect     CompanyStatus = "PROSPECT"
	CompanyStatusInOutreach   CompanyStatus = "IN_OUTREACH"
	CompanyStatusCustomer     CompanyStatus = "CUSTOMER"
	CompanyStatusDisqualified CompanyStatus = "DISQUALIFIED"
)

func (s CompanyStatus) String() string { return string(s) }

func (s CompanyStatus) IsValid() bool {
	switch s {
	case CompanyStatusProspect, CompanyStatusInOutreach, CompanyStatusCustomer, CompanyStatusDisqualified:
		return true
	}
	return false
}

// SizeTier classifies company headcount. Enterprise-tier companies are
// excluded from automatic assignment.
type SizeTier string

const (
	SizeTierMicro      SizeTier = "MICRO"
	SizeTierSmall      SizeTier = "SMALL"
	SizeTierMedium     SizeTier = "MEDIUM"
	SizeTierLarge      SizeTier = "LARGE"
	SizeTierEnterprise SizeTier = "ENTERPRISE"
)

func (t SizeTier) String() string { return string(t) }

func (t SizeTier) IsValid() bool {
	switch t {
	case SizeTierMicro, SizeTierSmall, SizeTierMedium, SizeTierLarge, SizeTierEnterprise:
		return true
	}
	return false
}

// OutreachState tracks whether a contact has been handed to the outreach platform.
type OutreachState string

const (
	OutreachStateNone       OutreachState = "NONE"
	OutreachStateInOutreach OutreachState = "IN_OUTREACH"
)

func (s OutreachState) String() string { return string(s) }

func (s OutreachState) IsValid() bool {
	switch s {
	case OutreachStateNone, OutreachStateInOutreach:
		return true
	}
	return false
}

// Company is the account-level entity contacts belong to.
type Company struct {
	ID         string
	Name       string
	Website    string
	Location   string
	SizeTier   SizeTier
	Status     CompanyStatus
	RoutingKey string
	CRMOrgID   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Contact is a person that can be enrolled in an outreach campaign.
type Contact struct {
	ID              string
	CompanyID       string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Title           string
	ProfileURL      string
	CampaignID      *string
	LeadID          *string
	OutreachState   OutreachState
	RetryCount      int
	Disqualified    bool
	ProcessingNotes string
	LastTouchedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Contact) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: contact email is required", ErrValidation)
	}
	if strings.TrimSpace(c.CompanyID) == "" {
		return fmt.Errorf("%w: contact company id is required", ErrValidation)
	}
	if c.OutreachState != "" && !c.OutreachState.IsValid() {
		return fmt.Errorf("%w: invalid outreach state %q", ErrValidation, c.OutreachState)
	}
	return nil
}
