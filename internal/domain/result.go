package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingStatus is the final outcome of processing one candidate in a batch.
type ProcessingStatus string

const (
	ProcessingAdded                   ProcessingStatus = "ADDED"
	ProcessingSkippedCustomer         ProcessingStatus = "SKIPPED_CUSTOMER_PROTECTED"
	ProcessingSkippedNoTarget         ProcessingStatus = "SKIPPED_NO_TARGET"
	ProcessingSkippedEnrichmentFailed ProcessingStatus = "SKIPPED_ENRICHMENT_FAILED"
	ProcessingSkippedDuplicate        ProcessingStatus = "SKIPPED_DUPLICATE"
	ProcessingSkippedSuppressed       ProcessingStatus = "SKIPPED_SUPPRESSED"
	ProcessingSkippedChannelLimit     ProcessingStatus = "SKIPPED_CHANNEL_LIMIT"
	ProcessingError                   ProcessingStatus = "ERROR"
)

func (s ProcessingStatus) String() string { return string(s) }

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case ProcessingAdded, ProcessingSkippedCustomer, ProcessingSkippedNoTarget,
		ProcessingSkippedEnrichmentFailed, ProcessingSkippedDuplicate,
		ProcessingSkippedSuppressed, ProcessingSkippedChannelLimit, ProcessingError:
		return true
	}
	return false
}

// IsSkip reports whether the outcome counts against the batch skipped counter.
func (s ProcessingStatus) IsSkip() bool {
	switch s {
	case ProcessingSkippedCustomer, ProcessingSkippedNoTarget,
		ProcessingSkippedEnrichmentFailed, ProcessingSkippedDuplicate,
		ProcessingSkippedSuppressed, ProcessingSkippedChannelLimit:
		return true
	}
	return false
}

func ParseProcessingStatusFromString(s string) (ProcessingStatus, error) {
	st := ProcessingStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid processing status %q", ErrValidation, s)
	}
	return st, nil
}

// ProcessingResult is the immutable audit record for one candidate in one batch.
type ProcessingResult struct {
	ID               string
	BatchID          string
	ContactID        string
	Channel          string
	Status           ProcessingStatus
	LeadID           *string
	SkipReason       *string
	Error            *string
	Enrichment       *Enrichment
	EnrichmentMillis int64
	CRMOrgID         *string
	CreatedAt        time.Time
}

func (r *ProcessingResult) Validate() error {
	if strings.TrimSpace(r.BatchID) == "" {
		return fmt.Errorf("%w: result batch id is required", ErrValidation)
	}
	if strings.TrimSpace(r.ContactID) == "" {
		return fmt.Errorf("%w: result contact id is required", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid processing status %q", ErrValidation, r.Status)
	}
	return nil
}

// GateDecision is the eligibility gate verdict for a candidate. CRMOrgID
// carries an organization ID discovered during the CRM check, if any, so it
// can be written back and audited even when the candidate passes.
type GateDecision struct {
	Eligible bool
	Status   ProcessingStatus
	Reason   string
	CRMOrgID string
}

// PassDecision is the decision for a candidate that cleared every gate check.
func PassDecision(crmOrgID string) GateDecision {
	return GateDecision{Eligible: true, CRMOrgID: crmOrgID}
}

// SkipDecision is the decision for a candidate rejected by a gate check.
func SkipDecision(status ProcessingStatus, reason string) GateDecision {
	return GateDecision{Status: status, Reason: reason}
}
