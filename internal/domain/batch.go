package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of an assignment batch.
type BatchStatus string

const (
	BatchStatusPending          BatchStatus = "PENDING"
	BatchStatusSelecting        BatchStatus = "SELECTING"
	BatchStatusProcessing       BatchStatus = "PROCESSING"
	BatchStatusCompleted        BatchStatus = "COMPLETED"
	BatchStatusFailed           BatchStatus = "FAILED"
	BatchStatusCancelled        BatchStatus = "CANCELLED"
	BatchStatusLeadLimitReached BatchStatus = "LEAD_LIMIT_REACHED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusPending, BatchStatusSelecting, BatchStatusProcessing,
		BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled,
		BatchStatusLeadLimitReached:
		return true
	}
	return false
}

// IsTerminal reports whether counters are frozen for this status.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled, BatchStatusLeadLimitReached:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// Batch is one execution of the assignment pipeline. The candidate ID list is
// fixed at creation; the processed ID set only grows. Everything needed to
// resume a batch after a crash lives on this record.
type Batch struct {
	ID               string
	Status           BatchStatus
	OrchestrationID  *string
	Total            int
	Processed        int
	Added            int
	Skipped          int
	Errors           int
	ChannelBreakdown map[string]int
	CandidateIDs     []string
	ProcessedIDs     []string
	LastError        *string
	StartedAt        time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	if !b.CountersConsistent() {
		return fmt.Errorf("%w: batch counters are inconsistent", ErrValidation)
	}
	return nil
}

// CountersConsistent checks processed == added + skipped + errors and processed <= total.
func (b *Batch) CountersConsistent() bool {
	return b.Processed == b.Added+b.Skipped+b.Errors && b.Processed <= b.Total
}

// HasProcessed reports whether a contact ID is already in the processed set.
func (b *Batch) HasProcessed(contactID string) bool {
	for _, id := range b.ProcessedIDs {
		if id == contactID {
			return true
		}
	}
	return false
}

// RemainingIDs returns candidate IDs not yet processed, in selection order.
func (b *Batch) RemainingIDs() []string {
	if len(b.CandidateIDs) == 0 {
		return nil
	}

	processed := make(map[string]struct{}, len(b.ProcessedIDs))
	for _, id := range b.ProcessedIDs {
		processed[id] = struct{}{}
	}

	remaining := make([]string, 0, len(b.CandidateIDs)-len(b.ProcessedIDs))
	for _, id := range b.CandidateIDs {
		if _, ok := processed[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}
