package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prospectly/assignment-engine/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// BatchStore is the read/cancel surface the batch endpoints need.
type BatchStore interface {
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context, limit int) ([]domain.Batch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, lastError *string) error
}

// ResultStore exposes the per-contact audit log of a batch.
type ResultStore interface {
	ByBatchID(ctx context.Context, batchID string) ([]domain.ProcessingResult, error)
}

type BatchHandler struct {
	batches BatchStore
	results ResultStore
}

func NewBatchHandler(batches BatchStore, results ResultStore) (*BatchHandler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if results == nil {
		return nil, fmt.Errorf("result store is required")
	}
	return &BatchHandler{batches: batches, results: results}, nil
}

func RegisterBatchRoutes(router fiber.Router, batches BatchStore, results ResultStore) error {
	h, err := NewBatchHandler(batches, results)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/batches", h.ListBatches)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Get("/batches/:id/results", h.GetBatchResults)
	v1.Post("/batches/:id/cancel", h.CancelBatch)

	return nil
}

type batchResponse struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	OrchestrationID  *string        `json:"orchestrationId,omitempty"`
	Total            int            `json:"total"`
	Processed        int            `json:"processed"`
	Added            int            `json:"added"`
	Skipped          int            `json:"skipped"`
	Errors           int            `json:"errors"`
	ChannelBreakdown map[string]int `json:"channelBreakdown,omitempty"`
	Remaining        int            `json:"remaining"`
	LastError        *string        `json:"lastError,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

type resultResponse struct {
	ID               string             `json:"id"`
	ContactID        string             `json:"contactId"`
	Channel          string             `json:"channel"`
	Status           string             `json:"status"`
	LeadID           *string            `json:"leadId,omitempty"`
	SkipReason       *string            `json:"skipReason,omitempty"`
	Error            *string            `json:"error,omitempty"`
	Enrichment       *domain.Enrichment `json:"enrichment,omitempty"`
	EnrichmentMillis int64              `json:"enrichmentMillis"`
	CRMOrgID         *string            `json:"crmOrgId,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	batches, err := h.batches.List(c.Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]batchResponse, 0, len(batches))
	for i := range batches {
		data = append(data, toBatchResponse(&batches[i]))
	}

	return c.JSON(fiber.Map{"data": data})
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.batches.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatchResults(c *fiber.Ctx) error {
	batchID := c.Params("id")
	if _, err := h.batches.GetByID(c.Context(), batchID); err != nil {
		return toHTTPError(err)
	}

	results, err := h.results.ByBatchID(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]resultResponse, 0, len(results))
	for i := range results {
		data = append(data, toResultResponse(&results[i]))
	}
	return c.JSON(fiber.Map{"data": data})
}

// CancelBatch sets the operator cancellation flag. The orchestrator polls the
// status between candidates and stops at the next boundary.
func (h *BatchHandler) CancelBatch(c *fiber.Ctx) error {
	batch, err := h.batches.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	if batch.Status.IsTerminal() {
		return toHTTPError(fmt.Errorf("%w: batch is already %s", domain.ErrConflict, batch.Status))
	}

	if err := h.batches.UpdateStatus(c.Context(), batch.ID, domain.BatchStatusCancelled, nil); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     batch.ID,
		"status": domain.BatchStatusCancelled.String(),
	})
}

func toBatchResponse(b *domain.Batch) batchResponse {
	return batchResponse{
		ID:               b.ID,
		Status:           b.Status.String(),
		OrchestrationID:  b.OrchestrationID,
		Total:            b.Total,
		Processed:        b.Processed,
		Added:            b.Added,
		Skipped:          b.Skipped,
		Errors:           b.Errors,
		ChannelBreakdown: b.ChannelBreakdown,
		Remaining:        len(b.RemainingIDs()),
		LastError:        b.LastError,
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
	}
}

func toResultResponse(r *domain.ProcessingResult) resultResponse {
	return resultResponse{
		ID:               r.ID,
		ContactID:        r.ContactID,
		Channel:          r.Channel,
		Status:           r.Status.String(),
		LeadID:           r.LeadID,
		SkipReason:       r.SkipReason,
		Error:            r.Error,
		Enrichment:       r.Enrichment,
		EnrichmentMillis: r.EnrichmentMillis,
		CRMOrgID:         r.CRMOrgID,
		CreatedAt:        r.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
