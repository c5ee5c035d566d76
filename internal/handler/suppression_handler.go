package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prospectly/assignment-engine/internal/domain"
)

// SuppressionStore manages the internal suppression list.
type SuppressionStore interface {
	Create(ctx context.Context, entry *domain.SuppressionEntry) error
	List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error)
}

type SuppressionHandler struct {
	store SuppressionStore
}

func NewSuppressionHandler(store SuppressionStore) (*SuppressionHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("suppression store is required")
	}
	return &SuppressionHandler{store: store}, nil
}

func RegisterSuppressionRoutes(router fiber.Router, store SuppressionStore) error {
	h, err := NewSuppressionHandler(store)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/suppressions", h.ListSuppressions)
	v1.Post("/suppressions", h.CreateSuppression)

	return nil
}

type createSuppressionRequest struct {
	Value  string `json:"value"`
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type suppressionResponse struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *SuppressionHandler) ListSuppressions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	entries, err := h.store.List(c.Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]suppressionResponse, 0, len(entries))
	for i := range entries {
		data = append(data, toSuppressionResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": data})
}

func (h *SuppressionHandler) CreateSuppression(c *fiber.Ctx) error {
	var req createSuppressionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	suppressionType, err := domain.ParseSuppressionTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	entry := &domain.SuppressionEntry{
		ID:        uuid.NewString(),
		Value:     strings.ToLower(strings.TrimSpace(req.Value)),
		Type:      suppressionType,
		Reason:    strings.TrimSpace(req.Reason),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return toHTTPError(err)
	}

	if err := h.store.Create(c.Context(), entry); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSuppressionResponse(entry))
}

func toSuppressionResponse(e *domain.SuppressionEntry) suppressionResponse {
	return suppressionResponse{
		ID:        e.ID,
		Value:     e.Value,
		Type:      e.Type.String(),
		Reason:    e.Reason,
		Active:    e.Active,
		CreatedAt: e.CreatedAt,
	}
}
