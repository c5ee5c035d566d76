package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prospectly/assignment-engine/internal/domain"
)

// SettingsStore reads and writes operator pipeline settings.
type SettingsStore interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, s *domain.Settings) error
}

type SettingsHandler struct {
	settings SettingsStore
}

func NewSettingsHandler(settings SettingsStore) (*SettingsHandler, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	return &SettingsHandler{settings: settings}, nil
}

func RegisterSettingsRoutes(router fiber.Router, settings SettingsStore) error {
	h, err := NewSettingsHandler(settings)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/settings", h.GetSettings)
	v1.Put("/settings", h.UpdateSettings)

	return nil
}

type settingsResponse struct {
	MaxTotalContacts int    `json:"maxTotalContacts"`
	MaxPerChannel    int    `json:"maxPerChannel"`
	Enabled          bool   `json:"enabled"`
	DelaySeconds     int    `json:"delaySeconds"`
	Defaults         bool   `json:"defaults,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

type updateSettingsRequest struct {
	MaxTotalContacts int  `json:"maxTotalContacts"`
	MaxPerChannel    int  `json:"maxPerChannel"`
	Enabled          bool `json:"enabled"`
	DelaySeconds     int  `json:"delaySeconds"`
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	stored, err := h.settings.Get(c.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			defaults := domain.DefaultSettings()
			resp := toSettingsResponse(&defaults)
			resp.Defaults = true
			return c.JSON(resp)
		}
		return toHTTPError(err)
	}
	return c.JSON(toSettingsResponse(stored))
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	settings := &domain.Settings{
		MaxTotalContacts: req.MaxTotalContacts,
		MaxPerChannel:    req.MaxPerChannel,
		Enabled:          req.Enabled,
		Delay:            time.Duration(req.DelaySeconds) * time.Second,
	}
	if err := h.settings.Update(c.Context(), settings); err != nil {
		return toHTTPError(err)
	}

	return c.JSON(toSettingsResponse(settings))
}

func toSettingsResponse(s *domain.Settings) settingsResponse {
	resp := settingsResponse{
		MaxTotalContacts: s.MaxTotalContacts,
		MaxPerChannel:    s.MaxPerChannel,
		Enabled:          s.Enabled,
		DelaySeconds:     int(s.Delay / time.Second),
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
