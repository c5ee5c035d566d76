package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prospectly/assignment-engine/internal/service"
)

// PipelineRunner triggers pipeline executions on demand.
type PipelineRunner interface {
	RunManual(ctx context.Context) (*service.RunOutcome, error)
	RunChannels(ctx context.Context, channels []string) ([]*service.RunOutcome, error)
}

type RunHandler struct {
	runner PipelineRunner
}

func NewRunHandler(runner PipelineRunner) (*RunHandler, error) {
	if runner == nil {
		return nil, fmt.Errorf("pipeline runner is required")
	}
	return &RunHandler{runner: runner}, nil
}

func RegisterRunRoutes(router fiber.Router, runner PipelineRunner) error {
	h, err := NewRunHandler(runner)
	if err != nil {
		return err
	}

	router.Group("/v1").Post("/runs", h.TriggerRun)
	return nil
}

type triggerRunRequest struct {
	Channels []string `json:"channels,omitempty"`
}

type runOutcomeResponse struct {
	BatchID        string `json:"batchId,omitempty"`
	Status         string `json:"status,omitempty"`
	BreakerSkipped bool   `json:"breakerSkipped,omitempty"`
	Disabled       bool   `json:"disabled,omitempty"`
	NoCandidates   bool   `json:"noCandidates,omitempty"`
	Processed      int    `json:"processed"`
	Added          int    `json:"added"`
	Skipped        int    `json:"skipped"`
	Errors         int    `json:"errors"`
	Remaining      int    `json:"remaining"`
}

// TriggerRun executes the pipeline synchronously and reports the outcome.
// With a channels list it fans out one channel-scoped batch per channel.
func (h *RunHandler) TriggerRun(c *fiber.Ctx) error {
	var req triggerRunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	if len(req.Channels) > 0 {
		outcomes, err := h.runner.RunChannels(c.Context(), req.Channels)
		if err != nil {
			return toHTTPError(err)
		}
		data := make([]runOutcomeResponse, 0, len(outcomes))
		for _, outcome := range outcomes {
			data = append(data, toRunOutcomeResponse(outcome))
		}
		return c.JSON(fiber.Map{"outcomes": data})
	}

	outcome, err := h.runner.RunManual(c.Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(toRunOutcomeResponse(outcome))
}

func toRunOutcomeResponse(outcome *service.RunOutcome) runOutcomeResponse {
	if outcome == nil {
		return runOutcomeResponse{}
	}
	return runOutcomeResponse{
		BatchID:        outcome.BatchID,
		Status:         outcome.Status.String(),
		BreakerSkipped: outcome.BreakerSkipped,
		Disabled:       outcome.Disabled,
		NoCandidates:   outcome.NoCandidates,
		Processed:      outcome.Processed,
		Added:          outcome.Added,
		Skipped:        outcome.Skipped,
		Errors:         outcome.Errors,
		Remaining:      outcome.Remaining,
	}
}
