// Package api exposes the operational HTTP surface of the
// orchestrator: explicit recompute requests and queue introspection.
package api

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/queue"
)

// Handler serves the orchestrator's HTTP endpoints.
type Handler struct {
	queue     *queue.Queue
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandler creates an API handler on the given queue.
func NewHandler(q *queue.Queue, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		queue:     q,
		validator: validator.New(),
		logger:    logger,
	}
}

// Register mounts the handler's routes on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/healthz", h.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/recompute", h.Recompute)
	v1.Get("/queue/status", h.QueueStatus)
	v1.Get("/queue/inflight", h.QueueInFlight)
}

// RecomputeRequest is the body of POST /api/v1/recompute.
type RecomputeRequest struct {
	TenantID string `json:"tenantId" validate:"required"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// RecomputeResponse acknowledges an admitted job. The job runs
// asynchronously; the id is for correlation, not polling.
type RecomputeResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"jobId,omitempty"`
}

// Recompute handles POST /api/v1/recompute.
func (h *Handler) Recompute(c *fiber.Ctx) error {
	var req RecomputeRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, "invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, "validation failed", formatValidationErrors(err))
	}

	opts := []queue.Option{}
	if req.Priority != "" {
		priority, err := core.ParsePriority(req.Priority)
		if err != nil {
			return validationError(c, "validation failed", map[string]string{"priority": "oneof"})
		}
		opts = append(opts, queue.WithPriority(priority))
	}

	jobID, err := h.queue.Enqueue(c.Context(), req.TenantID, opts...)
	if err != nil {
		if errors.Is(err, core.ErrMissingTenant) {
			return validationError(c, "validation failed", map[string]string{"tenantId": "required"})
		}
		h.logger.Error("enqueue failed", "tenant_id", req.TenantID, "error", err)
		return queueError(c, "queue unavailable")
	}

	return c.Status(fiber.StatusAccepted).JSON(RecomputeResponse{
		Accepted: true,
		JobID:    jobID,
	})
}

// QueueStatus handles GET /api/v1/queue/status.
func (h *Handler) QueueStatus(c *fiber.Ctx) error {
	status, err := h.queue.Status(c.Context())
	if err != nil {
		h.logger.Error("queue status failed", "error", err)
		return serviceError(c, "queue status unavailable")
	}
	return c.JSON(status)
}

// QueueInFlight handles GET /api/v1/queue/inflight.
func (h *Handler) QueueInFlight(c *fiber.Ctx) error {
	jobs, err := h.queue.InFlight(c.Context())
	if err != nil {
		h.logger.Error("queue inflight failed", "error", err)
		return serviceError(c, "queue inflight unavailable")
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
