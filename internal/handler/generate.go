package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/influencerlab/api/internal/model"
	"github.com/influencerlab/api/internal/service"
	"github.com/influencerlab/api/pkg/response"
)

// GenerationService is the job API the handler drives.
type GenerationService interface {
	Start(ctx context.Context, req model.GenerationRequest) (*model.GenerateStartResponse, error)
	GetStatus(ctx context.Context, jobID string) (*model.GenerateStatusResponse, error)
	GetResult(ctx context.Context, jobID string) (*model.GenerateResultResponse, error)
	Cancel(ctx context.Context, jobID string) (*model.GenerateStatusResponse, error)
}

// PersonaChecker reports whether adapter weights exist for a persona.
type PersonaChecker interface {
	Has(personaID string) bool
}

type GenerateHandler struct {
	service   GenerationService
	validator *validator.Validate
	personas  PersonaChecker
}

func NewGenerateHandler(svc GenerationService, v *validator.Validate, personas PersonaChecker) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
		personas:  personas,
	}
}

// Image handles POST /api/generate/image
func (h *GenerateHandler) Image(c *fiber.Ctx) error {
	return h.start(c, model.MediaKindImage)
}

// Video handles POST /api/generate/video
func (h *GenerateHandler) Video(c *fiber.Ctx) error {
	return h.start(c, model.MediaKindVideo)
}

func (h *GenerateHandler) start(c *fiber.Ctx, kind model.MediaKind) error {
	var req model.GenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.Kind = kind

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	// Unknown personas would only fail inside the worker; reject them here.
	if kind == model.MediaKindVideo && !h.personas.Has(req.PersonaID) {
		return response.ValidationError(c, "Unknown persona", map[string]string{"personaId": "unknown"})
	}

	result, err := h.service.Start(c.Context(), req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/generate/status/:jobId
func (h *GenerateHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/generate/result/:jobId
func (h *GenerateHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrJobNotCompleted):
			return response.Conflict(c, "Job not completed yet")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/generate/cancel/:jobId. The backend job is not
// interrupted; its result is discarded.
func (h *GenerateHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrJobAlreadyFinished):
			return response.Conflict(c, "Job already finished")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
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
