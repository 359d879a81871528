package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nailglow/api/internal/middleware"
	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/service"
	"github.com/nailglow/api/pkg/response"
)

type DesignHandler struct {
	service   *service.DesignService
	validator *validator.Validate
}

func NewDesignHandler(svc *service.DesignService, v *validator.Validate) *DesignHandler {
	return &DesignHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/designs/generate
// @Summary      Start a nail-art generation job
// @Description  Reserve credits and queue an asynchronous render for the uploaded hand photo
// @Tags         Designs
// @Accept       json
// @Produce      json
// @Param        request body model.DesignGenerateRequest true "Generation request"
// @Success      202 {object} model.DesignGenerateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      402 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/designs/generate [post]
func (h *DesignHandler) Generate(c *fiber.Ctx) error {
	var req model.DesignGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartDesign(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientCredits) {
			return response.InsufficientCredits(c, "Not enough credits for this generation")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Poll handles GET /api/designs/jobs
// @Summary      Poll generation jobs
// @Description  List the caller's in-flight jobs and completed results awaiting save
// @Tags         Designs
// @Produce      json
// @Success      200 {object} model.DesignPollResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/designs/jobs [get]
func (h *DesignHandler) Poll(c *fiber.Ctx) error {
	result, err := h.service.Poll(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Status handles GET /api/designs/jobs/:jobId
// @Summary      Get one generation job
// @Tags         Designs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.GenerationJob
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/designs/jobs/{jobId} [get]
func (h *DesignHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, job)
}

// Save handles POST /api/designs/jobs/:jobId/save
// @Summary      Save a completed job's results
// @Description  Consume the job's results exactly once and persist them as assets
// @Tags         Designs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.DesignSaveResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/designs/jobs/{jobId}/save [post]
func (h *DesignHandler) Save(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.SaveDesign(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return response.Conflict(c, "Job has no saveable results")
		}
		return jobError(c, err)
	}

	return response.OK(c, result)
}

func jobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrNotOwner):
		return response.Forbidden(c, "Job belongs to another user")
	default:
		return response.ServiceError(c, err.Error())
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
