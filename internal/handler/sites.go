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

type SiteHandler struct {
	service   *service.SiteService
	validator *validator.Validate
}

func NewSiteHandler(svc *service.SiteService, v *validator.Validate) *SiteHandler {
	return &SiteHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/sites
// @Summary      Create a marketing site
// @Description  Provision a site with the starter template as its root version
// @Tags         Sites
// @Accept       json
// @Produce      json
// @Param        request body model.SiteCreateRequest true "Site create request"
// @Success      201 {object} model.SiteCreateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/sites [post]
func (h *SiteHandler) Create(c *fiber.Ctx) error {
	var req model.SiteCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateSite(c.Context(), middleware.GetUserID(c), req.Name)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Customize handles POST /api/sites/:siteId/customize
// @Summary      Customize a site with a prompt
// @Description  Apply an AI edit to the current version, creating a new version
// @Tags         Sites
// @Accept       json
// @Produce      json
// @Param        siteId path string true "Site ID"
// @Param        request body model.SiteCustomizeRequest true "Customize request"
// @Success      200 {object} model.SiteVersionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      402 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/sites/{siteId}/customize [post]
func (h *SiteHandler) Customize(c *fiber.Ctx) error {
	siteID := c.Params("siteId")
	if siteID == "" {
		return response.ValidationError(c, "Site ID is required", nil)
	}

	var req model.SiteCustomizeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Customize(c.Context(), middleware.GetUserID(c), siteID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInsufficientCredits):
			return response.InsufficientCredits(c, "Not enough credits for this edit")
		case errors.Is(err, model.ErrGenerationFailed):
			return response.AIError(c, "Site generation failed")
		default:
			return siteError(c, err)
		}
	}

	return response.OK(c, result)
}

// Navigate handles POST /api/sites/:siteId/navigate
// @Summary      Move through version history
// @Description  Undo, redo or jump directly to a version; exactly one of action or versionId must be set
// @Tags         Sites
// @Accept       json
// @Produce      json
// @Param        siteId path string true "Site ID"
// @Param        request body model.SiteNavigateRequest true "Navigate request"
// @Success      200 {object} model.SiteVersionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/sites/{siteId}/navigate [post]
func (h *SiteHandler) Navigate(c *fiber.Ctx) error {
	siteID := c.Params("siteId")
	if siteID == "" {
		return response.ValidationError(c, "Site ID is required", nil)
	}

	var req model.SiteNavigateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	hasVersion := req.VersionID != ""
	hasAction := req.Action != ""
	if hasVersion == hasAction {
		return response.ValidationError(c, "Exactly one of versionId or action must be set", nil)
	}
	if hasAction && req.Action != model.NavigateUndo && req.Action != model.NavigateRedo {
		return response.ValidationError(c, "Action must be undo or redo", nil)
	}

	result, err := h.service.Navigate(c.Context(), middleware.GetUserID(c), siteID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNoPreviousVersion):
			return response.Conflict(c, "Nothing to undo")
		case errors.Is(err, model.ErrNoNextVersion):
			return response.Conflict(c, "Nothing to redo")
		default:
			return siteError(c, err)
		}
	}

	return response.OK(c, result)
}

// History handles GET /api/sites/:siteId/history
// @Summary      List the active version timeline
// @Tags         Sites
// @Produce      json
// @Param        siteId path string true "Site ID"
// @Success      200 {object} model.SiteHistoryResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/sites/{siteId}/history [get]
func (h *SiteHandler) History(c *fiber.Ctx) error {
	siteID := c.Params("siteId")
	if siteID == "" {
		return response.ValidationError(c, "Site ID is required", nil)
	}

	result, err := h.service.History(c.Context(), middleware.GetUserID(c), siteID)
	if err != nil {
		return siteError(c, err)
	}

	return response.OK(c, result)
}

// Current handles GET /api/sites/:siteId
// @Summary      Get the site's current version with content
// @Tags         Sites
// @Produce      json
// @Param        siteId path string true "Site ID"
// @Success      200 {object} model.SiteVersionResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/sites/{siteId} [get]
func (h *SiteHandler) Current(c *fiber.Ctx) error {
	siteID := c.Params("siteId")
	if siteID == "" {
		return response.ValidationError(c, "Site ID is required", nil)
	}

	result, err := h.service.Current(c.Context(), middleware.GetUserID(c), siteID)
	if err != nil {
		return siteError(c, err)
	}

	return response.OK(c, result)
}

func siteError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrSiteNotFound):
		return response.NotFound(c, "Site not found")
	case errors.Is(err, model.ErrVersionNotFound):
		return response.NotFound(c, "Version not found")
	case errors.Is(err, model.ErrNotOwner):
		return response.Forbidden(c, "Site belongs to another user")
	default:
		return response.ServiceError(c, err.Error())
	}
}
