package handler

import (
	"crypto/subtle"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nailglow/api/internal/middleware"
	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/service"
	"github.com/nailglow/api/pkg/response"
)

type CreditHandler struct {
	service       *service.CreditService
	validator     *validator.Validate
	webhookSecret string
}

func NewCreditHandler(svc *service.CreditService, v *validator.Validate, webhookSecret string) *CreditHandler {
	return &CreditHandler{
		service:       svc,
		validator:     v,
		webhookSecret: webhookSecret,
	}
}

// Balance handles GET /api/credits
// @Summary      Get credit balance
// @Tags         Credits
// @Produce      json
// @Success      200 {object} model.CreditBalanceResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/credits [get]
func (h *CreditHandler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.GetBalance(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.CreditBalanceResponse{
		Credits:   balance.Credits,
		Tier:      balance.Tier,
		Status:    balance.Status,
		Unlimited: !balance.Metered(),
	})
}

// Recharge handles POST /internal/credits/recharge — called by the
// payments collaborator after a successful top-up, authenticated with a
// shared secret.
// @Summary      Credit a user after payment
// @Tags         Credits
// @Accept       json
// @Produce      json
// @Param        request body model.CreditRechargeRequest true "Recharge request"
// @Success      200 {object} model.CreditRechargeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /internal/credits/recharge [post]
func (h *CreditHandler) Recharge(c *fiber.Ctx) error {
	secret := c.Get("X-Webhook-Secret")
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		return response.Unauthorized(c, "Invalid webhook secret")
	}

	var req model.CreditRechargeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	credits, err := h.service.CreditUser(c.Context(), req.UserID, req.Amount)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.CreditRechargeResponse{
		UserID:  req.UserID,
		Credits: credits,
	})
}
