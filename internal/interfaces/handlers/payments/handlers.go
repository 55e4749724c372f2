package payments

import (
	"errors"

	paysvc "agrihub-backend/internal/application/payments"
	"agrihub-backend/internal/middleware"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *paysvc.Service
}

type createIntentRequest struct {
	RequestID string `json:"request_id"`
}

// CreateIntent POST /api/v1/payments/create-intent
func (h *Handlers) CreateIntent(c *fiber.Ctx) error {
	payer, _ := middleware.ActorID(c)
	var body createIntentRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "request_id is required")
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		return response.BadRequest(c, "request_id is required")
	}

	res, err := h.Service.CreatePaymentIntent(c.UserContext(), payer, requestID)
	if err != nil {
		if errors.Is(err, paysvc.ErrStripeNotConfigured) {
			return response.Error(c, err.Error(), fiber.StatusNotImplemented, nil)
		}
		return response.FromError(c, err)
	}
	return response.Success(c, "Payment intent created", fiber.Map{
		"payment_intent_id": res.ID,
		"client_secret":     res.ClientSecret,
	}, nil)
}

// Webhook POST /api/v1/stripe/webhook. Reads the raw body; registered before
// any middleware that could consume it.
func (h *Handlers) Webhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body")
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: empty body")
	}

	err := h.Service.HandleWebhook(c.UserContext(), rawBody, c.Get("Stripe-Signature"))
	if errors.Is(err, paysvc.ErrInvalidSignature) {
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: " + err.Error())
	}
	if err != nil {
		log.Error().Err(err).Msg("Stripe webhook processing failed")
	}
	return c.Status(fiber.StatusOK).SendString("ok")
}
