package payments

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"agrihub-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrStripeNotConfigured = errors.New("Stripe integration pending")
	ErrInvalidSignature    = errors.New("Webhook signature verification failed")

	ErrRequestNotFound = domain.NewError(domain.ErrNotFound, "Request not found")
	ErrNotRequester    = domain.NewError(domain.ErrForbidden, "Only the requester can pay for a request")
	ErrNotApproved     = domain.NewError(domain.ErrInvalidState, "Request must be approved before payment")
	ErrNotForSale      = domain.NewError(domain.ErrInvalidState, "Only sale listings can be paid online")
	ErrAlreadyPaid     = domain.NewError(domain.ErrConflict, "Request has already been paid")
)

const eventPaymentIntentSucceeded = "payment_intent.succeeded"

type Service struct {
	DB            *gorm.DB
	Creator       StripePaymentIntentCreator
	Currency      string
	WebhookSecret string
}

// CreatePaymentIntent starts a Stripe payment for an approved sale request.
func (s *Service) CreatePaymentIntent(ctx context.Context, payerID, requestID uuid.UUID) (*StripePaymentIntentResult, error) {
	if s.Creator == nil {
		return nil, ErrStripeNotConfigured
	}
	db := s.DB.WithContext(ctx)

	var req domain.Request
	if err := db.Where("id = ?", requestID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, domain.StoreError(err)
	}
	if req.RequesterID != payerID {
		return nil, ErrNotRequester
	}
	if req.Status != domain.RequestApproved {
		return nil, ErrNotApproved
	}
	var listing domain.Listing
	if err := db.Where("id = ?", req.ListingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, "Listing not found")
		}
		return nil, domain.StoreError(err)
	}
	if listing.Kind != domain.KindSale {
		return nil, ErrNotForSale
	}
	var paid int64
	if err := db.Model(&domain.Payment{}).Where("request_id = ?", req.ID).Count(&paid).Error; err != nil {
		return nil, domain.StoreError(err)
	}
	if paid > 0 {
		return nil, ErrAlreadyPaid
	}

	amountCents := int64(math.Round(listing.Price * 100))
	if amountCents <= 0 {
		return nil, domain.NewError(domain.ErrValidation, "Listing price must be positive")
	}
	currency := strings.ToLower(s.Currency)
	if currency == "" {
		currency = "inr"
	}
	return s.Creator.Create(ctx, amountCents, currency, map[string]string{
		"request_id": req.ID.String(),
		"listing_id": listing.ID.String(),
		"payer_id":   payerID.String(),
	})
}

// HandleWebhook verifies a Stripe event and records succeeded payments.
// Events for other types, without our metadata, or naming a request that is
// not approved on that listing are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn().Err(err).Bool("has_sig", sigHeader != "").Bool("has_secret", s.WebhookSecret != "").Msg("Stripe webhook signature verification failed")
		return ErrInvalidSignature
	}
	if string(event.Type) != eventPaymentIntentSucceeded || event.Data == nil {
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("Stripe webhook: bad payment_intent object")
		return nil
	}
	requestID, err1 := uuid.Parse(pi.Metadata["request_id"])
	listingID, err2 := uuid.Parse(pi.Metadata["listing_id"])
	payerID, err3 := uuid.Parse(pi.Metadata["payer_id"])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Payment{}).Where("stripe_payment_intent_id = ?", pi.ID).Count(&n).Error; err != nil {
			return domain.StoreError(err)
		}
		if n > 0 {
			return nil
		}
		var req domain.Request
		if err := tx.Where("id = ?", requestID).Limit(1).Find(&req).Error; err != nil {
			return domain.StoreError(err)
		}
		if req.ID == uuid.Nil || req.Status != domain.RequestApproved || req.ListingID != listingID {
			log.Warn().Str("event_id", event.ID).Str("payment_intent", pi.ID).Str("request_id", requestID.String()).
				Str("request_status", string(req.Status)).Msg("Stripe webhook: no approved request for payment, skipped")
			return nil
		}
		payment := domain.Payment{
			StripePaymentIntentID: pi.ID,
			StripeEventID:         event.ID,
			RequestID:             requestID,
			ListingID:             listingID,
			PayerID:               payerID,
			AmountPaidCents:       pi.AmountReceived,
			Currency:              string(pi.Currency),
			Status:                string(pi.Status),
			RawPaymentIntent:      datatypes.JSON(event.Data.Raw),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return domain.StoreError(err)
		}
		log.Info().Str("payment_intent", pi.ID).Str("request_id", requestID.String()).Msg("payment recorded")
		return nil
	})
}
