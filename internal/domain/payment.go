package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment records a succeeded Stripe PaymentIntent for an approved sale request.
type Payment struct {
	ID                    uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StripePaymentIntentID string         `gorm:"column:stripe_payment_intent_id;uniqueIndex;not null" json:"stripe_payment_intent_id"`
	StripeEventID         string         `gorm:"column:stripe_event_id;not null" json:"stripe_event_id"`
	RequestID             uuid.UUID      `gorm:"column:request_id;type:uuid;not null;index" json:"request_id"`
	ListingID             uuid.UUID      `gorm:"column:listing_id;type:uuid;not null" json:"listing_id"`
	PayerID               uuid.UUID      `gorm:"column:payer_id;type:uuid;not null" json:"payer_id"`
	AmountPaidCents       int64          `gorm:"column:amount_paid_cents;not null" json:"amount_paid_cents"`
	Currency              string         `gorm:"column:currency;not null" json:"currency"`
	Status                string         `gorm:"column:status;not null" json:"status"`
	RawPaymentIntent      datatypes.JSON `gorm:"column:raw_payment_intent;type:jsonb;not null" json:"raw_payment_intent"`
	CreatedAt             time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
