// Package events publishes listing and request changes to the change feed.
// The feed is advisory: consumers re-query the store, and core operations
// never fail because a publish failed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	RequestCreated  = "request.created"
	RequestApproved = "request.approved"
	RequestRejected = "request.rejected"
	ListingCreated  = "listing.created"
	ListingUpdated  = "listing.updated"
	ListingDeleted  = "listing.deleted"
)

// ChangeEvent is the message carried on Redis pub/sub and NATS.
type ChangeEvent struct {
	Type        string     `json:"type"`
	ListingID   uuid.UUID  `json:"listing_id"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	RequesterID *uuid.UUID `json:"requester_id,omitempty"`
	Status      string     `json:"status,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// Concerns reports whether the user owns the listing or made the request.
func (e ChangeEvent) Concerns(userID uuid.UUID) bool {
	if userID == uuid.Nil {
		return false
	}
	if e.OwnerID == userID {
		return true
	}
	return e.RequesterID != nil && *e.RequesterID == userID
}

func Encode(e ChangeEvent) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher sends change events to a transport.
type Publisher interface {
	Publish(ctx context.Context, e ChangeEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ChangeEvent) error { return nil }

// Multi fans an event out to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e ChangeEvent) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishAll publishes each event and logs failures.
func PublishAll(ctx context.Context, p Publisher, evs ...ChangeEvent) {
	if p == nil {
		return
	}
	for _, e := range evs {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = time.Now().UTC()
		}
		if err := p.Publish(ctx, e); err != nil {
			log.Warn().Err(err).Str("event", e.Type).Str("listing_id", e.ListingID.String()).Msg("change feed publish failed")
		}
	}
}
