// Package notifications turns change events into emails for the people they concern.
package notifications

import (
	"context"
	"errors"

	"agrihub-backend/internal/application/emails"
	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Consumer struct {
	DB      *gorm.DB
	Mailer  emails.Sender
	BaseURL string
}

// Handle decodes one feed message and sends the matching email.
// Rows that disappeared since the event was published are skipped.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	ev, err := events.Decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("notifier: dropping undecodable event")
		return nil
	}
	if ev.RequestID == nil {
		return nil
	}

	switch ev.Type {
	case events.RequestCreated:
		return c.notifyOwner(ctx, ev)
	case events.RequestApproved, events.RequestRejected:
		return c.notifyRequester(ctx, ev)
	}
	return nil
}

func (c *Consumer) notifyOwner(ctx context.Context, ev events.ChangeEvent) error {
	req, listing, err := c.load(ctx, *ev.RequestID, ev.ListingID)
	if err != nil || req == nil {
		return err
	}
	owner, err := c.user(ctx, listing.OwnerID)
	if err != nil || owner == nil {
		return err
	}
	return c.Mailer.SendRequestReceived(ctx, emails.RequestNotice{
		ToEmail:       owner.Email,
		ToName:        owner.FullName,
		ListingTitle:  listing.Title,
		RequesterName: req.FullName,
		Phone:         req.Phone,
		Location:      req.Location,
		Message:       req.Message,
		Link:          c.BaseURL + "/requests/owner",
	})
}

func (c *Consumer) notifyRequester(ctx context.Context, ev events.ChangeEvent) error {
	req, listing, err := c.load(ctx, *ev.RequestID, ev.ListingID)
	if err != nil || req == nil {
		return err
	}
	requester, err := c.user(ctx, req.RequesterID)
	if err != nil || requester == nil {
		return err
	}
	return c.Mailer.SendRequestDecision(ctx, emails.RequestNotice{
		ToEmail:      requester.Email,
		ToName:       req.FullName,
		ListingTitle: listing.Title,
		Link:         c.BaseURL + "/requests/mine",
	}, req.Status == domain.RequestApproved)
}

func (c *Consumer) load(ctx context.Context, requestID, listingID uuid.UUID) (*domain.Request, *domain.Listing, error) {
	db := c.DB.WithContext(ctx)
	var req domain.Request
	if err := db.Where("id = ?", requestID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info().Str("request_id", requestID.String()).Msg("notifier: request gone, skipping")
			return nil, nil, nil
		}
		return nil, nil, domain.StoreError(err)
	}
	var listing domain.Listing
	if err := db.Where("id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info().Str("listing_id", listingID.String()).Msg("notifier: listing gone, skipping")
			return nil, nil, nil
		}
		return nil, nil, domain.StoreError(err)
	}
	return &req, &listing, nil
}

func (c *Consumer) user(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := c.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info().Str("user_id", id.String()).Msg("notifier: no profile for user, skipping")
			return nil, nil
		}
		return nil, domain.StoreError(err)
	}
	return &u, nil
}
