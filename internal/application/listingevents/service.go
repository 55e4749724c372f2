package listingevents

import (
	"context"
	"errors"

	"agrihub-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultLimit = 100

var (
	ErrListingNotFound = domain.NewError(domain.ErrNotFound, "Listing not found")
	ErrNotOwner        = domain.NewError(domain.ErrForbidden, "Only the listing owner can view its history")
)

type Service struct {
	DB *gorm.DB
}

// ListForListing returns the audit trail of one listing, oldest first.
func (s *Service) ListForListing(ctx context.Context, ownerID, listingID uuid.UUID) ([]domain.ListingEvent, error) {
	db := s.DB.WithContext(ctx)
	var listing domain.Listing
	if err := db.Where("id = ?", listingID).Select("id", "owner_id").First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, domain.StoreError(err)
	}
	if listing.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	events := []domain.ListingEvent{}
	if err := db.Where("listing_id = ?", listingID).Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, domain.StoreError(err)
	}
	return events, nil
}

// ListAll returns the newest events across all listings, including deleted ones.
func (s *Service) ListAll(ctx context.Context, limit int) ([]domain.ListingEvent, error) {
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	events := []domain.ListingEvent{}
	if err := s.DB.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, domain.StoreError(err)
	}
	return events, nil
}
