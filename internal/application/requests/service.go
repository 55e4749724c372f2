package requests

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/cache"
	"agrihub-backend/internal/infrastructure/events"
	"agrihub-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Policy holds the optional checks applied by the resolver.
type Policy struct {
	// AutoRejectOnApprove rejects the other pending requests of a listing when one is approved.
	AutoRejectOnApprove bool
	// RejectSelfRequests stops owners from requesting their own listing.
	RejectSelfRequests bool
	// RejectDuplicatePending allows one pending request per requester and listing.
	RejectDuplicatePending bool
}

// Invalidator drops cached listing reads after a status change.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Service creates requests and applies the owner's decisions on them.
type Service struct {
	DB     *gorm.DB
	Policy Policy
	Events events.Publisher
	Cache  Invalidator
	Now    func() time.Time
}

// RequesterInfo is the contact data a requester leaves on a request.
type RequesterInfo struct {
	FullName string
	Phone    string
	Location string
	Message  string
}

func (i RequesterInfo) trimmed() RequesterInfo {
	return RequesterInfo{
		FullName: strings.TrimSpace(i.FullName),
		Phone:    strings.TrimSpace(i.Phone),
		Location: strings.TrimSpace(i.Location),
		Message:  strings.TrimSpace(i.Message),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateRequest records a pending request by requesterID against listingID.
// Contact fields are validated before anything is written.
func (s *Service) CreateRequest(ctx context.Context, requesterID, listingID uuid.UUID, info RequesterInfo) (*domain.Request, error) {
	info = info.trimmed()
	if missing := validation.MissingFields(
		[2]string{"full_name", info.FullName},
		[2]string{"phone", info.Phone},
		[2]string{"location", info.Location},
	); len(missing) > 0 {
		return nil, domain.NewError(domain.ErrValidation, "Missing required fields: "+strings.Join(missing, ", "))
	}
	if !validation.IsValidPhone(info.Phone) {
		return nil, ErrInvalidPhone
	}
	if requesterID == uuid.Nil {
		return nil, ErrMissingRequester
	}

	db := s.DB.WithContext(ctx)
	listing, err := findListing(db, listingID)
	if err != nil {
		return nil, err
	}
	if s.Policy.RejectSelfRequests && listing.OwnerID == requesterID {
		return nil, ErrSelfRequest
	}
	if s.Policy.RejectDuplicatePending {
		var n int64
		if err := db.Model(&domain.Request{}).
			Where("listing_id = ? AND requester_id = ? AND status = ?", listingID, requesterID, domain.RequestPending).
			Count(&n).Error; err != nil {
			return nil, domain.StoreError(err)
		}
		if n > 0 {
			return nil, ErrDuplicatePending
		}
	}

	req := &domain.Request{
		ListingID:   listingID,
		RequesterID: requesterID,
		FullName:    info.FullName,
		Phone:       info.Phone,
		Location:    info.Location,
		Message:     info.Message,
		Status:      domain.RequestPending,
		CreatedAt:   s.now(),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return domain.StoreError(err)
		}
		return tx.Create(newEvent(listingID, &req.ID, domain.EventRequested, requesterID, map[string]interface{}{
			"kind": listing.Kind,
		})).Error
	})
	if err != nil {
		return nil, domain.Classify(err)
	}

	events.PublishAll(ctx, s.Events, changeEvent(events.RequestCreated, listing, req))
	return req, nil
}

// ListRequestsForOwner returns requests on listings owned by ownerID, oldest
// first, optionally limited to one listing.
func (s *Service) ListRequestsForOwner(ctx context.Context, ownerID uuid.UUID, listingID *uuid.UUID) ([]domain.Request, error) {
	q := s.DB.WithContext(ctx).Model(&domain.Request{}).
		Joins("JOIN listings ON listings.id = requests.listing_id").
		Where("listings.owner_id = ?", ownerID)
	if listingID != nil {
		q = q.Where("requests.listing_id = ?", *listingID)
	}
	out := []domain.Request{}
	if err := q.Order("requests.created_at ASC").Find(&out).Error; err != nil {
		return nil, domain.StoreError(err)
	}
	return out, nil
}

// ListRequestsForRequester returns the requests made by requesterID, newest first.
func (s *Service) ListRequestsForRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Request, error) {
	out := []domain.Request{}
	if err := s.DB.WithContext(ctx).Where("requester_id = ?", requesterID).
		Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, domain.StoreError(err)
	}
	return out, nil
}

// GetRequest returns a request visible to actorID: its requester or the listing owner.
func (s *Service) GetRequest(ctx context.Context, actorID, requestID uuid.UUID) (*domain.Request, error) {
	db := s.DB.WithContext(ctx)
	req, err := findRequest(db, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID == actorID {
		return req, nil
	}
	listing, err := findListing(db, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != actorID {
		return nil, ErrNotVisible
	}
	return req, nil
}

// ResolveRequest applies the owner's decision to a pending request.
//
// Both writes run in one transaction and each is conditional on the state
// that was read: the request must still be pending and, on approve, the
// listing must still be Available. The first approval wins; a racing one
// gets ErrListingUnavailable and leaves nothing behind.
func (s *Service) ResolveRequest(ctx context.Context, ownerID, requestID uuid.UUID, decision domain.Decision) (*domain.Request, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}
	db := s.DB.WithContext(ctx)
	req, err := findRequest(db, requestID)
	if err != nil {
		return nil, err
	}
	listing, err := findListing(db, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if req.Status != domain.RequestPending {
		return nil, ErrAlreadyResolved
	}

	now := s.now()
	status := decision.Status()
	var autoRejected []domain.Request

	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Request{}).
			Where("id = ? AND status = ?", req.ID, domain.RequestPending).
			Updates(map[string]interface{}{"status": status, "resolved_at": now})
		if res.Error != nil {
			return domain.StoreError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}

		evs := []*domain.ListingEvent{}
		if decision == domain.DecisionApprove {
			res = tx.Model(&domain.Listing{}).
				Where("id = ? AND status = ?", listing.ID, domain.ListingAvailable).
				Updates(map[string]interface{}{"status": domain.ListingNotAvailable, "updated_at": now})
			if res.Error != nil {
				return domain.StoreError(res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrListingUnavailable
			}
			evs = append(evs, newEvent(listing.ID, &req.ID, domain.EventApproved, ownerID, map[string]interface{}{
				"requester_id":   req.RequesterID,
				"listing_status": domain.ListingNotAvailable,
			}))

			if s.Policy.AutoRejectOnApprove {
				if err := tx.Where("listing_id = ? AND id <> ? AND status = ?", listing.ID, req.ID, domain.RequestPending).
					Find(&autoRejected).Error; err != nil {
					return domain.StoreError(err)
				}
				if len(autoRejected) > 0 {
					ids := make([]uuid.UUID, len(autoRejected))
					for i, r := range autoRejected {
						ids[i] = r.ID
					}
					if err := tx.Model(&domain.Request{}).
						Where("id IN ? AND status = ?", ids, domain.RequestPending).
						Updates(map[string]interface{}{"status": domain.RequestRejected, "resolved_at": now}).Error; err != nil {
						return domain.StoreError(err)
					}
					for i := range autoRejected {
						autoRejected[i].Status = domain.RequestRejected
						autoRejected[i].ResolvedAt = &now
						evs = append(evs, newEvent(listing.ID, &autoRejected[i].ID, domain.EventAutoRejected, ownerID, map[string]interface{}{
							"approved_request_id": req.ID,
						}))
					}
				}
			}
		} else {
			evs = append(evs, newEvent(listing.ID, &req.ID, domain.EventRejected, ownerID, map[string]interface{}{
				"requester_id": req.RequesterID,
			}))
		}
		if err := tx.Create(&evs).Error; err != nil {
			return domain.StoreError(err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Classify(err)
	}

	req.Status = status
	req.ResolvedAt = &now

	if decision == domain.DecisionApprove {
		listing.Status = domain.ListingNotAvailable
		if s.Cache != nil {
			if err := s.Cache.Invalidate(ctx, cache.ListingKey(listing.ID)); err != nil {
				log.Warn().Err(err).Str("listing_id", listing.ID.String()).Msg("listing cache invalidation failed")
			}
		}
	}

	changes := []events.ChangeEvent{changeEvent(eventTypeFor(status), listing, req)}
	for i := range autoRejected {
		changes = append(changes, changeEvent(events.RequestRejected, listing, &autoRejected[i]))
	}
	events.PublishAll(ctx, s.Events, changes...)

	log.Info().Str("request_id", req.ID.String()).Str("listing_id", listing.ID.String()).
		Str("status", string(status)).Int("auto_rejected", len(autoRejected)).Msg("request resolved")
	return req, nil
}

func findRequest(db *gorm.DB, id uuid.UUID) (*domain.Request, error) {
	var req domain.Request
	if err := db.Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, domain.StoreError(err)
	}
	return &req, nil
}

func findListing(db *gorm.DB, id uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := db.Where("id = ?", id).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, domain.StoreError(err)
	}
	return &listing, nil
}

func newEvent(listingID uuid.UUID, requestID *uuid.UUID, eventType string, actorID uuid.UUID, data map[string]interface{}) *domain.ListingEvent {
	b, _ := json.Marshal(data)
	return &domain.ListingEvent{
		ListingID: listingID,
		RequestID: requestID,
		EventType: eventType,
		ActorID:   actorID,
		EventData: datatypes.JSON(b),
	}
}

func eventTypeFor(status domain.RequestStatus) string {
	switch status {
	case domain.RequestApproved:
		return events.RequestApproved
	case domain.RequestRejected:
		return events.RequestRejected
	}
	return events.RequestCreated
}

func changeEvent(eventType string, listing *domain.Listing, req *domain.Request) events.ChangeEvent {
	reqID, requesterID := req.ID, req.RequesterID
	return events.ChangeEvent{
		Type:        eventType,
		ListingID:   listing.ID,
		RequestID:   &reqID,
		OwnerID:     listing.OwnerID,
		RequesterID: &requesterID,
		Status:      string(req.Status),
	}
}
