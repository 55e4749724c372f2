package listings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/cache"
	"agrihub-backend/internal/infrastructure/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cache is the byte cache used for single-listing reads.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type Service struct {
	DB       *gorm.DB
	Cache    Cache
	CacheTTL time.Duration
	Events   events.Publisher
	// GuardedCategories refuse deletion while a request is pending or approved.
	GuardedCategories []domain.ListingCategory
}

type CreateListingInput struct {
	Category    string
	Kind        string
	Title       string
	Price       float64
	Location    string
	Description string
	ImageURL    string
}

func (s *Service) CreateListing(ctx context.Context, ownerID uuid.UUID, in CreateListingInput) (*domain.Listing, error) {
	category := domain.ListingCategory(strings.ToLower(strings.TrimSpace(in.Category)))
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	kind := domain.ListingKind(strings.ToLower(strings.TrimSpace(in.Kind)))
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domain.NewError(domain.ErrValidation, "Missing required field: title")
	}
	if math.IsNaN(in.Price) || in.Price < 0 {
		return nil, ErrInvalidPrice
	}

	listing := &domain.Listing{
		OwnerID:     ownerID,
		Category:    category,
		Kind:        kind,
		Status:      domain.ListingAvailable,
		Title:       title,
		Price:       in.Price,
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return domain.StoreError(err)
		}
		return tx.Create(listingEvent(listing.ID, domain.EventCreated, ownerID, map[string]interface{}{
			"category": listing.Category,
			"kind":     listing.Kind,
			"price":    listing.Price,
		})).Error
	})
	if err != nil {
		return nil, domain.Classify(err)
	}

	events.PublishAll(ctx, s.Events, changeEvent(events.ListingCreated, listing))
	return listing, nil
}

// GetListing reads through the listing cache. Cache failures fall back to the store.
func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	key := cache.ListingKey(id)
	if s.Cache != nil {
		data, err := s.Cache.Get(ctx, key)
		if err == nil {
			var listing domain.Listing
			if jsonErr := json.Unmarshal(data, &listing); jsonErr == nil {
				return &listing, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("listing cache read failed")
		}
	}

	listing, err := s.find(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil && s.CacheTTL > 0 {
		if data, err := json.Marshal(listing); err == nil {
			if err := s.Cache.Set(ctx, key, data, s.CacheTTL); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("listing cache write failed")
			}
		}
	}
	return listing, nil
}

// Filter narrows ListListings. Zero values mean no filter.
type Filter struct {
	Category string
	Kind     string
	Status   string
	OwnerID  *uuid.UUID
	Location string
	Limit    int
	Offset   int
}

// Normalize clamps paging to the defaults.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ListListings returns one page of listings, newest first, and the total match count.
func (s *Service) ListListings(ctx context.Context, f Filter) ([]domain.Listing, int64, error) {
	f.Normalize()
	q := s.DB.WithContext(ctx).Model(&domain.Listing{})
	if f.Category != "" {
		c := domain.ListingCategory(strings.ToLower(f.Category))
		if !c.Valid() {
			return nil, 0, ErrInvalidCategory
		}
		q = q.Where("category = ?", c)
	}
	if f.Kind != "" {
		k := domain.ListingKind(strings.ToLower(f.Kind))
		if !k.Valid() {
			return nil, 0, ErrInvalidKind
		}
		q = q.Where("kind = ?", k)
	}
	if f.Status != "" {
		st := domain.ListingStatus(f.Status)
		if !st.Valid() {
			return nil, 0, ErrInvalidStatus
		}
		q = q.Where("status = ?", st)
	}
	if f.OwnerID != nil {
		q = q.Where("owner_id = ?", *f.OwnerID)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(loc)+"%")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, domain.StoreError(err)
	}
	listings := []domain.Listing{}
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&listings).Error; err != nil {
		return nil, 0, domain.StoreError(err)
	}
	return listings, total, nil
}

type EditListingInput struct {
	ListingID   uuid.UUID
	Title       *string
	Price       *float64
	Location    *string
	Description *string
	ImageURL    *string
}

// EditListing updates the descriptive fields of an owned listing.
// Category, kind, owner and status cannot be changed here.
func (s *Service) EditListing(ctx context.Context, ownerID uuid.UUID, in EditListingInput) (*domain.Listing, error) {
	db := s.DB.WithContext(ctx)
	listing, err := s.find(db, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, domain.NewError(domain.ErrValidation, "Title cannot be empty")
		}
		if title != listing.Title {
			updates["title"] = title
		}
	}
	if in.Price != nil {
		if math.IsNaN(*in.Price) || *in.Price < 0 {
			return nil, ErrInvalidPrice
		}
		if *in.Price != listing.Price {
			updates["price"] = *in.Price
		}
	}
	for col, v := range map[string]*string{"location": in.Location, "description": in.Description, "image_url": in.ImageURL} {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	if len(updates) == 0 {
		return nil, ErrNoChanges
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(listing).Updates(updates).Error; err != nil {
			return domain.StoreError(err)
		}
		return tx.Create(listingEvent(listing.ID, domain.EventUpdated, ownerID, updates)).Error
	})
	if err != nil {
		return nil, domain.Classify(err)
	}

	s.invalidate(ctx, listing.ID)
	events.PublishAll(ctx, s.Events, changeEvent(events.ListingUpdated, listing))
	return s.find(db, listing.ID)
}

// DeleteListing removes an owned listing. Its requests are kept as history.
// Listings in a guarded category cannot be deleted while any request on them
// is pending or approved.
func (s *Service) DeleteListing(ctx context.Context, ownerID, listingID uuid.UUID) error {
	db := s.DB.WithContext(ctx)
	listing, err := s.find(db, listingID)
	if err != nil {
		return err
	}
	if listing.OwnerID != ownerID {
		return ErrNotOwner
	}

	guarded := s.guarded(listing.Category)
	err = db.Transaction(func(tx *gorm.DB) error {
		if guarded {
			var active int64
			if err := tx.Model(&domain.Request{}).
				Where("listing_id = ? AND status IN ?", listing.ID, []domain.RequestStatus{domain.RequestPending, domain.RequestApproved}).
				Count(&active).Error; err != nil {
				return domain.StoreError(err)
			}
			if active > 0 {
				return ErrActiveRequests
			}
		}
		res := tx.Where("id = ?", listing.ID).Delete(&domain.Listing{})
		if res.Error != nil {
			return domain.StoreError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrListingNotFound
		}
		return tx.Create(listingEvent(listing.ID, domain.EventDeleted, ownerID, map[string]interface{}{
			"category": listing.Category,
			"title":    listing.Title,
		})).Error
	})
	if err != nil {
		return domain.Classify(err)
	}

	s.invalidate(ctx, listing.ID)
	events.PublishAll(ctx, s.Events, changeEvent(events.ListingDeleted, listing))
	log.Info().Str("listing_id", listing.ID.String()).Str("category", string(listing.Category)).Msg("listing deleted")
	return nil
}

func (s *Service) guarded(c domain.ListingCategory) bool {
	for _, g := range s.GuardedCategories {
		if g == c {
			return true
		}
	}
	return false
}

func (s *Service) find(db *gorm.DB, id uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := db.Where("id = ?", id).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, domain.StoreError(err)
	}
	return &listing, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, cache.ListingKey(id)); err != nil {
		log.Warn().Err(err).Str("listing_id", id.String()).Msg("listing cache invalidation failed")
	}
}

func listingEvent(listingID uuid.UUID, eventType string, actorID uuid.UUID, data map[string]interface{}) *domain.ListingEvent {
	eventDataBytes, _ := json.Marshal(data)
	return &domain.ListingEvent{
		ListingID: listingID,
		EventType: eventType,
		ActorID:   actorID,
		EventData: datatypes.JSON(eventDataBytes),
	}
}

func changeEvent(eventType string, l *domain.Listing) events.ChangeEvent {
	return events.ChangeEvent{
		Type:      eventType,
		ListingID: l.ID,
		OwnerID:   l.OwnerID,
		Status:    string(l.Status),
	}
}
