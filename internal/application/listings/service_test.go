package listings

import (
	"context"
	"testing"
	"time"

	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/cache"
	"agrihub-backend/internal/infrastructure/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupListingsTest(t *testing.T) (*Service, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Request{}, &domain.ListingEvent{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := &Service{
		DB:                db,
		Cache:             cache.NewRedisCache(client, "agrihub"),
		CacheTTL:          time.Minute,
		Events:            events.Nop{},
		GuardedCategories: []domain.ListingCategory{domain.CategoryEquipment},
	}
	return svc, db, mr
}

func createListing(t *testing.T, svc *Service, owner uuid.UUID, category string) *domain.Listing {
	t.Helper()
	l, err := svc.CreateListing(context.Background(), owner, CreateListingInput{
		Category: category,
		Kind:     "rent",
		Title:    "Mahindra 575 tractor",
		Price:    1200,
		Location: "Nashik, Maharashtra",
	})
	require.NoError(t, err)
	return l
}

func addRequest(t *testing.T, db *gorm.DB, listingID uuid.UUID, status domain.RequestStatus) {
	t.Helper()
	require.NoError(t, db.Create(&domain.Request{
		ListingID:   listingID,
		RequesterID: uuid.New(),
		FullName:    "Asha",
		Phone:       "9876543210",
		Location:    "Pune",
		Status:      status,
		CreatedAt:   time.Now(),
	}).Error)
}

func TestCreateListing(t *testing.T) {
	svc, db, _ := setupListingsTest(t)
	owner := uuid.New()

	l := createListing(t, svc, owner, "Equipment")
	assert.Equal(t, domain.CategoryEquipment, l.Category)
	assert.Equal(t, domain.ListingAvailable, l.Status)

	var n int64
	db.Model(&domain.ListingEvent{}).Where("listing_id = ? AND event_type = ?", l.ID, domain.EventCreated).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestCreateListing_Validation(t *testing.T) {
	svc, _, _ := setupListingsTest(t)
	owner := uuid.New()

	_, err := svc.CreateListing(context.Background(), owner, CreateListingInput{Category: "boat", Kind: "rent", Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidCategory)
	_, err = svc.CreateListing(context.Background(), owner, CreateListingInput{Category: "land", Kind: "lease", Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidKind)
	_, err = svc.CreateListing(context.Background(), owner, CreateListingInput{Category: "land", Kind: "sale", Title: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.CreateListing(context.Background(), owner, CreateListingInput{Category: "seed", Kind: "sale", Title: "Paddy", Price: -1})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestGetListing_ReadThroughCache(t *testing.T) {
	svc, db, mr := setupListingsTest(t)
	l := createListing(t, svc, uuid.New(), "land")

	got, err := svc.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Title, got.Title)
	assert.True(t, mr.Exists("agrihub:"+cache.ListingKey(l.ID)))

	// Served from cache after the row changes underneath.
	require.NoError(t, db.Model(&domain.Listing{}).Where("id = ?", l.ID).Update("title", "Changed").Error)
	got, err = svc.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Title, got.Title)

	mr.FastForward(2 * time.Minute)
	got, err = svc.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", got.Title)
}

func TestGetListing_CacheDownFallsBack(t *testing.T) {
	svc, _, mr := setupListingsTest(t)
	l := createListing(t, svc, uuid.New(), "seed")
	mr.Close()

	got, err := svc.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
}

func TestGetListing_NotFound(t *testing.T) {
	svc, _, _ := setupListingsTest(t)
	_, err := svc.GetListing(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListListings_Filters(t *testing.T) {
	svc, _, _ := setupListingsTest(t)
	owner := uuid.New()
	createListing(t, svc, owner, "equipment")
	createListing(t, svc, owner, "land")
	createListing(t, svc, uuid.New(), "land")

	all, total, err := svc.ListListings(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	land, total, err := svc.ListListings(context.Background(), Filter{Category: "land"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, land, 2)

	mine, _, err := svc.ListListings(context.Background(), Filter{OwnerID: &owner, Location: "nashik"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	page, total, err := svc.ListListings(context.Background(), Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 1)

	_, _, err = svc.ListListings(context.Background(), Filter{Status: "sold"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFilterNormalize(t *testing.T) {
	f := Filter{Limit: 500, Offset: -3}
	f.Normalize()
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = Filter{}
	f.Normalize()
	assert.Equal(t, DefaultLimit, f.Limit)
}

func TestEditListing(t *testing.T) {
	svc, _, mr := setupListingsTest(t)
	owner := uuid.New()
	l := createListing(t, svc, owner, "equipment")
	_, err := svc.GetListing(context.Background(), l.ID)
	require.NoError(t, err)

	price := 1800.0
	got, err := svc.EditListing(context.Background(), owner, EditListingInput{ListingID: l.ID, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 1800.0, got.Price)
	assert.False(t, mr.Exists("agrihub:"+cache.ListingKey(l.ID)))

	_, err = svc.EditListing(context.Background(), uuid.New(), EditListingInput{ListingID: l.ID, Price: &price})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.EditListing(context.Background(), owner, EditListingInput{ListingID: l.ID})
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestDeleteListing_EquipmentGuard(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.RequestStatus
		wantErr  error
	}{
		{"no requests", nil, nil},
		{"rejected only", []domain.RequestStatus{domain.RequestRejected}, nil},
		{"pending", []domain.RequestStatus{domain.RequestRejected, domain.RequestPending}, domain.ErrConflict},
		{"approved", []domain.RequestStatus{domain.RequestApproved}, domain.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db, _ := setupListingsTest(t)
			owner := uuid.New()
			l := createListing(t, svc, owner, "equipment")
			for _, st := range tc.statuses {
				addRequest(t, db, l.ID, st)
			}

			err := svc.DeleteListing(context.Background(), owner, l.ID)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				var n int64
				db.Model(&domain.Listing{}).Where("id = ?", l.ID).Count(&n)
				assert.Equal(t, int64(1), n)
				return
			}
			require.NoError(t, err)
			var n int64
			db.Model(&domain.Request{}).Where("listing_id = ?", l.ID).Count(&n)
			assert.Equal(t, int64(len(tc.statuses)), n)
		})
	}
}

func TestDeleteListing_LandUnguardedByDefault(t *testing.T) {
	svc, db, _ := setupListingsTest(t)
	owner := uuid.New()
	l := createListing(t, svc, owner, "land")
	addRequest(t, db, l.ID, domain.RequestApproved)

	require.NoError(t, svc.DeleteListing(context.Background(), owner, l.ID))

	var n int64
	db.Model(&domain.ListingEvent{}).Where("listing_id = ? AND event_type = ?", l.ID, domain.EventDeleted).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestDeleteListing_KeepsRequests(t *testing.T) {
	svc, db, _ := setupListingsTest(t)
	owner := uuid.New()
	l := createListing(t, svc, owner, "land")
	addRequest(t, db, l.ID, domain.RequestApproved)
	addRequest(t, db, l.ID, domain.RequestRejected)

	require.NoError(t, svc.DeleteListing(context.Background(), owner, l.ID))

	var listings int64
	db.Model(&domain.Listing{}).Where("id = ?", l.ID).Count(&listings)
	assert.Zero(t, listings)

	var reqs []domain.Request
	require.NoError(t, db.Where("listing_id = ?", l.ID).Order("status").Find(&reqs).Error)
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.RequestApproved, reqs[0].Status)
	assert.Equal(t, domain.RequestRejected, reqs[1].Status)
}

func TestDeleteListing_ConfiguredGuard(t *testing.T) {
	svc, db, _ := setupListingsTest(t)
	svc.GuardedCategories = []domain.ListingCategory{domain.CategoryEquipment, domain.CategoryLand, domain.CategorySeed}
	owner := uuid.New()
	l := createListing(t, svc, owner, "seed")
	addRequest(t, db, l.ID, domain.RequestPending)

	assert.ErrorIs(t, svc.DeleteListing(context.Background(), owner, l.ID), ErrActiveRequests)
}

func TestDeleteListing_Ownership(t *testing.T) {
	svc, _, _ := setupListingsTest(t)
	l := createListing(t, svc, uuid.New(), "land")

	assert.ErrorIs(t, svc.DeleteListing(context.Background(), uuid.New(), l.ID), domain.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteListing(context.Background(), uuid.New(), uuid.New()), domain.ErrNotFound)
}

func panicOnEventInsert(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:event_panic", func(tx *gorm.DB) {
		if tx.Statement.Table == "listing_events" {
			panic("event insert failed")
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove("test:event_panic") })
}

func TestCreateListing_PanicRollsBack(t *testing.T) {
	svc, db, _ := setupListingsTest(t)
	panicOnEventInsert(t, db)

	assert.Panics(t, func() {
		_, _ = svc.CreateListing(context.Background(), uuid.New(), CreateListingInput{
			Category: "seed", Kind: "sale", Title: "Sona masuri paddy", Price: 40,
		})
	})

	var n int64
	require.NoError(t, db.Model(&domain.Listing{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestEditListing_PanicRollsBack(t *testing.T) {
	svc, db, _ := setupListingsTest(t)
	owner := uuid.New()
	l := createListing(t, svc, owner, "land")
	panicOnEventInsert(t, db)

	title := "Two acre plot"
	assert.Panics(t, func() {
		_, _ = svc.EditListing(context.Background(), owner, EditListingInput{ListingID: l.ID, Title: &title})
	})

	var got domain.Listing
	require.NoError(t, db.First(&got, "id = ?", l.ID).Error)
	assert.Equal(t, l.Title, got.Title)
}
