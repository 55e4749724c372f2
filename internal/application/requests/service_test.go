package requests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/events"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	events []events.ChangeEvent
}

func (r *recorder) Publish(_ context.Context, e events.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fakeCache struct{ keys []string }

func (f *fakeCache) Invalidate(_ context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	pub   *recorder
	cache *fakeCache
	owner uuid.UUID
}

func setupResolverTest(t *testing.T, policy Policy) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Request{}, &domain.ListingEvent{}))

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{db: db, pub: &recorder{}, cache: &fakeCache{}, owner: uuid.New()}
	f.svc = &Service{
		DB:     db,
		Policy: policy,
		Events: f.pub,
		Cache:  f.cache,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	return f
}

func (f *fixture) listing(t *testing.T, category domain.ListingCategory) *domain.Listing {
	t.Helper()
	l := &domain.Listing{
		OwnerID:  f.owner,
		Category: category,
		Kind:     domain.KindRent,
		Title:    "Tractor",
		Price:    1500,
	}
	require.NoError(t, f.db.Create(l).Error)
	return l
}

func (f *fixture) request(t *testing.T, listingID uuid.UUID, name string) *domain.Request {
	t.Helper()
	req, err := f.svc.CreateRequest(context.Background(), uuid.New(), listingID, RequesterInfo{
		FullName: name,
		Phone:    "+91 98765 43210",
		Location: "Nashik",
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) domain.Request {
	t.Helper()
	var r domain.Request
	require.NoError(t, f.db.First(&r, "id = ?", id).Error)
	return r
}

func (f *fixture) listingStatus(t *testing.T, id uuid.UUID) domain.ListingStatus {
	t.Helper()
	var l domain.Listing
	require.NoError(t, f.db.First(&l, "id = ?", id).Error)
	return l.Status
}

func TestCreateRequest_Pending(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)

	req, err := f.svc.CreateRequest(context.Background(), uuid.New(), l.ID, RequesterInfo{
		FullName: "  Ravi Kumar ",
		Phone:    "9876543210",
		Location: "Pune",
		Message:  "Need it for two days",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, "Ravi Kumar", req.FullName)
	assert.Nil(t, req.ResolvedAt)

	var n int64
	f.db.Model(&domain.ListingEvent{}).Where("listing_id = ? AND event_type = ?", l.ID, domain.EventRequested).Count(&n)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{events.RequestCreated}, f.pub.types())
}

func TestCreateRequest_ValidationBeforePersistence(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryLand)

	cases := []struct {
		name string
		info RequesterInfo
	}{
		{"empty name", RequesterInfo{FullName: "", Phone: "9876543210", Location: "Pune"}},
		{"blank phone", RequesterInfo{FullName: "Asha", Phone: "   ", Location: "Pune"}},
		{"bad phone", RequesterInfo{FullName: "Asha", Phone: "call me", Location: "Pune"}},
		{"no location", RequesterInfo{FullName: "Asha", Phone: "9876543210"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateRequest(context.Background(), uuid.New(), l.ID, tc.info)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	var n int64
	f.db.Model(&domain.Request{}).Count(&n)
	assert.Zero(t, n)
	assert.Empty(t, f.pub.types())
}

func TestCreateRequest_UnknownListing(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	_, err := f.svc.CreateRequest(context.Background(), uuid.New(), uuid.New(), RequesterInfo{
		FullName: "Asha", Phone: "9876543210", Location: "Pune",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRequest_OptionalPolicies(t *testing.T) {
	f := setupResolverTest(t, Policy{RejectSelfRequests: true, RejectDuplicatePending: true})
	l := f.listing(t, domain.CategoryEquipment)
	info := RequesterInfo{FullName: "Asha", Phone: "9876543210", Location: "Pune"}

	_, err := f.svc.CreateRequest(context.Background(), f.owner, l.ID, info)
	assert.ErrorIs(t, err, ErrSelfRequest)
	assert.ErrorIs(t, err, domain.ErrConflict)

	requester := uuid.New()
	_, err = f.svc.CreateRequest(context.Background(), requester, l.ID, info)
	require.NoError(t, err)
	_, err = f.svc.CreateRequest(context.Background(), requester, l.ID, info)
	assert.ErrorIs(t, err, ErrDuplicatePending)
}

func TestCreateRequest_PoliciesOffByDefault(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	info := RequesterInfo{FullName: "Owner", Phone: "9876543210", Location: "Pune"}

	_, err := f.svc.CreateRequest(context.Background(), f.owner, l.ID, info)
	require.NoError(t, err)
	_, err = f.svc.CreateRequest(context.Background(), f.owner, l.ID, info)
	require.NoError(t, err)
}

func TestListRequestsForOwner_OnlyOwnListings(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	mine := f.listing(t, domain.CategoryEquipment)
	other := &domain.Listing{OwnerID: uuid.New(), Category: domain.CategorySeed, Kind: domain.KindSale, Title: "Wheat seed", Price: 40}
	require.NoError(t, f.db.Create(other).Error)

	a := f.request(t, mine.ID, "A")
	f.request(t, other.ID, "X")
	b := f.request(t, mine.ID, "B")

	got, err := f.svc.ListRequestsForOwner(context.Background(), f.owner, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)

	got, err = f.svc.ListRequestsForOwner(context.Background(), f.owner, &other.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListRequestsForRequester(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")
	f.request(t, l.ID, "B")

	got, err := f.svc.ListRequestsForRequester(context.Background(), r.RequesterID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)
}

func TestGetRequest_Visibility(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")

	_, err := f.svc.GetRequest(context.Background(), r.RequesterID, r.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetRequest(context.Background(), f.owner, r.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetRequest(context.Background(), uuid.New(), r.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.GetRequest(context.Background(), f.owner, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveRequest_ApproveFlipsListing(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")

	got, err := f.svc.ResolveRequest(context.Background(), f.owner, r.ID, domain.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, domain.ListingNotAvailable, f.listingStatus(t, l.ID))
	assert.Equal(t, []string{"listing:" + l.ID.String()}, f.cache.keys)
	assert.Equal(t, []string{events.RequestCreated, events.RequestApproved}, f.pub.types())
}

func TestResolveRequest_RejectLeavesListing(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")

	got, err := f.svc.ResolveRequest(context.Background(), f.owner, r.ID, domain.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, got.Status)
	assert.Equal(t, domain.ListingAvailable, f.listingStatus(t, l.ID))
	assert.Empty(t, f.cache.keys)
}

func TestResolveRequest_SecondResolutionInvalidState(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, r.ID, domain.DecisionReject)
	require.NoError(t, err)

	_, err = f.svc.ResolveRequest(context.Background(), f.owner, r.ID, domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, domain.RequestRejected, f.reload(t, r.ID).Status)
	assert.Equal(t, domain.ListingAvailable, f.listingStatus(t, l.ID))
}

func TestResolveRequest_Errors(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, r.ID, domain.Decision("maybe"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.ResolveRequest(context.Background(), f.owner, uuid.New(), domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.ResolveRequest(context.Background(), uuid.New(), r.ID, domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.RequestPending, f.reload(t, r.ID).Status)
}

func TestResolveRequest_ScenarioAutoReject(t *testing.T) {
	f := setupResolverTest(t, Policy{AutoRejectOnApprove: true})
	l := f.listing(t, domain.CategoryEquipment)
	a := f.request(t, l.ID, "A")
	b := f.request(t, l.ID, "B")

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, a.ID, domain.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, f.reload(t, a.ID).Status)
	assert.Equal(t, domain.RequestRejected, f.reload(t, b.ID).Status)
	assert.Equal(t, domain.ListingNotAvailable, f.listingStatus(t, l.ID))

	var n int64
	f.db.Model(&domain.ListingEvent{}).Where("request_id = ? AND event_type = ?", b.ID, domain.EventAutoRejected).Count(&n)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.ResolveRequest(context.Background(), f.owner, b.ID, domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestResolveRequest_ScenarioWithoutAutoReject(t *testing.T) {
	f := setupResolverTest(t, Policy{AutoRejectOnApprove: false})
	l := f.listing(t, domain.CategoryEquipment)
	a := f.request(t, l.ID, "A")
	b := f.request(t, l.ID, "B")

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, a.ID, domain.DecisionApprove)
	require.NoError(t, err)

	_, err = f.svc.ResolveRequest(context.Background(), f.owner, b.ID, domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, ErrListingUnavailable)
	assert.Equal(t, domain.RequestPending, f.reload(t, b.ID).Status)

	// B can still be rejected.
	_, err = f.svc.ResolveRequest(context.Background(), f.owner, b.ID, domain.DecisionReject)
	require.NoError(t, err)
}

// afterListingRead runs write once, right after ResolveRequest has read the
// listing and before its transaction starts, so the service acts on a stale read.
func (f *fixture) afterListingRead(t *testing.T, write func(db *gorm.DB)) {
	t.Helper()
	var once sync.Once
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:concurrent_write", func(tx *gorm.DB) {
		if tx.Statement.Table == "listings" {
			once.Do(func() { write(f.db) })
		}
	}))
	t.Cleanup(func() { _ = f.db.Callback().Query().Remove("test:concurrent_write") })
}

func (f *fixture) eventCount(t *testing.T, listingID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&domain.ListingEvent{}).Where("listing_id = ?", listingID).Count(&n).Error)
	return n
}

func TestResolveRequest_StaleRequestLosesInTransaction(t *testing.T) {
	f := setupResolverTest(t, Policy{AutoRejectOnApprove: true})
	l := f.listing(t, domain.CategoryEquipment)
	a := f.request(t, l.ID, "A")
	b := f.request(t, l.ID, "B")
	events0, published0 := f.eventCount(t, l.ID), len(f.pub.types())

	// Another session rejects A after this one has seen it pending.
	f.afterListingRead(t, func(db *gorm.DB) {
		require.NoError(t, db.Model(&domain.Request{}).Where("id = ?", a.ID).Update("status", domain.RequestRejected).Error)
	})

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, a.ID, domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	assert.Equal(t, domain.RequestRejected, f.reload(t, a.ID).Status)
	assert.Equal(t, domain.RequestPending, f.reload(t, b.ID).Status)
	assert.Equal(t, domain.ListingAvailable, f.listingStatus(t, l.ID))
	assert.Equal(t, events0, f.eventCount(t, l.ID))
	assert.Len(t, f.pub.types(), published0)
	assert.Empty(t, f.cache.keys)
}

func TestResolveRequest_StaleListingLosesInTransaction(t *testing.T) {
	f := setupResolverTest(t, Policy{AutoRejectOnApprove: true})
	l := f.listing(t, domain.CategoryEquipment)
	a := f.request(t, l.ID, "A")
	b := f.request(t, l.ID, "B")
	events0, published0 := f.eventCount(t, l.ID), len(f.pub.types())

	// Another approval takes the listing after this one has seen it Available.
	f.afterListingRead(t, func(db *gorm.DB) {
		require.NoError(t, db.Model(&domain.Listing{}).Where("id = ?", l.ID).Update("status", domain.ListingNotAvailable).Error)
	})

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, a.ID, domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, ErrListingUnavailable)

	// The request update inside the transaction is rolled back with it.
	got := f.reload(t, a.ID)
	assert.Equal(t, domain.RequestPending, got.Status)
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, domain.RequestPending, f.reload(t, b.ID).Status)
	assert.Equal(t, domain.ListingNotAvailable, f.listingStatus(t, l.ID))
	assert.Equal(t, events0, f.eventCount(t, l.ID))
	assert.Len(t, f.pub.types(), published0)
	assert.Empty(t, f.cache.keys)
}

func TestResolveRequest_PublishFailureDoesNotFail(t *testing.T) {
	f := setupResolverTest(t, Policy{})
	f.svc.Events = failingPublisher{}
	l := f.listing(t, domain.CategoryEquipment)
	r := f.request(t, l.ID, "A")

	_, err := f.svc.ResolveRequest(context.Background(), f.owner, r.ID, domain.DecisionApprove)
	require.NoError(t, err)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.ChangeEvent) error {
	return errors.New("nats: connection closed")
}

func TestStoreFailure_RemoteUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	svc := &Service{DB: db, Events: events.Nop{}}

	mock.ExpectQuery(`SELECT (.+) FROM "requests"`).WillReturnError(errors.New("connection reset by peer"))
	_, err = svc.ResolveRequest(context.Background(), uuid.New(), uuid.New(), domain.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	mock.ExpectQuery(`SELECT (.+) FROM "listings"`).WillReturnError(errors.New("connection reset by peer"))
	_, err = svc.CreateRequest(context.Background(), uuid.New(), uuid.New(), RequesterInfo{
		FullName: "Asha", Phone: "9876543210", Location: "Pune",
	})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	mock.ExpectQuery(`SELECT (.+) FROM "requests"`).WillReturnError(errors.New("timeout"))
	_, err = svc.ListRequestsForOwner(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}
