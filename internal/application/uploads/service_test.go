package uploads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agrihub-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	bucket, path string
}

func (f *fakeSigner) CreateSignedUploadURL(_ context.Context, bucket, path string) (string, error) {
	f.bucket, f.path = bucket, path
	return "https://signed.example/" + path, nil
}

func TestListingImageUploadURL(t *testing.T) {
	signer := &fakeSigner{}
	svc := &Service{
		Client:      signer,
		SupabaseURL: "https://proj.supabase.co/",
		Now:         func() time.Time { return time.UnixMilli(1700000000000) },
	}
	owner := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	res, err := svc.ListingImageUploadURL(context.Background(), owner, "My Tractor (1).JPG")
	require.NoError(t, err)
	assert.Equal(t, ListingImagesBucket, signer.bucket)
	assert.Equal(t, owner.String()+"/1700000000000-My-Tractor-1-.jpg", res.Path)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/listing-images/"+res.Path, res.PublicURL)
}

func TestListingImageUploadURL_Validation(t *testing.T) {
	svc := &Service{Client: &fakeSigner{}}
	_, err := svc.ListingImageUploadURL(context.Background(), uuid.New(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ListingImageUploadURL(context.Background(), uuid.New(), "notes.pdf")
	assert.Equal(t, ErrUnsupportedImage, err)
}

func TestHTTPClient_CreateSignedUploadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/storage/v1/object/upload/sign/listing-images/"))
		json.NewEncoder(w).Encode(map[string]string{"url": "storage/v1/object/upload/sign/listing-images/a.png?token=t"})
	}))
	defer srv.Close()

	c := &HTTPClient{BaseURL: srv.URL, SecretKey: "secret"}
	u, err := c.CreateSignedUploadURL(context.Background(), ListingImagesBucket, "a.png")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/upload/sign/listing-images/a.png?token=t", u)
}

func TestHTTPClient_MissingConfig(t *testing.T) {
	_, err := (&HTTPClient{}).CreateSignedUploadURL(context.Background(), ListingImagesBucket, "a.png")
	assert.Error(t, err)
}

func TestHTTPClient_AnonKeyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"statusCode":"403","error":"Unauthorized","message":"Invalid Compact JWS"}`))
	}))
	defer srv.Close()

	c := &HTTPClient{BaseURL: srv.URL, SecretKey: "anon"}
	_, err := c.CreateSignedUploadURL(context.Background(), ListingImagesBucket, "a.png")
	assert.ErrorIs(t, err, ErrStorageKey)
}
