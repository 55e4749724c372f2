package uploads

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"agrihub-backend/internal/domain"

	"github.com/google/uuid"
)

// ListingImagesBucket holds listing photos.
const ListingImagesBucket = "listing-images"

var (
	ErrFileNameRequired = domain.NewError(domain.ErrValidation, "file_name is required")
	ErrUnsupportedImage = domain.NewError(domain.ErrValidation, "Only jpg, jpeg, png and webp images are allowed")
)

var allowedImageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Service encapsulates upload logic.
type Service struct {
	Client      SupabaseClient
	SupabaseURL string
	Now         func() time.Time
}

// UploadResult is returned to clients that upload directly to storage.
type UploadResult struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Path      string `json:"path"`
}

// ListingImageUploadURL signs an upload into the owner's folder of the listing images bucket.
func (s *Service) ListingImageUploadURL(ctx context.Context, ownerID uuid.UUID, fileName string) (*UploadResult, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, ErrFileNameRequired
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedImageExt[ext] {
		return nil, ErrUnsupportedImage
	}
	base := unsafeChars.ReplaceAllString(strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)), "-")
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	path := fmt.Sprintf("%s/%d-%s%s", ownerID, now().UnixMilli(), base, ext)
	return s.GetSignedUploadURL(ctx, ListingImagesBucket, path)
}

// GetSignedUploadURL generates a signed upload URL for path in bucket.
func (s *Service) GetSignedUploadURL(ctx context.Context, bucket, path string) (*UploadResult, error) {
	signedURL, err := s.Client.CreateSignedUploadURL(ctx, bucket, path)
	if err != nil {
		return nil, err
	}

	publicBase := strings.TrimRight(s.SupabaseURL, "/")
	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", publicBase, bucket, path)

	return &UploadResult{
		UploadURL: signedURL,
		PublicURL: publicURL,
		Path:      path,
	}, nil
}
