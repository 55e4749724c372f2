package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseClient signs uploads into Supabase Storage.
type SupabaseClient interface {
	CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error)
}

// ErrStorageKey means storage refused the configured key, usually because
// the anon key was set instead of the service_role key.
var ErrStorageKey = errors.New("supabase storage rejected SUPABASE_SECRET_KEY: the service_role key is required")

const defaultUploadExpiry = time.Hour

// HTTPClient talks to the Storage REST API.
type HTTPClient struct {
	BaseURL   string
	SecretKey string
	Expiry    time.Duration
	Client    *http.Client
}

// signResponse covers the field names different storage versions answer with.
type signResponse struct {
	SignedURL      string `json:"signedUrl"`
	SignedURLSnake string `json:"signed_url"`
	URL            string `json:"url"`
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *HTTPClient) CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error) {
	switch {
	case c.BaseURL == "":
		return "", errors.New("supabase: SUPABASE_URL is not set")
	case c.SecretKey == "":
		return "", errors.New("supabase: SUPABASE_SECRET_KEY is not set")
	}
	expiry := c.Expiry
	if expiry <= 0 {
		expiry = defaultUploadExpiry
	}
	base := strings.TrimRight(c.BaseURL, "/")
	endpoint := fmt.Sprintf("%s/storage/v1/object/upload/sign/%s/%s", base, bucket, path)
	payload, _ := json.Marshal(map[string]interface{}{
		"expiresIn": int(expiry.Seconds()),
		"upsert":    false,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", c.SecretKey)
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		if isKeyRejection(resp.StatusCode, body) {
			return "", ErrStorageKey
		}
		return "", fmt.Errorf("supabase sign %s/%s: status %d: %s", bucket, path, resp.StatusCode, body)
	}
	return signedURLFrom(base, body)
}

func isKeyRejection(status int, body []byte) bool {
	if status != http.StatusBadRequest && status != http.StatusForbidden {
		return false
	}
	return bytes.Contains(body, []byte("Invalid Compact JWS")) || bytes.Contains(body, []byte("Unauthorized"))
}

// signedURLFrom returns an absolute upload URL from the sign response. A bare
// "url" is relative to the project base.
func signedURLFrom(base string, body []byte) (string, error) {
	var r signResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("supabase response decode: %w", err)
	}
	switch {
	case r.SignedURL != "":
		return r.SignedURL, nil
	case r.SignedURLSnake != "":
		return r.SignedURLSnake, nil
	case r.URL != "":
		return base + "/" + strings.TrimLeft(r.URL, "/"), nil
	}
	return "", fmt.Errorf("supabase returned no signed URL: %s", body)
}
