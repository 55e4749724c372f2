package cache

import "github.com/google/uuid"

// ListingKey is the cache key of a single listing.
func ListingKey(id uuid.UUID) string {
	return "listing:" + id.String()
}
