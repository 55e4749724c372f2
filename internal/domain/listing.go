package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingCategory is the unifying type tag for equipment, land and seed rows.
type ListingCategory string

const (
	CategoryEquipment ListingCategory = "equipment"
	CategoryLand      ListingCategory = "land"
	CategorySeed      ListingCategory = "seed"
)

func (c ListingCategory) Valid() bool {
	switch c {
	case CategoryEquipment, CategoryLand, CategorySeed:
		return true
	}
	return false
}

// ListingKind says whether a listing is offered for rent or for sale.
type ListingKind string

const (
	KindRent ListingKind = "rent"
	KindSale ListingKind = "sale"
)

func (k ListingKind) Valid() bool {
	return k == KindRent || k == KindSale
}

// ListingStatus is the availability of a listing.
type ListingStatus string

const (
	ListingAvailable    ListingStatus = "Available"
	ListingNotAvailable ListingStatus = "NotAvailable"
)

func (s ListingStatus) Valid() bool {
	return s == ListingAvailable || s == ListingNotAvailable
}

// Listing is an equipment, land or seed item owned by a user.
// OwnerID, Category and Kind are fixed at creation.
type Listing struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	Category    ListingCategory `gorm:"column:category;type:varchar(20);not null;index" json:"category"`
	Kind        ListingKind     `gorm:"column:kind;type:varchar(10);not null" json:"kind"`
	Status      ListingStatus   `gorm:"column:status;type:varchar(20);not null;default:'Available'" json:"status"`
	Title       string          `gorm:"column:title;not null" json:"title"`
	Price       float64         `gorm:"column:price;type:decimal(12,2);not null" json:"price"`
	Location    string          `gorm:"column:location" json:"location"`
	Description string          `gorm:"column:description" json:"description"`
	ImageURL    string          `gorm:"column:image_url" json:"image_url"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}

// BeforeCreate sets id and the default status if not already set.
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = ListingAvailable
	}
	return nil
}
