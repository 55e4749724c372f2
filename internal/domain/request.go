package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus is the lifecycle status of a Request. Approved and rejected are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is defined from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// Decision is the owner's verdict on a pending Request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status returns the request status a decision moves a pending request to.
func (d Decision) Status() RequestStatus {
	if d == DecisionApprove {
		return RequestApproved
	}
	return RequestRejected
}

// Request is a user's intent to rent or buy a Listing.
// Contact fields are immutable after creation.
type Request struct {
	ID          uuid.UUID     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID   uuid.UUID     `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	RequesterID uuid.UUID     `gorm:"column:requester_id;type:uuid;not null;index" json:"requester_id"`
	FullName    string        `gorm:"column:full_name;not null" json:"full_name"`
	Phone       string        `gorm:"column:phone;not null" json:"phone"`
	Location    string        `gorm:"column:location;not null" json:"location"`
	Message     string        `gorm:"column:message" json:"message"`
	Status      RequestStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time     `gorm:"column:created_at;not null" json:"created_at"`
	ResolvedAt  *time.Time    `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (Request) TableName() string {
	return "requests"
}

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	return nil
}
