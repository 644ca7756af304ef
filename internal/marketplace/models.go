package marketplace

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound                = errors.New("listing not found")
	ErrInvalidListing          = errors.New("invalid listing")
	ErrInvalidEscrowTransition = errors.New("invalid escrow transition")
	ErrVestingNotElapsed       = errors.New("vesting period has not elapsed")
)

// EscrowStatus represents where a listing's funds sit
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowLocked   EscrowStatus = "locked"
	EscrowReleased EscrowStatus = "released"
)

// Listing is a forward sale of future credits at a discount, held in escrow until vesting ends
type Listing struct {
	ID               uuid.UUID    `json:"id" gorm:"type:uuid;primary_key"`
	SellerID         string       `json:"seller_id" gorm:"not null;index"`
	BuyerID          string       `json:"buyer_id,omitempty" gorm:"index"`
	CreditsPurchased int64        `json:"credits_purchased" gorm:"not null"`
	DiscountRatePct  float64      `json:"discount_rate_pct" gorm:"type:decimal(5,2);not null"`
	VestingMonths    int          `json:"vesting_months" gorm:"not null"`
	EscrowStatus     EscrowStatus `json:"escrow_status" gorm:"default:'pending';index"`
	CreatedAt        time.Time    `json:"created_at"`
	PurchasedAt      *time.Time   `json:"purchased_at,omitempty"`
	ReleasedAt       *time.Time   `json:"released_at,omitempty"`
}

// TableName overrides the GORM table name
func (Listing) TableName() string {
	return "marketplace_listings"
}

// VestingEndsAt returns when a purchased listing may be released, or nil before purchase
func (l *Listing) VestingEndsAt() *time.Time {
	if l.PurchasedAt == nil {
		return nil
	}
	end := l.PurchasedAt.AddDate(0, l.VestingMonths, 0)
	return &end
}

// Clone returns a deep copy
func (l *Listing) Clone() *Listing {
	c := *l
	if l.PurchasedAt != nil {
		t := *l.PurchasedAt
		c.PurchasedAt = &t
	}
	if l.ReleasedAt != nil {
		t := *l.ReleasedAt
		c.ReleasedAt = &t
	}
	return &c
}

// CreateListingRequest is the payload for a new listing
type CreateListingRequest struct {
	CreditsPurchased int64   `json:"credits_purchased" binding:"required"`
	DiscountRatePct  float64 `json:"discount_rate_pct"`
	VestingMonths    int     `json:"vesting_months" binding:"required"`
}

// ListingFilter narrows ListListings. Zero fields match everything.
type ListingFilter struct {
	SellerID string
	BuyerID  string
	Status   EscrowStatus
}

// Matches reports whether a listing passes the filter
func (f ListingFilter) Matches(l *Listing) bool {
	if f.SellerID != "" && l.SellerID != f.SellerID {
		return false
	}
	if f.BuyerID != "" && l.BuyerID != f.BuyerID {
		return false
	}
	if f.Status != "" && l.EscrowStatus != f.Status {
		return false
	}
	return true
}

// EscrowUpdate is applied when a listing moves from one escrow status to the next
type EscrowUpdate struct {
	Status      EscrowStatus
	BuyerID     string
	PurchasedAt *time.Time
	ReleasedAt  *time.Time
}
