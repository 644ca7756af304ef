package marketplace

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/workflows"
)

// Service manages forward-sale listings and their escrow lifecycle
type Service struct {
	repo         Repository
	stateMachine *workflows.StateMachine
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a marketplace service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		stateMachine: workflows.NewEscrowStateMachine(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateListing opens a new listing in pending escrow
func (s *Service) CreateListing(ctx context.Context, sellerID string, req CreateListingRequest) (*Listing, error) {
	switch {
	case sellerID == "":
		return nil, fmt.Errorf("%w: seller is required", ErrInvalidListing)
	case req.CreditsPurchased <= 0:
		return nil, fmt.Errorf("%w: credits must be positive", ErrInvalidListing)
	case req.DiscountRatePct < 0 || req.DiscountRatePct > 100 || math.IsNaN(req.DiscountRatePct):
		return nil, fmt.Errorf("%w: discount rate must be within [0,100]", ErrInvalidListing)
	case req.VestingMonths <= 0:
		return nil, fmt.Errorf("%w: vesting months must be positive", ErrInvalidListing)
	}

	listing := &Listing{
		ID:               uuid.New(),
		SellerID:         sellerID,
		CreditsPurchased: req.CreditsPurchased,
		DiscountRatePct:  req.DiscountRatePct,
		VestingMonths:    req.VestingMonths,
		EscrowStatus:     EscrowStatus(s.stateMachine.Initial()),
		CreatedAt:        s.now(),
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, err
	}

	s.logger.Info("Listing created",
		zap.String("listing_id", listing.ID.String()),
		zap.String("seller_id", sellerID),
		zap.Int64("credits", listing.CreditsPurchased))
	return listing, nil
}

// GetListing returns a listing by id
func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return s.repo.GetByID(ctx, id)
}

// ListListings returns listings matching the filter
func (s *Service) ListListings(ctx context.Context, filter ListingFilter) ([]*Listing, error) {
	return s.repo.List(ctx, filter)
}

// PurchaseListing locks a pending listing's escrow for the buyer
func (s *Service) PurchaseListing(ctx context.Context, id uuid.UUID, buyerID string) (*Listing, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer is required", ErrInvalidListing)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SellerID == buyerID {
		return nil, fmt.Errorf("%w: seller cannot buy own listing", ErrInvalidListing)
	}
	if !s.stateMachine.CanTransition(string(current.EscrowStatus), string(EscrowLocked)) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidEscrowTransition, current.EscrowStatus, EscrowLocked)
	}

	now := s.now()
	updated, err := s.repo.CompareAndSetEscrow(ctx, id, current.EscrowStatus, EscrowUpdate{
		Status:      EscrowLocked,
		BuyerID:     buyerID,
		PurchasedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing purchased",
		zap.String("listing_id", id.String()),
		zap.String("buyer_id", buyerID))
	return updated, nil
}

// ReleaseListing releases a locked listing once its vesting period has elapsed
func (s *Service) ReleaseListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.stateMachine.CanTransition(string(current.EscrowStatus), string(EscrowReleased)) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidEscrowTransition, current.EscrowStatus, EscrowReleased)
	}

	now := s.now()
	if end := current.VestingEndsAt(); end == nil || now.Before(*end) {
		return nil, ErrVestingNotElapsed
	}

	updated, err := s.repo.CompareAndSetEscrow(ctx, id, current.EscrowStatus, EscrowUpdate{
		Status:     EscrowReleased,
		ReleasedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing released", zap.String("listing_id", id.String()))
	return updated, nil
}
