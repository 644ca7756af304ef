package marketplace

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Repository persists listings. CompareAndSetEscrow must apply the update only while
// the stored status equals from, returning ErrInvalidEscrowTransition otherwise.
type Repository interface {
	Create(ctx context.Context, listing *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]*Listing, error)
	CompareAndSetEscrow(ctx context.Context, id uuid.UUID, from EscrowStatus, update EscrowUpdate) (*Listing, error)
}

type memoryRepository struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]*Listing
	order    []uuid.UUID
}

// NewMemoryRepository creates an in-process listing store
func NewMemoryRepository() Repository {
	return &memoryRepository{listings: make(map[uuid.UUID]*Listing)}
}

func (r *memoryRepository) Create(ctx context.Context, listing *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[listing.ID] = listing.Clone()
	r.order = append(r.order, listing.ID)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (r *memoryRepository) List(ctx context.Context, filter ListingFilter) ([]*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Listing, 0)
	for _, id := range r.order {
		if l := r.listings[id]; filter.Matches(l) {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (r *memoryRepository) CompareAndSetEscrow(ctx context.Context, id uuid.UUID, from EscrowStatus, update EscrowUpdate) (*Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if l.EscrowStatus != from {
		return nil, ErrInvalidEscrowTransition
	}
	applyUpdate(l, update)
	return l.Clone(), nil
}

func applyUpdate(l *Listing, update EscrowUpdate) {
	l.EscrowStatus = update.Status
	if update.BuyerID != "" {
		l.BuyerID = update.BuyerID
	}
	if update.PurchasedAt != nil {
		t := *update.PurchasedAt
		l.PurchasedAt = &t
	}
	if update.ReleasedAt != nil {
		t := *update.ReleasedAt
		l.ReleasedAt = &t
	}
}
