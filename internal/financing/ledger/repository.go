package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository is the append-only store of credit transactions.
// Insert must enforce at most one transaction per project and return ErrAlreadyMinted otherwise.
type Repository interface {
	Insert(ctx context.Context, tx *CreditTransaction) error
	GetByProject(ctx context.Context, projectID uuid.UUID) (*CreditTransaction, error)
	List(ctx context.Context, filter Filter) ([]*CreditTransaction, error)
}

type memoryRepository struct {
	mu        sync.RWMutex
	byProject map[uuid.UUID]*CreditTransaction
	entries   []*CreditTransaction
}

// NewMemoryRepository returns an in-process ledger store
func NewMemoryRepository() Repository {
	return &memoryRepository{byProject: make(map[uuid.UUID]*CreditTransaction)}
}

func (r *memoryRepository) Insert(ctx context.Context, tx *CreditTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byProject[tx.ProjectID]; exists {
		return ErrAlreadyMinted
	}
	stored := *tx
	r.byProject[tx.ProjectID] = &stored
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *memoryRepository) GetByProject(ctx context.Context, projectID uuid.UUID) (*CreditTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.byProject[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *tx
	return &out, nil
}

func (r *memoryRepository) List(ctx context.Context, filter Filter) ([]*CreditTransaction, error) {
	r.mu.RLock()
	out := make([]*CreditTransaction, 0)
	for _, tx := range r.entries {
		if filter.Matches(tx) {
			c := *tx
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()

	SortByMintedAt(out)
	return out, nil
}

// SortByMintedAt orders transactions by mint time ascending, ties broken by id
func SortByMintedAt(txs []*CreditTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].MintedAt.Equal(txs[j].MintedAt) {
			return txs[i].MintedAt.Before(txs[j].MintedAt)
		}
		return txs[i].ID.String() < txs[j].ID.String()
	})
}
