package projects

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Repository persists projects. CompareAndSetDecision must apply the decision
// only while the stored status is pending, returning ErrAlreadyDecided otherwise.
type Repository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	List(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	CompareAndSetDecision(ctx context.Context, id uuid.UUID, decision Decision) (*Project, error)
}

type memoryRepository struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*Project
	order    []uuid.UUID
}

// NewMemoryRepository returns an in-process repository guarded by a RWMutex
func NewMemoryRepository() Repository {
	return &memoryRepository{projects: make(map[uuid.UUID]*Project)}
}

func (r *memoryRepository) Create(ctx context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[project.ID]; exists {
		return ErrInvalidProject
	}
	r.projects[project.ID] = project.Clone()
	r.order = append(r.order, project.ID)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *memoryRepository) List(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Project, 0)
	for _, id := range r.order {
		p := r.projects[id]
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepository) CompareAndSetDecision(ctx context.Context, id uuid.UUID, decision Decision) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != StatusPending {
		return nil, ErrAlreadyDecided
	}

	updated := p.Clone()
	updated.Status = decision.Status
	updated.VerificationScore = decision.Score
	updated.CO2Tons = decision.CO2Tons
	decidedAt := decision.DecidedAt
	updated.DecidedAt = &decidedAt
	updated.DecidedBy = decision.DecidedBy
	r.projects[id] = updated.Clone()
	return updated, nil
}
