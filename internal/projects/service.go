package projects

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/geospatial"
	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/workflows"
)

// Registry owns project records and their status lifecycle
type Registry struct {
	repo         Repository
	stateMachine *workflows.StateMachine
	logger       *zap.Logger
	now          func() time.Time
}

// NewRegistry creates a project registry
func NewRegistry(repo Repository, logger *zap.Logger) *Registry {
	return &Registry{
		repo:         repo,
		stateMachine: workflows.NewPlantationStateMachine(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and stores a new pending project
func (s *Registry) Submit(ctx context.Context, ownerID string, req SubmitRequest) (*Project, error) {
	if err := validateSubmission(ownerID, req); err != nil {
		return nil, err
	}

	project := &Project{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Species:      strings.TrimSpace(req.Species),
		AreaHectares: req.AreaHectares,
		GPS:          req.GPS,
		ImageRef:     req.ImageRef,
		Status:       Status(s.stateMachine.Initial()),
		SubmittedAt:  s.now(),
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Project submitted",
		zap.String("project_id", project.ID.String()),
		zap.String("owner_id", ownerID),
		zap.Float64("area_hectares", project.AreaHectares))
	return project, nil
}

func validateSubmission(ownerID string, req SubmitRequest) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidProject)
	}
	if strings.TrimSpace(req.Species) == "" {
		return fmt.Errorf("%w: species is required", ErrInvalidProject)
	}
	if math.IsNaN(req.AreaHectares) || math.IsInf(req.AreaHectares, 0) || req.AreaHectares <= 0 {
		return fmt.Errorf("%w: area_hectares must be greater than zero", ErrInvalidProject)
	}
	if err := geospatial.ValidateCoordinate(req.GPS.Lat, req.GPS.Lng); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	return nil
}

// Get returns a project by id
func (s *Registry) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns projects matching the filter in submission order
func (s *Registry) List(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	return s.repo.List(ctx, filter)
}

// Approve transitions a pending project to verified, recording its score and sequestration
func (s *Registry) Approve(ctx context.Context, id uuid.UUID, score, co2Tons float64, decidedBy string) (*Project, error) {
	if score < 0 || score > 1 || math.IsNaN(score) {
		return nil, fmt.Errorf("score %v outside [0,1]", score)
	}
	if co2Tons < 0 || math.IsNaN(co2Tons) {
		return nil, fmt.Errorf("co2 tons %v must not be negative", co2Tons)
	}
	return s.decide(ctx, id, Decision{
		Status:    StatusVerified,
		Score:     &score,
		CO2Tons:   &co2Tons,
		DecidedBy: decidedBy,
	})
}

// Reject transitions a pending project to rejected. score may be nil.
func (s *Registry) Reject(ctx context.Context, id uuid.UUID, score *float64, decidedBy string) (*Project, error) {
	return s.decide(ctx, id, Decision{
		Status:    StatusRejected,
		Score:     score,
		DecidedBy: decidedBy,
	})
}

func (s *Registry) decide(ctx context.Context, id uuid.UUID, decision Decision) (*Project, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.stateMachine.CanTransition(string(current.Status), string(decision.Status)) {
		return nil, ErrAlreadyDecided
	}

	decision.DecidedAt = s.now()
	updated, err := s.repo.CompareAndSetDecision(ctx, id, decision)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project decided",
		zap.String("project_id", id.String()),
		zap.String("status", string(updated.Status)),
		zap.String("decided_by", decision.DecidedBy))
	return updated, nil
}
