package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

// ErrScoringUnavailable is returned when no confidence score could be produced. Callers may retry.
var ErrScoringUnavailable = errors.New("scoring unavailable")

// Validator produces a verification confidence score in [0,1] for a project
type Validator interface {
	Validate(ctx context.Context, project *projects.Project) (float64, error)
}

// Result is the outcome of scoring a project
type Result struct {
	Score   float64 `json:"score"`
	CO2Tons float64 `json:"co2_tons"`
}

// Service scores projects and estimates their sequestration
type Service struct {
	validator           Validator
	sequestrationFactor float64
	timeout             time.Duration
	logger              *zap.Logger
}

// NewService creates a scoring service. A zero timeout relies on the caller's context alone.
func NewService(validator Validator, sequestrationFactor float64, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		validator:           validator,
		sequestrationFactor: sequestrationFactor,
		timeout:             timeout,
		logger:              logger,
	}
}

// EstimateCO2 returns areaHectares × sequestrationFactor, unrounded
func (s *Service) EstimateCO2(areaHectares float64) float64 {
	return areaHectares * s.sequestrationFactor
}

// Score asks the validator for a confidence score. It never mutates the project.
func (s *Service) Score(ctx context.Context, project *projects.Project) (*Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type outcome struct {
		score float64
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		score, err := s.validator.Validate(ctx, project)
		done <- outcome{score: score, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		s.logger.Warn("Scoring timed out",
			zap.String("project_id", project.ID.String()),
			zap.Error(ctx.Err()))
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, ctx.Err())
	case out = <-done:
	}

	if out.err != nil {
		s.logger.Warn("Validator failed",
			zap.String("project_id", project.ID.String()),
			zap.Error(out.err))
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, out.err)
	}
	if math.IsNaN(out.score) || out.score < 0 || out.score > 1 {
		return nil, fmt.Errorf("%w: validator returned score %v outside [0,1]", ErrScoringUnavailable, out.score)
	}

	return &Result{
		Score:   out.score,
		CO2Tons: s.EstimateCO2(project.AreaHectares),
	}, nil
}
