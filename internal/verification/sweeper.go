package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/scoring"
)

// SweeperConfig configuration for the verification sweeper
type SweeperConfig struct {
	Schedule      string
	BatchSize     int
	MaxConcurrent int
}

// SweepResult summarises one sweep
type SweepResult struct {
	Processed    int `json:"processed"`
	Approved     int `json:"approved"`
	Rejected     int `json:"rejected"`
	StillPending int `json:"still_pending"`
	Failed       int `json:"failed"`
}

// Sweeper periodically runs verification on pending projects
type Sweeper struct {
	cron     *cron.Cron
	workflow *Workflow
	config   SweeperConfig
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc

	// attempted records the sweep number that last tried each pending project
	attemptMu sync.Mutex
	attempted map[uuid.UUID]uint64
	sweeps    uint64
}

// NewSweeper creates a sweeper. Zero batch size or concurrency fall back to 50 and 4.
func NewSweeper(workflow *Workflow, config SweeperConfig, logger *zap.Logger) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	return &Sweeper{
		cron:      cron.New(cron.WithSeconds()),
		workflow:  workflow,
		config:    config,
		logger:    logger,
		attempted: make(map[uuid.UUID]uint64),
	}
}

// Start schedules the sweep and starts the cron scheduler
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunOnce(s.ctx); err != nil {
			s.logger.Error("Verification sweep failed", zap.Error(err))
		}
	}); err != nil {
		s.cancel()
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.config.Schedule, err)
	}

	s.logger.Info("Starting verification sweeper", zap.String("schedule", s.config.Schedule))
	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	s.logger.Info("Stopping verification sweeper")
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
}

// RunOnce verifies one batch of pending projects with bounded concurrency. Projects never
// attempted come first, then the least recently attempted, so projects whose scoring keeps
// failing rotate to the back instead of occupying every batch.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	pending, err := s.workflow.ListProjects(ctx, projects.ProjectFilter{Status: projects.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending projects: %w", err)
	}
	pending = s.nextBatch(pending)

	result := &SweepResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.config.MaxConcurrent)

	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(p *projects.Project) {
			defer func() {
				<-sem
				wg.Done()
			}()

			outcome, err := s.workflow.RunVerification(ctx, p.ID)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch {
			case err != nil && errors.Is(err, scoring.ErrScoringUnavailable):
				result.StillPending++
				s.logger.Debug("Scoring unavailable, will retry next sweep",
					zap.String("project_id", p.ID.String()))
			case err != nil:
				result.Failed++
				s.logger.Error("Verification failed",
					zap.String("project_id", p.ID.String()),
					zap.Error(err))
			case outcome.Status == OutcomeApproved:
				result.Approved++
			case outcome.Status == OutcomeRejected:
				result.Rejected++
			default:
				result.StillPending++
			}
		}(p)
	}
	wg.Wait()

	if result.Processed > 0 {
		s.logger.Info("Verification sweep completed",
			zap.Int("processed", result.Processed),
			zap.Int("approved", result.Approved),
			zap.Int("rejected", result.Rejected),
			zap.Int("still_pending", result.StillPending),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// nextBatch picks up to BatchSize projects and marks them attempted in this sweep
func (s *Sweeper) nextBatch(pending []*projects.Project) []*projects.Project {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	s.sweeps++
	live := make(map[uuid.UUID]uint64, len(pending))
	for _, p := range pending {
		live[p.ID] = s.attempted[p.ID]
	}
	// decided projects no longer need a slot
	s.attempted = live

	sort.SliceStable(pending, func(i, j int) bool {
		return live[pending[i].ID] < live[pending[j].ID]
	})
	if len(pending) > s.config.BatchSize {
		pending = pending[:s.config.BatchSize]
	}
	for _, p := range pending {
		s.attempted[p.ID] = s.sweeps
	}
	return pending
}
