package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/notifications"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/scoring"
)

// SystemReviewer is recorded as the decider of automatic verifications
const SystemReviewer = "system:verification"

var (
	// ErrBelowThreshold is returned when a manual approval scores under the approval threshold
	ErrBelowThreshold = errors.New("verification score below approval threshold")
	// ErrInvalidDecision is returned for an unknown decision or a missing reviewer
	ErrInvalidDecision = errors.New("invalid decision")
)

// Decision is a reviewer's manual verdict
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// OutcomeStatus is the result of a verification run
type OutcomeStatus string

const (
	OutcomeApproved OutcomeStatus = "approved"
	OutcomeRejected OutcomeStatus = "rejected"
	OutcomePending  OutcomeStatus = "pending"
)

// Outcome reports where a project ended up after verification
type Outcome struct {
	ProjectID   uuid.UUID                 `json:"project_id"`
	Status      OutcomeStatus             `json:"status"`
	Score       *float64                  `json:"score,omitempty"`
	CO2Tons     *float64                  `json:"co2_tons,omitempty"`
	TxRef       string                    `json:"tx_ref,omitempty"`
	Transaction *ledger.CreditTransaction `json:"transaction,omitempty"`
}

// Scorer produces a confidence score and sequestration estimate
type Scorer interface {
	Score(ctx context.Context, project *projects.Project) (*scoring.Result, error)
}

// Config holds the policy knobs the workflow applies
type Config struct {
	ApprovalThreshold float64
	RevenuePerTon     revenue.Money
}

// Workflow orchestrates scoring, registry transitions and ledger minting
type Workflow struct {
	registry *projects.Registry
	scorer   Scorer
	ledger   *ledger.Ledger
	sink     notifications.Sink
	config   Config
	logger   *zap.Logger
	inflight singleflight.Group
}

// NewWorkflow creates a verification workflow
func NewWorkflow(
	registry *projects.Registry,
	scorer Scorer,
	ledger *ledger.Ledger,
	sink notifications.Sink,
	config Config,
	logger *zap.Logger,
) *Workflow {
	return &Workflow{
		registry: registry,
		scorer:   scorer,
		ledger:   ledger,
		sink:     sink,
		config:   config,
		logger:   logger,
	}
}

// Submit registers a new pending project
func (w *Workflow) Submit(ctx context.Context, ownerID string, req projects.SubmitRequest) (*projects.Project, error) {
	project, err := w.registry.Submit(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}
	w.emit(ctx, notifications.NewProjectEvent(notifications.EventProjectSubmitted, project))
	return project, nil
}

// RunVerification scores a pending project and decides it. It is idempotent per project:
// a decided project returns its prior outcome without re-scoring. A scoring failure leaves
// the project pending and returns an error wrapping scoring.ErrScoringUnavailable.
//
// Concurrent calls for one project share a single run. That run is detached from every
// caller's cancellation and bounded by the scorer's own timeout; each caller waits only
// until its own context ends, which it reports as scoring.ErrScoringUnavailable.
func (w *Workflow) RunVerification(ctx context.Context, projectID uuid.UUID) (*Outcome, error) {
	runCtx := context.WithoutCancel(ctx)
	results := w.inflight.DoChan(projectID.String(), func() (interface{}, error) {
		return w.runVerification(runCtx, projectID)
	})

	select {
	case <-ctx.Done():
		w.logger.Warn("Caller gave up waiting for verification",
			zap.String("project_id", projectID.String()),
			zap.Error(ctx.Err()))
		return nil, fmt.Errorf("%w: %v", scoring.ErrScoringUnavailable, ctx.Err())
	case res := <-results:
		if res.Shared {
			w.logger.Debug("Joined in-flight verification", zap.String("project_id", projectID.String()))
		}
		outcome, _ := res.Val.(*Outcome)
		if outcome == nil {
			return nil, res.Err
		}
		c := *outcome
		return &c, res.Err
	}
}

func (w *Workflow) runVerification(ctx context.Context, projectID uuid.UUID) (*Outcome, error) {
	project, err := w.registry.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.IsDecided() {
		return w.decidedOutcome(ctx, project)
	}

	result, err := w.scorer.Score(ctx, project)
	if err != nil {
		w.logger.Warn("Verification left pending",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		return &Outcome{ProjectID: projectID, Status: OutcomePending}, err
	}

	var updated *projects.Project
	if result.Score >= w.config.ApprovalThreshold {
		updated, err = w.registry.Approve(ctx, projectID, result.Score, result.CO2Tons, SystemReviewer)
	} else {
		score := result.Score
		updated, err = w.registry.Reject(ctx, projectID, &score, SystemReviewer)
	}
	if errors.Is(err, projects.ErrAlreadyDecided) {
		w.logger.Info("Verification lost decision race",
			zap.String("project_id", projectID.String()))
		current, getErr := w.registry.Get(ctx, projectID)
		if getErr != nil {
			return nil, getErr
		}
		return w.decidedOutcome(ctx, current)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decide project: %w", err)
	}

	w.emit(ctx, notifications.NewProjectEvent(notifications.EventProjectDecided, updated))
	return w.decidedOutcome(ctx, updated)
}

// DecideManually applies a reviewer's verdict to a pending project. Race losers receive
// projects.ErrAlreadyDecided.
//
// Manual approval is the second entry point into the scorer besides RunVerification: a
// verified project must carry a score and a CO2 estimate, so approval scores the project
// under the caller's context and requires the approval threshold. Rejection never scores.
func (w *Workflow) DecideManually(ctx context.Context, projectID uuid.UUID, decision Decision, reviewerID string) (*Outcome, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("%w: reviewer is required", ErrInvalidDecision)
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	project, err := w.registry.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.IsDecided() {
		return nil, projects.ErrAlreadyDecided
	}

	var updated *projects.Project
	switch decision {
	case DecisionApprove:
		result, err := w.scorer.Score(ctx, project)
		if err != nil {
			return &Outcome{ProjectID: projectID, Status: OutcomePending}, err
		}
		if result.Score < w.config.ApprovalThreshold {
			return &Outcome{ProjectID: projectID, Status: OutcomePending, Score: &result.Score},
				fmt.Errorf("%w: %.4f < %.4f", ErrBelowThreshold, result.Score, w.config.ApprovalThreshold)
		}
		updated, err = w.registry.Approve(ctx, projectID, result.Score, result.CO2Tons, reviewerID)
		if err != nil {
			return nil, err
		}
	case DecisionReject:
		updated, err = w.registry.Reject(ctx, projectID, nil, reviewerID)
		if err != nil {
			return nil, err
		}
	}

	w.logger.Info("Manual decision applied",
		zap.String("project_id", projectID.String()),
		zap.String("decision", string(decision)),
		zap.String("reviewer_id", reviewerID))
	w.emit(ctx, notifications.NewProjectEvent(notifications.EventProjectDecided, updated))
	return w.decidedOutcome(ctx, updated)
}

// decidedOutcome reports a terminal project, minting a verified project's credits if missing
func (w *Workflow) decidedOutcome(ctx context.Context, project *projects.Project) (*Outcome, error) {
	outcome := &Outcome{
		ProjectID: project.ID,
		Score:     project.VerificationScore,
		CO2Tons:   project.CO2Tons,
	}
	switch project.Status {
	case projects.StatusRejected:
		outcome.Status = OutcomeRejected
		return outcome, nil
	case projects.StatusVerified:
		outcome.Status = OutcomeApproved
	default:
		outcome.Status = OutcomePending
		return outcome, nil
	}

	tx, err := w.ensureMinted(ctx, project)
	if err != nil {
		return nil, err
	}
	outcome.Transaction = tx
	outcome.TxRef = tx.TxRef
	return outcome, nil
}

// ensureMinted returns the project's transaction, minting it exactly once if absent
func (w *Workflow) ensureMinted(ctx context.Context, project *projects.Project) (*ledger.CreditTransaction, error) {
	tx, err := w.ledger.GetByProject(ctx, project.ID)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("failed to load credit transaction: %w", err)
	}
	if project.CO2Tons == nil {
		w.logger.Error("Verified project has no sequestration estimate",
			zap.String("project_id", project.ID.String()))
		return nil, fmt.Errorf("%w: verified project has no co2 estimate", ledger.ErrProjectNotVerified)
	}

	tx, err = w.ledger.Mint(ctx, project.ID, *project.CO2Tons, w.config.RevenuePerTon)
	switch {
	case err == nil:
		w.emit(ctx, notifications.NewMintedEvent(tx))
		return tx, nil
	case errors.Is(err, ledger.ErrAlreadyMinted):
		w.logger.Info("Credits already minted by a concurrent run",
			zap.String("project_id", project.ID.String()))
		return w.ledger.GetByProject(ctx, project.ID)
	case errors.Is(err, ledger.ErrProjectNotVerified):
		w.logger.Error("Mint rejected for decided project",
			zap.String("project_id", project.ID.String()),
			zap.Error(err))
		return nil, err
	default:
		return nil, fmt.Errorf("failed to mint credits: %w", err)
	}
}

func (w *Workflow) emit(ctx context.Context, event notifications.Event) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Emit(ctx, event); err != nil {
		w.logger.Warn("Failed to emit event",
			zap.String("event_type", string(event.Type)),
			zap.String("project_id", event.ProjectID.String()),
			zap.Error(err))
	}
}

// GetProject returns a project by id
func (w *Workflow) GetProject(ctx context.Context, projectID uuid.UUID) (*projects.Project, error) {
	return w.registry.Get(ctx, projectID)
}

// ListProjects returns projects matching the filter
func (w *Workflow) ListProjects(ctx context.Context, filter projects.ProjectFilter) ([]*projects.Project, error) {
	return w.registry.List(ctx, filter)
}

// ListCreditsByProject returns the ledger entries of a project
func (w *Workflow) ListCreditsByProject(ctx context.Context, projectID uuid.UUID) ([]*ledger.CreditTransaction, error) {
	return w.ledger.ListByProject(ctx, projectID)
}

// ListCreditsByUser returns the ledger entries of every project owned by a user
func (w *Workflow) ListCreditsByUser(ctx context.Context, userID string) ([]*ledger.CreditTransaction, error) {
	return w.ledger.ListByUser(ctx, userID)
}
