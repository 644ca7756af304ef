package verification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/notifications"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/scoring"
)

type recordingSink struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (s *recordingSink) Emit(ctx context.Context, e notifications.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count(t notifications.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	workflow *Workflow
	registry *projects.Registry
	ledger   *ledger.Ledger
	sink     *recordingSink
	calls    *atomic.Int32
}

func newHarness(t *testing.T, validator scoring.Validator) *harness {
	t.Helper()
	logger := zap.NewNop()
	registry := projects.NewRegistry(projects.NewMemoryRepository(), logger)
	splitter, err := revenue.NewSplitter(revenue.DefaultPolicy())
	require.NoError(t, err)
	credits := ledger.NewLedger(ledger.NewMemoryRepository(), registry, splitter, logger)

	calls := &atomic.Int32{}
	counted := scoring.ValidatorFunc(func(ctx context.Context, p *projects.Project) (float64, error) {
		calls.Add(1)
		return validator.Validate(ctx, p)
	})
	scorer := scoring.NewService(counted, 1.5, time.Second, logger)
	sink := &recordingSink{}

	wf := NewWorkflow(registry, scorer, credits, sink, Config{
		ApprovalThreshold: 0.8,
		RevenuePerTon:     revenue.FromFloat(10),
	}, logger)
	return &harness{workflow: wf, registry: registry, ledger: credits, sink: sink, calls: calls}
}

func scenarioRequest() projects.SubmitRequest {
	return projects.SubmitRequest{
		Species:      "Rhizophora mucronata",
		AreaHectares: 2.5,
		GPS:          projects.GPSCoord{Lat: 19.076, Lng: 72.8777},
		ImageRef:     "img/plot.jpg",
	}
}

func TestRunVerificationScenario(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()

	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	outcome, err := h.workflow.RunVerification(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome.Status)
	require.NotNil(t, outcome.CO2Tons)
	assert.Equal(t, 3.75, *outcome.CO2Tons)
	assert.Equal(t, 0.9, *outcome.Score)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, outcome.TxRef)

	stored, err := h.workflow.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, projects.StatusVerified, stored.Status)
	assert.Equal(t, SystemReviewer, stored.DecidedBy)

	txs, err := h.workflow.ListCreditsByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, int64(4), tx.TokensMinted)
	assert.Equal(t, revenue.FromFloat(40), tx.TotalRevenue)
	assert.Equal(t, revenue.Shares{
		Community: revenue.FromFloat(24),
		Panchayat: revenue.FromFloat(8),
		Platform:  revenue.FromFloat(6),
		Buffer:    revenue.FromFloat(2),
	}, tx.Shares)
	assert.Equal(t, outcome.TxRef, tx.TxRef)

	byUser, err := h.workflow.ListCreditsByUser(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	assert.Equal(t, 1, h.sink.count(notifications.EventProjectSubmitted))
	assert.Equal(t, 1, h.sink.count(notifications.EventProjectDecided))
	assert.Equal(t, 1, h.sink.count(notifications.EventCreditsMinted))
}

func TestSubmitInvalidCreatesNothing(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	req := scenarioRequest()
	req.AreaHectares = 0

	_, err := h.workflow.Submit(context.Background(), "owner-1", req)
	assert.ErrorIs(t, err, projects.ErrInvalidProject)

	all, err := h.workflow.ListProjects(context.Background(), projects.ProjectFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, h.sink.count(notifications.EventProjectSubmitted))
}

func TestRunVerificationIsIdempotent(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()
	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	first, err := h.workflow.RunVerification(ctx, p.ID)
	require.NoError(t, err)
	second, err := h.workflow.RunVerification(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.TxRef, second.TxRef)
	assert.Equal(t, int32(1), h.calls.Load(), "decided projects must not be re-scored")

	txs, _ := h.workflow.ListCreditsByProject(ctx, p.ID)
	assert.Len(t, txs, 1)
	assert.Equal(t, 1, h.sink.count(notifications.EventCreditsMinted))
}

func TestRunVerificationConcurrentCallsMintOnce(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()
	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	const n = 20
	outcomes := make([]*Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.workflow.RunVerification(ctx, p.ID)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	for _, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, OutcomeApproved, out.Status)
		assert.Equal(t, outcomes[0].TxRef, out.TxRef)
	}
	txs, _ := h.workflow.ListCreditsByProject(ctx, p.ID)
	assert.Len(t, txs, 1)
}

func TestRunVerificationBelowThresholdRejects(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.5})
	ctx := context.Background()
	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	outcome, err := h.workflow.RunVerification(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Status)
	assert.Equal(t, 0.5, *outcome.Score)
	assert.Empty(t, outcome.TxRef)

	stored, _ := h.workflow.GetProject(ctx, p.ID)
	assert.Equal(t, projects.StatusRejected, stored.Status)
	assert.Nil(t, stored.CO2Tons)

	txs, _ := h.workflow.ListCreditsByProject(ctx, p.ID)
	assert.Empty(t, txs)
}

func TestScoringUnavailableKeepsPending(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	flaky := scoring.ValidatorFunc(func(ctx context.Context, p *projects.Project) (float64, error) {
		if fail.Load() {
			return 0, errors.New("validator down")
		}
		return 0.9, nil
	})
	h := newHarness(t, flaky)
	ctx := context.Background()
	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	outcome, err := h.workflow.RunVerification(ctx, p.ID)
	assert.ErrorIs(t, err, scoring.ErrScoringUnavailable)
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomePending, outcome.Status)

	stored, _ := h.workflow.GetProject(ctx, p.ID)
	assert.Equal(t, projects.StatusPending, stored.Status)
	assert.Nil(t, stored.CO2Tons)

	// retry succeeds once the validator recovers
	fail.Store(false)
	outcome, err = h.workflow.RunVerification(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome.Status)
}

// gatedValidator blocks every validation until release is closed
func gatedValidator(release <-chan struct{}) scoring.Validator {
	return scoring.ValidatorFunc(func(ctx context.Context, p *projects.Project) (float64, error) {
		select {
		case <-release:
			return 0.9, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
}

func TestRunVerificationJoinerHonoursItsOwnDeadline(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, gatedValidator(release))
	p, err := h.workflow.Submit(context.Background(), "owner-1", scenarioRequest())
	require.NoError(t, err)

	first := make(chan *Outcome, 1)
	go func() {
		outcome, err := h.workflow.RunVerification(context.Background(), p.ID)
		assert.NoError(t, err)
		first <- outcome
	}()
	require.Eventually(t, func() bool { return h.calls.Load() == 1 }, time.Second, 2*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = h.workflow.RunVerification(ctx, p.ID)
	assert.ErrorIs(t, err, scoring.ErrScoringUnavailable)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	close(release)
	outcome := <-first
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeApproved, outcome.Status)
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestRunVerificationSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, gatedValidator(release))
	p, err := h.workflow.Submit(context.Background(), "owner-1", scenarioRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.workflow.RunVerification(ctx, p.ID)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return h.calls.Load() == 1 }, time.Second, 2*time.Millisecond)

	joined := make(chan *Outcome, 1)
	joinErr := make(chan error, 1)
	go func() {
		outcome, err := h.workflow.RunVerification(context.Background(), p.ID)
		joined <- outcome
		joinErr <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, scoring.ErrScoringUnavailable)

	close(release)
	outcome := <-joined
	require.NoError(t, <-joinErr)
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeApproved, outcome.Status)
	assert.Equal(t, int32(1), h.calls.Load())

	stored, err := h.workflow.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, projects.StatusVerified, stored.Status)
}

func TestRunVerificationUnknownProject(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	_, err := h.workflow.RunVerification(context.Background(), uuid.New())
	assert.ErrorIs(t, err, projects.ErrNotFound)
}

func TestRunVerificationRepairsMissingMint(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()
	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	// approved out of band, e.g. a crash between decision and mint
	_, err = h.registry.Approve(ctx, p.ID, 0.9, 3.75, "reviewer-1")
	require.NoError(t, err)

	outcome, err := h.workflow.RunVerification(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome.Status)
	assert.NotEmpty(t, outcome.TxRef)
	assert.Equal(t, int32(0), h.calls.Load())

	txs, _ := h.workflow.ListCreditsByProject(ctx, p.ID)
	assert.Len(t, txs, 1)
}

func TestDecideManuallyApproveAndReject(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()

	a, _ := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	outcome, err := h.workflow.DecideManually(ctx, a.ID, DecisionApprove, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome.Status)
	require.NotNil(t, outcome.Transaction)
	assert.Equal(t, int64(4), outcome.Transaction.TokensMinted)
	assert.Equal(t, int32(1), h.calls.Load(), "manual approval scores the project")

	stored, _ := h.workflow.GetProject(ctx, a.ID)
	assert.Equal(t, "reviewer-1", stored.DecidedBy)

	b, _ := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	outcome, err = h.workflow.DecideManually(ctx, b.ID, DecisionReject, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Status)
	assert.Nil(t, outcome.Score)
	assert.Equal(t, int32(1), h.calls.Load(), "rejection never scores")
}

func TestDecideManuallyOnDecidedProject(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()

	for _, first := range []Decision{DecisionApprove, DecisionReject} {
		p, _ := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
		_, err := h.workflow.DecideManually(ctx, p.ID, first, "reviewer-1")
		require.NoError(t, err)
		before, _ := h.workflow.GetProject(ctx, p.ID)

		for _, again := range []Decision{DecisionApprove, DecisionReject} {
			_, err := h.workflow.DecideManually(ctx, p.ID, again, "reviewer-2")
			assert.ErrorIs(t, err, projects.ErrAlreadyDecided)
		}

		after, _ := h.workflow.GetProject(ctx, p.ID)
		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.DecidedBy, after.DecidedBy)
	}
}

func TestDecideManuallyErrors(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.6})
	ctx := context.Background()
	p, _ := h.workflow.Submit(ctx, "owner-1", scenarioRequest())

	_, err := h.workflow.DecideManually(ctx, uuid.New(), DecisionReject, "reviewer-1")
	assert.ErrorIs(t, err, projects.ErrNotFound)

	_, err = h.workflow.DecideManually(ctx, p.ID, "maybe", "reviewer-1")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = h.workflow.DecideManually(ctx, p.ID, DecisionApprove, "")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = h.workflow.DecideManually(ctx, p.ID, DecisionApprove, "reviewer-1")
	assert.ErrorIs(t, err, ErrBelowThreshold)

	stored, _ := h.workflow.GetProject(ctx, p.ID)
	assert.Equal(t, projects.StatusPending, stored.Status)
}

func TestConcurrentManualDecisionsOneWinner(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()
	p, err := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
	require.NoError(t, err)

	const n = 24
	var wg sync.WaitGroup
	var wins, losses atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := DecisionApprove
			if i%2 == 1 {
				decision = DecisionReject
			}
			_, err := h.workflow.DecideManually(ctx, p.ID, decision, "reviewer")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, projects.ErrAlreadyDecided):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), losses.Load())

	txs, _ := h.workflow.ListCreditsByProject(ctx, p.ID)
	assert.LessOrEqual(t, len(txs), 1)

	stored, _ := h.workflow.GetProject(ctx, p.ID)
	if stored.Status == projects.StatusVerified {
		assert.Len(t, txs, 1)
	} else {
		assert.Empty(t, txs)
	}
}

func TestVerificationRacingManualDecision(t *testing.T) {
	h := newHarness(t, scoring.FixedValidator{Score: 0.9})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		p, _ := h.workflow.Submit(ctx, "owner-1", scenarioRequest())
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.workflow.RunVerification(ctx, p.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.workflow.DecideManually(ctx, p.ID, DecisionReject, "reviewer")
			if err != nil {
				assert.ErrorIs(t, err, projects.ErrAlreadyDecided)
			}
		}()
		wg.Wait()

		stored, _ := h.workflow.GetProject(ctx, p.ID)
		txs, _ := h.workflow.ListCreditsByProject(ctx, p.ID)
		if stored.Status == projects.StatusVerified {
			assert.Len(t, txs, 1)
		} else {
			assert.Equal(t, projects.StatusRejected, stored.Status)
			assert.Empty(t, txs)
		}
	}
}
