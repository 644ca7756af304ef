package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

// ProjectReader resolves the project a mint refers to
type ProjectReader interface {
	Get(ctx context.Context, id uuid.UUID) (*projects.Project, error)
}

// Ledger mints credits for verified projects and answers queries over minted transactions
type Ledger struct {
	repo     Repository
	projects ProjectReader
	splitter *revenue.Splitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedger creates a credit ledger
func NewLedger(repo Repository, projects ProjectReader, splitter *revenue.Splitter, logger *zap.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		projects: projects,
		splitter: splitter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TokensForCO2 rounds sequestered tons half-up to whole tokens
func TokensForCO2(co2Tons float64) int64 {
	return int64(math.Floor(co2Tons + 0.5))
}

// Mint records the one credit transaction of a verified project
func (l *Ledger) Mint(ctx context.Context, projectID uuid.UUID, co2Tons float64, revenuePerTon revenue.Money) (*CreditTransaction, error) {
	project, err := l.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrProjectNotVerified, err)
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Status != projects.StatusVerified {
		return nil, fmt.Errorf("%w: status is %s", ErrProjectNotVerified, project.Status)
	}
	if co2Tons < 0 || math.IsNaN(co2Tons) || math.IsInf(co2Tons, 0) {
		return nil, fmt.Errorf("co2 tons %v must be a non-negative number", co2Tons)
	}
	if revenuePerTon < 0 {
		return nil, fmt.Errorf("revenue per ton %s must not be negative", revenuePerTon)
	}

	tokens := TokensForCO2(co2Tons)
	if tokens > 0 && int64(revenuePerTon) > math.MaxInt64/tokens {
		return nil, fmt.Errorf("revenue for %d tokens overflows", tokens)
	}
	total := revenue.Money(tokens * int64(revenuePerTon))
	shares, err := l.splitter.Split(total)
	if err != nil {
		return nil, fmt.Errorf("failed to split revenue: %w", err)
	}

	tx := &CreditTransaction{
		ID:            uuid.New(),
		ProjectID:     projectID,
		OwnerID:       project.OwnerID,
		CO2Tons:       co2Tons,
		TokensMinted:  tokens,
		RevenuePerTon: revenuePerTon,
		TotalRevenue:  total,
		Shares:        shares,
		MintedAt:      l.now(),
	}
	tx.TxRef = computeTxRef(tx)

	if err := l.repo.Insert(ctx, tx); err != nil {
		if errors.Is(err, ErrAlreadyMinted) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record credit transaction: %w", err)
	}

	l.logger.Info("Credits minted",
		zap.String("project_id", projectID.String()),
		zap.String("tx_ref", tx.TxRef),
		zap.Int64("tokens", tokens),
		zap.String("total_revenue", total.String()))
	return tx, nil
}

// GetByProject returns the transaction minted for a project
func (l *Ledger) GetByProject(ctx context.Context, projectID uuid.UUID) (*CreditTransaction, error) {
	return l.repo.GetByProject(ctx, projectID)
}

// List returns transactions matching the filter ordered by mintedAt ascending
func (l *Ledger) List(ctx context.Context, filter Filter) ([]*CreditTransaction, error) {
	txs, err := l.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	return txs, nil
}

// ListByProject returns the transactions of one project
func (l *Ledger) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*CreditTransaction, error) {
	return l.List(ctx, Filter{ProjectID: &projectID})
}

// ListByUser returns the transactions of all projects owned by a user
func (l *Ledger) ListByUser(ctx context.Context, ownerID string) ([]*CreditTransaction, error) {
	return l.List(ctx, Filter{OwnerID: ownerID})
}
