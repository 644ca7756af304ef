package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
)

type creditRow struct {
	ID             string  `db:"id"`
	ProjectID      string  `db:"project_id"`
	OwnerID        string  `db:"owner_id"`
	CO2Tons        float64 `db:"co2_tons"`
	TokensMinted   int64   `db:"tokens_minted"`
	RevenuePerTon  int64   `db:"revenue_per_ton"`
	TotalRevenue   int64   `db:"total_revenue"`
	ShareCommunity int64   `db:"share_community"`
	SharePanchayat int64   `db:"share_panchayat"`
	SharePlatform  int64   `db:"share_platform"`
	ShareBuffer    int64   `db:"share_buffer"`
	TxRef          string  `db:"tx_ref"`
	MintedAt       int64   `db:"minted_at"`
}

const creditColumns = `id, project_id, owner_id, co2_tons, tokens_minted, revenue_per_ton, total_revenue,
	share_community, share_panchayat, share_platform, share_buffer, tx_ref, minted_at`

func (r creditRow) toTransaction() (*ledger.CreditTransaction, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt transaction id %q: %w", r.ID, err)
	}
	projectID, err := uuid.Parse(r.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("corrupt project id %q: %w", r.ProjectID, err)
	}
	return &ledger.CreditTransaction{
		ID:            id,
		ProjectID:     projectID,
		OwnerID:       r.OwnerID,
		CO2Tons:       r.CO2Tons,
		TokensMinted:  r.TokensMinted,
		RevenuePerTon: revenue.Money(r.RevenuePerTon),
		TotalRevenue:  revenue.Money(r.TotalRevenue),
		Shares: revenue.Shares{
			Community: revenue.Money(r.ShareCommunity),
			Panchayat: revenue.Money(r.SharePanchayat),
			Platform:  revenue.Money(r.SharePlatform),
			Buffer:    revenue.Money(r.ShareBuffer),
		},
		TxRef:    r.TxRef,
		MintedAt: fromNanos(r.MintedAt),
	}, nil
}

// CreditStore implements ledger.Repository on SQL. The unique project_id
// column enforces one transaction per project across processes.
type CreditStore struct {
	db *sqlx.DB
}

// NewCreditStore creates a SQL-backed ledger repository
func NewCreditStore(db *sqlx.DB) *CreditStore {
	return &CreditStore{db: db}
}

var _ ledger.Repository = (*CreditStore)(nil)

func (s *CreditStore) Insert(ctx context.Context, tx *ledger.CreditTransaction) error {
	query := s.db.Rebind(`INSERT INTO credit_transactions (` + creditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		tx.ID.String(), tx.ProjectID.String(), tx.OwnerID, tx.CO2Tons, tx.TokensMinted,
		int64(tx.RevenuePerTon), int64(tx.TotalRevenue),
		int64(tx.Shares.Community), int64(tx.Shares.Panchayat), int64(tx.Shares.Platform), int64(tx.Shares.Buffer),
		tx.TxRef, toNanos(tx.MintedAt))
	if isUniqueViolation(err) {
		return ledger.ErrAlreadyMinted
	}
	if err != nil {
		return fmt.Errorf("failed to insert credit transaction: %w", err)
	}
	return nil
}

func (s *CreditStore) GetByProject(ctx context.Context, projectID uuid.UUID) (*ledger.CreditTransaction, error) {
	var row creditRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+creditColumns+` FROM credit_transactions WHERE project_id = ?`), projectID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credit transaction: %w", err)
	}
	return row.toTransaction()
}

func (s *CreditStore) List(ctx context.Context, filter ledger.Filter) ([]*ledger.CreditTransaction, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_transactions WHERE 1=1`
	var args []interface{}
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID.String())
	}
	if filter.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	query += " ORDER BY minted_at ASC, id ASC"

	var rows []creditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	out := make([]*ledger.CreditTransaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toTransaction()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
