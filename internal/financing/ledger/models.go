package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
)

var (
	// ErrAlreadyMinted is returned when a transaction already exists for the project
	ErrAlreadyMinted = errors.New("credits already minted for project")
	// ErrProjectNotVerified is returned when minting is attempted for a project that is not verified
	ErrProjectNotVerified = errors.New("project not verified")
	// ErrNotFound is returned when no transaction matches
	ErrNotFound = errors.New("credit transaction not found")
)

// CreditTransaction is the immutable record of credits minted for one verified project
type CreditTransaction struct {
	ID            uuid.UUID      `json:"id"`
	ProjectID     uuid.UUID      `json:"project_id"`
	OwnerID       string         `json:"owner_id"`
	CO2Tons       float64        `json:"co2_tons"`
	TokensMinted  int64          `json:"tokens_minted"`
	RevenuePerTon revenue.Money  `json:"revenue_per_ton"`
	TotalRevenue  revenue.Money  `json:"total_revenue"`
	Shares        revenue.Shares `json:"shares"`
	TxRef         string         `json:"tx_ref"`
	MintedAt      time.Time      `json:"minted_at"`
}

// Filter selects transactions by project or by owning user; zero values match everything
type Filter struct {
	ProjectID *uuid.UUID
	OwnerID   string
}

// Matches reports whether the transaction satisfies the filter
func (f Filter) Matches(tx *CreditTransaction) bool {
	if f.ProjectID != nil && tx.ProjectID != *f.ProjectID {
		return false
	}
	if f.OwnerID != "" && tx.OwnerID != f.OwnerID {
		return false
	}
	return true
}
