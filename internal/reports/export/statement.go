package export

import (
	"time"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
)

// statementColumns are the labels of a credit statement, in column order
var statementColumns = []string{
	"Minted At",
	"Project ID",
	"CO2 (t)",
	"Tokens",
	"Revenue / t",
	"Total Revenue",
	"Community",
	"Panchayat",
	"Platform",
	"Buffer",
	"Tx Ref",
}

// StatementTotals sums a statement's transactions
type StatementTotals struct {
	CO2Tons float64
	Tokens  int64
	Revenue revenue.Money
	Shares  revenue.Shares
}

func totals(txs []*ledger.CreditTransaction) StatementTotals {
	var t StatementTotals
	for _, tx := range txs {
		t.CO2Tons += tx.CO2Tons
		t.Tokens += tx.TokensMinted
		t.Revenue += tx.TotalRevenue
		t.Shares.Community += tx.Shares.Community
		t.Shares.Panchayat += tx.Shares.Panchayat
		t.Shares.Platform += tx.Shares.Platform
		t.Shares.Buffer += tx.Shares.Buffer
	}
	return t
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
