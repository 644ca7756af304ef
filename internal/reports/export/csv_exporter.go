package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
)

// WriteCSVStatement writes one header row and one row per transaction
func WriteCSVStatement(w io.Writer, txs []*ledger.CreditTransaction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(statementColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, tx := range txs {
		record := []string{
			formatTimestamp(tx.MintedAt),
			tx.ProjectID.String(),
			strconv.FormatFloat(tx.CO2Tons, 'f', -1, 64),
			strconv.FormatInt(tx.TokensMinted, 10),
			tx.RevenuePerTon.String(),
			tx.TotalRevenue.String(),
			tx.Shares.Community.String(),
			tx.Shares.Panchayat.String(),
			tx.Shares.Platform.String(),
			tx.Shares.Buffer.String(),
			tx.TxRef,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
