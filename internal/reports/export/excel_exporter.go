package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
)

const (
	statementSheet = "Statement"
	summarySheet   = "Summary"
	moneyFormat    = "#,##0.00"
)

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool
	FontSize  int
	FontColor string
	FillColor string
	Border    bool
}

var headerStyle = ExcelStyleConfig{
	FontBold:  true,
	FontSize:  11,
	FillColor: "0E7490",
	FontColor: "FFFFFF",
	Border:    true,
}

// WriteExcelStatement writes an owner's credit statement workbook to w
func WriteExcelStatement(w io.Writer, ownerID string, txs []*ledger.CreditTransaction, generatedAt time.Time) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", statementSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	headerID, err := createStyle(file, headerStyle)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	moneyFmt := moneyFormat
	moneyID, err := file.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}

	for i, col := range statementColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(statementSheet, cell, col); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(statementColumns), 1)
	if err := file.SetCellStyle(statementSheet, "A1", last, headerID); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := file.SetPanes(statementSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	for i, tx := range txs {
		row := []interface{}{
			formatTimestamp(tx.MintedAt),
			tx.ProjectID.String(),
			tx.CO2Tons,
			tx.TokensMinted,
			tx.RevenuePerTon.Float64(),
			tx.TotalRevenue.Float64(),
			tx.Shares.Community.Float64(),
			tx.Shares.Panchayat.Float64(),
			tx.Shares.Platform.Float64(),
			tx.Shares.Buffer.Float64(),
			tx.TxRef,
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := file.SetSheetRow(statementSheet, start, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
		from, _ := excelize.CoordinatesToCellName(5, i+2)
		to, _ := excelize.CoordinatesToCellName(10, i+2)
		if err := file.SetCellStyle(statementSheet, from, to, moneyID); err != nil {
			return fmt.Errorf("failed to style row %d: %w", i+1, err)
		}
	}
	if len(txs) > 0 {
		if err := file.AutoFilter(statementSheet, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	_ = file.SetColWidth(statementSheet, "A", "B", 38)
	_ = file.SetColWidth(statementSheet, "C", "J", 14)
	_ = file.SetColWidth(statementSheet, "K", "K", 70)

	if err := writeSummary(file, ownerID, txs, generatedAt, headerID, moneyID); err != nil {
		return err
	}
	return file.Write(w)
}

func writeSummary(file *excelize.File, ownerID string, txs []*ledger.CreditTransaction, generatedAt time.Time, headerID, moneyID int) error {
	if _, err := file.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	t := totals(txs)
	rows := [][]interface{}{
		{"Owner", ownerID},
		{"Generated At", formatTimestamp(generatedAt)},
		{"Transactions", len(txs)},
		{"CO2 (t)", t.CO2Tons},
		{"Tokens", t.Tokens},
		{"Total Revenue", t.Revenue.Float64()},
		{"Community", t.Shares.Community.Float64()},
		{"Panchayat", t.Shares.Panchayat.Float64()},
		{"Platform", t.Shares.Platform.Float64()},
		{"Buffer", t.Shares.Buffer.Float64()},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := file.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	_ = file.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), headerID)
	_ = file.SetCellStyle(summarySheet, "B6", "B10", moneyID)
	_ = file.SetColWidth(summarySheet, "A", "B", 24)
	return nil
}

func createStyle(file *excelize.File, config ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{config.FillColor}}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return file.NewStyle(style)
}
