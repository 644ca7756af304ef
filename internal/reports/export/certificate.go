package export

import (
	"fmt"
	"io"
	"strconv"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/pdf"
)

// CertificateFor builds the certificate of a verified project's credit transaction
func CertificateFor(project *projects.Project, tx *ledger.CreditTransaction) pdf.Certificate {
	score := "-"
	if project.VerificationScore != nil {
		score = strconv.FormatFloat(*project.VerificationScore, 'f', 4, 64)
	}
	return pdf.Certificate{
		Title:    "Blue Carbon Credit Certificate",
		Subtitle: fmt.Sprintf("%s plantation, %.4f ha", project.Species, project.AreaHectares),
		Fields: []pdf.Field{
			{Label: "Project", Value: project.ID.String()},
			{Label: "Owner", Value: project.OwnerID},
			{Label: "Location", Value: fmt.Sprintf("%.5f, %.5f", project.GPS.Lat, project.GPS.Lng)},
			{Label: "Verification score", Value: score},
			{Label: "Verified by", Value: project.DecidedBy},
			{Label: "CO2 sequestered (t)", Value: strconv.FormatFloat(tx.CO2Tons, 'f', -1, 64)},
			{Label: "Tokens minted", Value: strconv.FormatInt(tx.TokensMinted, 10)},
			{Label: "Total revenue", Value: tx.TotalRevenue.String()},
			{Label: "Community share", Value: tx.Shares.Community.String()},
			{Label: "Panchayat share", Value: tx.Shares.Panchayat.String()},
			{Label: "Platform share", Value: tx.Shares.Platform.String()},
			{Label: "Buffer share", Value: tx.Shares.Buffer.String()},
			{Label: "Minted at", Value: formatTimestamp(tx.MintedAt)},
		},
		Footer: "Ledger reference " + tx.TxRef,
	}
}

// WriteCertificate renders the certificate PDF to w
func WriteCertificate(w io.Writer, generator *pdf.Generator, project *projects.Project, tx *ledger.CreditTransaction) error {
	return generator.Generate(w, CertificateFor(project, tx))
}
