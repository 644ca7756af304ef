package pdf

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// Field is one labelled line of a certificate body
type Field struct {
	Label string
	Value string
}

// Certificate describes a single-page certificate document
type Certificate struct {
	Title    string
	Subtitle string
	Fields   []Field
	Footer   string
}

// Color is an RGB triple
type Color struct {
	R, G, B int
}

// Options configures page layout
type Options struct {
	PageSize    string
	FontFamily  string
	AccentColor Color
	Margin      float64
}

// DefaultOptions returns A4 portrait with the platform accent colour
func DefaultOptions() Options {
	return Options{
		PageSize:    "A4",
		FontFamily:  "Arial",
		AccentColor: Color{R: 14, G: 116, B: 144},
		Margin:      20,
	}
}

// Generator renders certificates with gofpdf
type Generator struct {
	options Options
}

// NewGenerator creates a certificate generator
func NewGenerator(options Options) *Generator {
	return &Generator{options: options}
}

// Generate writes the certificate as a PDF document to w
func (g *Generator) Generate(w io.Writer, cert Certificate) error {
	o := g.options
	doc := gofpdf.New("P", "mm", o.PageSize, "")
	doc.SetMargins(o.Margin, o.Margin, o.Margin)
	doc.SetTitle(cert.Title, true)
	doc.AddPage()

	pageW, pageH := doc.GetPageSize()
	doc.SetDrawColor(o.AccentColor.R, o.AccentColor.G, o.AccentColor.B)
	doc.SetLineWidth(1.2)
	doc.Rect(o.Margin/2, o.Margin/2, pageW-o.Margin, pageH-o.Margin, "D")

	doc.SetTextColor(o.AccentColor.R, o.AccentColor.G, o.AccentColor.B)
	doc.SetFont(o.FontFamily, "B", 22)
	doc.Ln(10)
	doc.CellFormat(0, 12, cert.Title, "", 1, "C", false, 0, "")
	if cert.Subtitle != "" {
		doc.SetFont(o.FontFamily, "", 12)
		doc.SetTextColor(90, 90, 90)
		doc.CellFormat(0, 8, cert.Subtitle, "", 1, "C", false, 0, "")
	}
	doc.Ln(12)

	labelW := 55.0
	for i, f := range cert.Fields {
		fill := i%2 == 0
		doc.SetFillColor(242, 246, 248)
		doc.SetTextColor(60, 60, 60)
		doc.SetFont(o.FontFamily, "B", 10)
		doc.CellFormat(labelW, 9, f.Label, "", 0, "L", fill, 0, "")
		doc.SetFont(o.FontFamily, "", 10)
		doc.SetTextColor(20, 20, 20)
		doc.CellFormat(0, 9, f.Value, "", 1, "L", fill, 0, "")
	}

	if cert.Footer != "" {
		doc.SetY(pageH - o.Margin - 15)
		doc.SetFont(o.FontFamily, "I", 8)
		doc.SetTextColor(120, 120, 120)
		doc.MultiCell(0, 4, cert.Footer, "", "C", false)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}
	return nil
}
