package render

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/timmy/sprintreport/internal/domain"
)

// Document is the input of a render.
type Document struct {
	Title       string
	Subtitle    string
	Markdown    string
	Author      string
	GeneratedAt time.Time
}

// PDFRenderer lays out report Markdown on A4 pages.
type PDFRenderer struct {
	fontFamily string
}

// NewPDFRenderer creates a renderer using the built-in Helvetica font.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{fontFamily: "Helvetica"}
}

// ContentType of rendered artifacts.
const ContentType = "application/pdf"

// Render produces the PDF bytes for a document.
// Parameters:
//   - ctx: checked between pages of work.
//   - doc: title, metadata and Markdown body.
//
// Returns:
//   - []byte: the PDF file.
//   - error: *domain.RenderError on layout or encoding failure.
func (r *PDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	generated := doc.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	pdf.SetTitle(doc.Title, true)
	pdf.SetAuthor(doc.Author, true)
	pdf.SetCreator("sprintreport", true)
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")

	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		pdf.SetFont(r.fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, tr(doc.Title), "", 1, "R", false, 0, "")
		pdf.Ln(2)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(r.fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	r.titleBlock(pdf, tr, doc, generated)

	for _, b := range parseBlocks(doc.Markdown) {
		r.writeBlock(pdf, tr, b)
	}

	if err := pdf.Error(); err != nil {
		return nil, &domain.RenderError{Err: err}
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &domain.RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) titleBlock(pdf *fpdf.Fpdf, tr func(string) string, doc Document, generated time.Time) {
	pdf.SetFillColor(33, 56, 97)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(r.fontFamily, "B", 18)
	pdf.CellFormat(0, 14, tr(doc.Title), "", 1, "L", true, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont(r.fontFamily, "", 11)
		pdf.CellFormat(0, 8, tr(doc.Subtitle), "", 1, "L", true, 0, "")
	}
	pdf.SetTextColor(110, 110, 110)
	pdf.SetFont(r.fontFamily, "I", 9)
	pdf.CellFormat(0, 8, "Generated "+generated.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (r *PDFRenderer) writeBlock(pdf *fpdf.Fpdf, tr func(string) string, b block) {
	pdf.SetTextColor(30, 30, 30)
	switch b.kind {
	case blockBlank:
		pdf.Ln(2)
	case blockRule:
		pdf.Ln(2)
		left, _, right, _ := pdf.GetMargins()
		w, _ := pdf.GetPageSize()
		y := pdf.GetY()
		pdf.SetDrawColor(200, 200, 200)
		pdf.Line(left, y, w-right, y)
		pdf.Ln(3)
	case blockHeading:
		sizes := map[int]float64{1: 16, 2: 13, 3: 11}
		pdf.Ln(3)
		pdf.SetFont(r.fontFamily, "B", sizes[b.level])
		if b.level <= 2 {
			pdf.SetTextColor(33, 56, 97)
		}
		pdf.MultiCell(0, sizes[b.level]*0.5, tr(b.text), "", "L", false)
		pdf.Ln(1)
	case blockBullet, blockNumbered:
		mark := "-"
		if b.kind == blockNumbered {
			mark = b.mark
		}
		pdf.SetFont(r.fontFamily, "", 10)
		left, _, _, _ := pdf.GetMargins()
		pdf.SetX(left + 4)
		pdf.CellFormat(6, 5, mark, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 5, tr(b.text), "", "L", false)
	default:
		pdf.SetFont(r.fontFamily, "", 10)
		pdf.MultiCell(0, 5, tr(b.text), "", "L", false)
	}
}
