package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// A4 portrait geometry in millimetres
const (
	pageHeight   = 297.0
	pageWidth    = 210.0
	margin       = 15.0
	bottomMargin = 20.0
	contentWidth = pageWidth - 2*margin
	rowLine      = 5.0
	fieldLabelW  = 34.0
	paymentW     = 100.0
	signatureW   = contentWidth - paymentW
	signatureGap = 16.0
)

// Render lays out the snapshot and writes it as a PDF
func Render(snap Snapshot) ([]byte, error) {
	doc, err := Build(snap)
	if err != nil {
		return nil, err
	}
	return Write(doc)
}

// Write produces the PDF bytes for a laid-out document. The PDF timestamps
// come from the document, so equal documents give equal bytes.
func Write(doc *Document) ([]byte, error) {
	w := newPDFWriter(doc)
	w.write()

	var buf bytes.Buffer
	if err := w.pdf.Output(&buf); err != nil {
		return nil, billing.Wrap(billing.KindRenderFailure, "Render", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
	doc *Document

	// pages on which the payment block starts and ends
	paymentStart int
	paymentEnd   int
}

func newPDFWriter(doc *Document) *pdfWriter {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, bottomMargin)
	pdf.SetCompression(true)
	pdf.SetCatalogSort(true)

	stamp := doc.GeneratedAt
	if stamp.IsZero() {
		stamp = time.Unix(0, 0).UTC()
	}
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), doc: doc}

	if len(doc.Meta) > 0 {
		pdf.SetTitle(w.tr(doc.Meta[0].Value), false)
	}
	if len(doc.Company) > 0 {
		pdf.SetAuthor(w.tr(doc.Company[0]), false)
	}
	pdf.SetCreator("sss-projects-payments", false)

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(w.footer)
	return w
}

func (w *pdfWriter) write() {
	w.pdf.AddPage()
	w.header()
	w.billTo()
	w.table()
	w.summary()
	w.notes()
	w.paymentBlock()
}

func (w *pdfWriter) header() {
	p := w.pdf
	top := p.GetY()

	p.SetFont("Arial", "B", 16)
	p.CellFormat(110, 8, w.tr(w.doc.Company[0]), "", 2, "L", false, 0, "")
	p.SetFont("Arial", "", 9)
	for _, line := range w.doc.Company[1:] {
		p.CellFormat(110, rowLine, w.tr(line), "", 2, "L", false, 0, "")
	}
	leftEnd := p.GetY()

	right := margin + 110
	p.SetXY(right, top)
	p.SetFont("Arial", "B", 18)
	p.CellFormat(contentWidth-110, 9, w.doc.Title, "", 2, "R", false, 0, "")

	r, g, b := w.doc.Ribbon.Tone.RGB()
	p.SetFillColor(r, g, b)
	p.SetTextColor(255, 255, 255)
	p.SetFont("Arial", "B", 10)
	p.SetX(pageWidth - margin - 40)
	p.CellFormat(40, 7, w.doc.Ribbon.Label, "", 2, "C", true, 0, "")
	p.SetTextColor(0, 0, 0)
	p.SetY(p.GetY() + 2)

	p.SetFont("Arial", "", 9)
	for _, f := range w.doc.Meta {
		p.SetX(right)
		p.SetFont("Arial", "B", 9)
		p.CellFormat(28, rowLine, w.tr(f.Label), "", 0, "L", false, 0, "")
		p.SetFont("Arial", "", 9)
		p.CellFormat(contentWidth-110-28, rowLine, w.tr(f.Value), "", 1, "R", false, 0, "")
	}

	p.SetY(max(leftEnd, p.GetY()) + 6)
}

func (w *pdfWriter) billTo() {
	p := w.pdf
	p.SetFont("Arial", "B", 11)
	p.CellFormat(contentWidth, 7, "Bill To", "", 1, "L", false, 0, "")
	p.SetFont("Arial", "", 10)
	for _, line := range w.doc.BillTo {
		p.CellFormat(contentWidth, rowLine, w.tr(line), "", 1, "L", false, 0, "")
	}
	p.Ln(6)
}

func (w *pdfWriter) tableHeader() {
	p := w.pdf
	p.SetFont("Arial", "B", 9)
	p.SetFillColor(243, 244, 246)
	cols := w.doc.Layout.Columns
	for i, c := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		p.CellFormat(c.Width, 8, c.Header, "1", ln, "C", true, 0, "")
	}
}

func (w *pdfWriter) table() {
	p := w.pdf
	cols := w.doc.Layout.Columns

	w.ensureSpace(8 + rowLine)
	w.tableHeader()
	p.SetFont("Arial", "", 9)

	for _, row := range w.doc.Rows {
		wrapped := make([][][]byte, len(cols))
		lines := 1
		for i, c := range cols {
			wrapped[i] = p.SplitLines([]byte(w.tr(row[i])), c.Width-2)
			lines = max(lines, len(wrapped[i]))
		}
		h := float64(lines)*rowLine + 1

		if !w.fits(h) {
			p.AddPage()
			w.tableHeader()
			p.SetFont("Arial", "", 9)
		}

		x, y := margin, p.GetY()
		for i, c := range cols {
			p.Rect(x, y, c.Width, h, "D")
			for j, text := range wrapped[i] {
				p.SetXY(x+1, y+0.5+float64(j)*rowLine)
				p.CellFormat(c.Width-2, rowLine, string(text), "", 0, c.Align, false, 0, "")
			}
			x += c.Width
		}
		p.SetXY(margin, y+h)
	}
}

func (w *pdfWriter) summary() {
	p := w.pdf
	descW, amountW := w.doc.Layout.descriptionWidth(), w.doc.Layout.amountWidth()
	p.SetFillColor(243, 244, 246)

	for _, row := range w.doc.Summary {
		h, style := 7.0, ""
		if row.Emphasis {
			h, style = 8.0, "B"
		}
		w.ensureSpace(h)
		p.SetFont("Arial", style, 10)
		p.CellFormat(descW, h, w.tr(row.Label), "1", 0, "R", row.Emphasis, 0, "")
		p.CellFormat(amountW, h, w.tr(row.Value), "1", 1, "R", row.Emphasis, 0, "")
	}
	p.Ln(6)
}

func (w *pdfWriter) notes() {
	if w.doc.Notes == "" {
		return
	}
	p := w.pdf
	w.ensureSpace(7 + rowLine)
	p.SetFont("Arial", "B", 10)
	p.CellFormat(contentWidth, 7, "Notes", "", 1, "L", false, 0, "")
	p.SetFont("Arial", "", 9)
	for _, line := range p.SplitLines([]byte(w.tr(w.doc.Notes)), contentWidth) {
		w.ensureSpace(rowLine)
		p.CellFormat(contentWidth, rowLine, string(line), "", 1, "L", false, 0, "")
	}
	p.Ln(4)
}

// paymentBlock prints remittance details beside the signature. The block is
// never split: when it does not fit it moves whole to a new page.
func (w *pdfWriter) paymentBlock() {
	p := w.pdf
	if !w.fits(w.paymentBlockHeight()) {
		p.AddPage()
	}
	w.paymentStart = p.PageNo()
	top := p.GetY()

	p.SetFont("Arial", "B", 10)
	p.CellFormat(paymentW, 7, "Payment Information", "", 1, "L", false, 0, "")
	for _, f := range w.doc.Payment {
		lines := w.fieldLines(f)
		y := p.GetY()
		p.SetFont("Arial", "B", 9)
		p.CellFormat(fieldLabelW, rowLine, w.tr(f.Label), "", 0, "L", false, 0, "")
		p.SetFont("Arial", "", 9)
		for j, line := range lines {
			p.SetXY(margin+fieldLabelW, y+float64(j)*rowLine)
			p.CellFormat(paymentW-fieldLabelW, rowLine, string(line), "", 0, "L", false, 0, "")
		}
		p.SetXY(margin, y+float64(len(lines))*rowLine)
	}
	leftEnd := p.GetY()

	x := margin + paymentW
	p.SetXY(x, top)
	p.SetFont("Arial", "B", 10)
	p.CellFormat(signatureW, 7, w.tr(w.doc.Signatory[0]), "", 2, "R", false, 0, "")
	p.SetY(p.GetY() + signatureGap)
	p.SetX(x)
	p.Line(x+20, p.GetY(), pageWidth-margin, p.GetY())
	p.SetFont("Arial", "", 9)
	for _, line := range w.doc.Signatory[1:] {
		p.SetX(x)
		p.CellFormat(signatureW, rowLine, w.tr(line), "", 2, "R", false, 0, "")
	}
	p.SetX(x)
	p.CellFormat(signatureW, rowLine, "Authorised Signatory", "", 2, "R", false, 0, "")

	p.SetXY(margin, max(leftEnd, p.GetY()))
	w.paymentEnd = p.PageNo()
}

func (w *pdfWriter) paymentBlockHeight() float64 {
	w.pdf.SetFont("Arial", "", 9)
	left := 7.0
	for _, f := range w.doc.Payment {
		left += float64(len(w.fieldLines(f))) * rowLine
	}
	right := 7 + signatureGap + float64(len(w.doc.Signatory))*rowLine
	return max(left, right)
}

func (w *pdfWriter) fieldLines(f Field) [][]byte {
	lines := w.pdf.SplitLines([]byte(w.tr(f.Value)), paymentW-fieldLabelW)
	if len(lines) == 0 {
		return [][]byte{nil}
	}
	return lines
}

func (w *pdfWriter) fits(h float64) bool {
	return w.pdf.GetY()+h <= pageHeight-bottomMargin
}

func (w *pdfWriter) ensureSpace(h float64) {
	if !w.fits(h) {
		w.pdf.AddPage()
	}
}

func (w *pdfWriter) footer() {
	p := w.pdf
	p.SetY(pageHeight - 12)
	p.SetFont("Arial", "I", 8)
	p.SetTextColor(107, 114, 128)
	text := fmt.Sprintf("Generated %s  |  Page %d of {nb}", w.doc.GeneratedAt.Format("02 Jan 2006 15:04 MST"), p.PageNo())
	p.CellFormat(contentWidth, 5, text, "", 0, "C", false, 0, "")
	p.SetTextColor(0, 0, 0)
}
