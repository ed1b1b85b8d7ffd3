package render

import (
	"bytes"
	"context"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/ports/adapter"
)

var _ adapter.DocumentRenderer = (*PDFRenderer)(nil)

const (
	pageMargin  = 72.0
	titleSize   = 18.0
	bodySize    = 10.0
	bodyLeading = 14.0
	codeSize    = 9.0
	listIndent  = 18.0
	fontFamily  = "Helvetica"
	codeFamily  = "Courier"

	emptyReportText = "No content generated."
)

var headingSizes = map[int]float64{1: 16, 2: 14, 3: 12}

func headingSize(level int) float64 {
	if s, ok := headingSizes[level]; ok {
		return s
	}
	return headingSizes[3]
}

// PDFRenderer lays out Markdown reports on Letter pages with the core
// Helvetica fonts. Characters outside cp1252 print as '.'.
type PDFRenderer struct {
	logger   *zerolog.Logger
	now      func() time.Time
	compress bool
}

func NewPDFRenderer(logger *zerolog.Logger) *PDFRenderer {
	l := logger.With().Str("component", "PDFRenderer").Logger()
	return &PDFRenderer{logger: &l, now: time.Now, compress: true}
}

func (r *PDFRenderer) ContentType() string { return "application/pdf" }

func (r *PDFRenderer) Render(ctx context.Context, markdown string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blocks := parseBlocks(markdown)

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCompression(r.compress)
	pdf.SetProducer("research-assistant", false)
	stamp := r.now().UTC()
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.AddPage()

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if len(blocks) == 0 {
		w.paragraph([]span{{Text: emptyReportText}}, 0, "")
	}
	titled := false
	for _, b := range blocks {
		switch b.Kind {
		case blockHeading:
			if b.Level == 1 && !titled {
				w.title(b.plain())
				titled = true
				continue
			}
			w.heading(b.plain(), b.Level)
		case blockListItem:
			w.paragraph(b.Spans, pageMargin+listIndent*float64(b.Level+1), b.Marker)
		case blockRule:
			w.rule()
		case blockCode:
			w.code(b.plain())
		default:
			w.paragraph(b.Spans, 0, "")
		}
		if pdf.Err() {
			break
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, domain.RenderError("write pdf", err)
	}
	r.logger.Debug().
		Int("blocks", len(blocks)).
		Int("pages", pdf.PageCount()).
		Int("bytes", buf.Len()).
		Msg("report rendered")
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (w *pdfWriter) title(text string) {
	w.pdf.SetFont(fontFamily, "B", titleSize)
	w.pdf.MultiCell(0, titleSize*1.25, w.tr(text), "", "C", false)
	w.pdf.Ln(12)
}

func (w *pdfWriter) heading(text string, level int) {
	size := headingSize(level)
	w.pdf.Ln(6)
	w.pdf.SetFont(fontFamily, "B", size)
	w.pdf.MultiCell(0, size*1.25, w.tr(text), "", "L", false)
	w.pdf.Ln(4)
}

// paragraph writes styled runs. A non-zero left indents wrapped lines too.
func (w *pdfWriter) paragraph(spans []span, left float64, marker string) {
	if left > 0 {
		w.pdf.SetLeftMargin(left)
		w.pdf.SetX(left)
		defer w.pdf.SetLeftMargin(pageMargin)
	}
	if marker != "" {
		w.pdf.SetFont(fontFamily, "", bodySize)
		w.pdf.Write(bodyLeading, w.tr(marker))
	}
	for _, s := range spans {
		w.pdf.SetFont(fontFamily, style(s), bodySize)
		w.pdf.Write(bodyLeading, w.tr(s.Text))
	}
	w.pdf.Ln(bodyLeading)
	if marker == "" {
		w.pdf.Ln(6)
	}
}

func (w *pdfWriter) code(text string) {
	w.pdf.SetFont(codeFamily, "", codeSize)
	w.pdf.MultiCell(0, codeSize*1.3, w.tr(text), "", "L", false)
	w.pdf.Ln(6)
}

func (w *pdfWriter) rule() {
	w.pdf.Ln(6)
	pageW, _ := w.pdf.GetPageSize()
	y := w.pdf.GetY()
	w.pdf.SetDrawColor(190, 190, 190)
	w.pdf.SetLineWidth(0.5)
	w.pdf.Line(pageMargin, y, pageW-pageMargin, y)
	w.pdf.Ln(12)
}

func style(s span) string {
	switch {
	case s.Bold && s.Italic:
		return "BI"
	case s.Bold:
		return "B"
	case s.Italic:
		return "I"
	}
	return ""
}
