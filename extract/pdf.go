package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"docsift/config"
	"docsift/extract/layout"
	"docsift/extract/pdfinfo"
)

// DefaultMinPDFChars is the trimmed length a gated PDF stage must exceed.
const DefaultMinPDFChars = 100

var readableChunk = regexp.MustCompile(`[A-Za-z][A-Za-z\s.,;:!?()'"-]{10,}`)

// PDFStage is one strategy in the PDF cascade. Gated stages must pass the
// length threshold and the quality gate; ungated stages accept any
// non-empty text.
type PDFStage struct {
	Name    string
	Gated   bool
	Extract func(data []byte) (string, error)
}

// PDFOptions configures the default PDF cascade.
type PDFOptions struct {
	MinChars      int
	Layout        bool
	LayoutPageCap int
	Logger        *slog.Logger
}

// PDFCascade runs PDF stages in order until one is accepted.
type PDFCascade struct {
	MinChars int
	Stages   []PDFStage
	// Inspect reads the page count and encryption state before any stage
	// runs. A failed inspection is logged and the stages run anyway.
	Inspect func(data []byte) (pdfinfo.Info, error)
	logger  *slog.Logger
}

// NewPDFCascade builds the structured, layout and raw-scan cascade.
func NewPDFCascade(opts PDFOptions) *PDFCascade {
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinPDFChars
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	layoutStage := PDFStage{Name: StageLayout, Gated: true, Extract: layoutText(opts.Layout, opts.LayoutPageCap)}
	return &PDFCascade{
		MinChars: opts.MinChars,
		Stages: []PDFStage{
			{Name: StageStructured, Gated: true, Extract: structuredText(opts.Logger)},
			layoutStage,
			{Name: StageRawScan, Extract: rawScanText},
		},
		Inspect: pdfinfo.Inspect,
		logger:  opts.Logger,
	}
}

// Run extracts text from a PDF. The returned Result never has the OCR
// stage applied; that is the Processor's decision.
func (c *PDFCascade) Run(data []byte) (res Result) {
	res.Format = config.FormatPDF
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusPDFFailed
			res.Text = ""
			res.Detail = fmt.Sprint(r)
		}
	}()

	if c.Inspect != nil {
		info, err := c.Inspect(data)
		switch {
		case err != nil:
			c.logger.Debug("pdf inspection failed", "error", err)
		case info.Encrypted:
			res.Status = StatusEncrypted
			res.Diagnostics = []Attempt{{Stage: StageStructured, Outcome: OutcomeFailed, Err: ErrEncrypted}}
			return res
		default:
			res.Pages = info.Pages
		}
	}

	var partial string
	for _, stage := range c.Stages {
		text, err := runStage(stage, data)
		switch {
		case errors.Is(err, ErrEncrypted):
			res.Status = StatusEncrypted
			res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeFailed, Err: err})
			return res
		case errors.Is(err, ErrStageUnavailable):
			res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeUnavailable, Err: err})
			continue
		case err != nil:
			c.logger.Debug("pdf stage failed", "stage", stage.Name, "error", err)
			res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeFailed, Err: err})
			continue
		}

		cleaned := strings.TrimSpace(text)
		if !stage.Gated {
			if cleaned == "" {
				res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeFailed, Err: errors.New("no readable text found")})
				continue
			}
			res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeSuccess, Text: text})
			res.Status, res.Text = StatusExtracted, text
			return res
		}

		if c.accept(cleaned) {
			res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeSuccess, Text: cleaned})
			res.Status, res.Text = StatusExtracted, cleaned
			return res
		}
		c.logger.Debug("pdf stage rejected", "stage", stage.Name, "chars", len([]rune(cleaned)))
		res.Diagnostics = append(res.Diagnostics, Attempt{Stage: stage.Name, Outcome: OutcomeRejected, Text: cleaned, Err: ErrLowQuality})
		if cleaned != "" {
			partial = cleaned
		}
	}

	if partial != "" {
		res.Status, res.Text = StatusPartial, partial
		return res
	}
	res.Status = StatusExhausted
	return res
}

func (c *PDFCascade) accept(cleaned string) bool {
	return len([]rune(cleaned)) > c.MinChars && IsMeaningful(cleaned)
}

// runStage isolates panics raised by the PDF libraries.
func runStage(stage PDFStage, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Extract(data)
}

// structuredText reads each page's plain text with ledongthuc/pdf. Pages
// that fail are logged and skipped; the stage fails only when no page
// produced text and at least one failed.
func structuredText(logger *slog.Logger) func([]byte) (string, error) {
	return func(data []byte) (string, error) {
		return structuredPages(data, func(page int, err error) {
			logger.Warn("pdf page skipped", "stage", StageStructured, "page", page, "error", err)
		})
	}
}

func structuredPages(data []byte, skipped func(page int, err error)) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return "", fmt.Errorf("open pdf: %w", err)
	}
	if !reader.Trailer().Key("Encrypt").IsNull() {
		return "", ErrEncrypted
	}

	pages := reader.NumPage()
	var (
		b       strings.Builder
		pageErr error
	)
	for i := 1; i <= pages; i++ {
		text, err := pageText(reader, i)
		if err != nil {
			skipped(i, err)
			pageErr = errors.Join(pageErr, fmt.Errorf("page %d: %w", i, err))
			continue
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	if b.Len() == 0 && pageErr != nil {
		return "", pageErr
	}
	return b.String(), nil
}

func pageText(reader *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic: %v", r)
		}
	}()
	page := reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func layoutText(enabled bool, pageCap int) func([]byte) (string, error) {
	if !enabled {
		return func([]byte) (string, error) {
			return "", ErrStageUnavailable
		}
	}
	return func(data []byte) (string, error) {
		return layout.Extract(data, pageCap)
	}
}

// rawScanText pulls runs of letters and punctuation straight out of the file bytes.
func rawScanText(data []byte) (string, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("latin-1: %w", err)
	}
	chunks := readableChunk.FindAllString(string(decoded), -1)
	return strings.Join(chunks, "\n"), nil
}
