package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"docsift/config"
)

// OCR recognizes text in a PDF by rendering its pages.
type OCR interface {
	Available() bool
	RecognizeText(ctx context.Context, pdf []byte) (string, error)
}

// Options configures a Processor. The zero value is usable.
type Options struct {
	MinPDFChars   int
	Layout        bool
	LayoutPageCap int
	// OCR is consulted when the PDF cascade fails. Nil means unavailable.
	OCR      OCR
	Registry *ExtractorRegistry
	Logger   *slog.Logger
}

// OptionsFromConfig maps the loaded configuration onto processor options.
func OptionsFromConfig(cfg config.Config, ocr OCR, logger *slog.Logger) Options {
	return Options{
		MinPDFChars:   cfg.Extraction.MinPDFChars,
		Layout:        cfg.Layout.Enabled,
		LayoutPageCap: cfg.Layout.PageCap,
		OCR:           ocr,
		Logger:        logger,
	}
}

// Processor turns uploaded documents into text. It holds no per-request
// state and is safe for concurrent use.
type Processor struct {
	registry *ExtractorRegistry
	pdf      *PDFCascade
	ocr      OCR
	logger   *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(opts Options) *Processor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = NewExtractorRegistry()
	}
	return &Processor{
		registry: opts.Registry,
		pdf: NewPDFCascade(PDFOptions{
			MinChars:      opts.MinPDFChars,
			Layout:        opts.Layout,
			LayoutPageCap: opts.LayoutPageCap,
			Logger:        opts.Logger,
		}),
		ocr:    opts.OCR,
		logger: opts.Logger,
	}
}

// Process decodes the upload's base64 content and extracts its text.
func (p *Processor) Process(ctx context.Context, up Upload) Result {
	data, err := DecodeContent(up.Content)
	if err != nil {
		p.logger.Warn("content decode failed", "name", up.Name, "error", err)
		return Result{
			Name:        up.Name,
			Format:      config.FormatFor(up.Name),
			Status:      StatusFailed,
			Detail:      err.Error(),
			Diagnostics: []Attempt{},
		}
	}
	return p.ProcessPayload(ctx, Payload{Name: up.Name, DeclaredType: up.Type, Data: data})
}

// ProcessPayload extracts text from already decoded bytes. Dispatch is by
// the file name suffix; the declared type is informational.
func (p *Processor) ProcessPayload(ctx context.Context, payload Payload) (res Result) {
	start := time.Now()
	res.Name = payload.Name
	res.Format = config.FormatFor(payload.Name)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing document", "name", payload.Name, "panic", r)
			res.Status = StatusFailed
			res.Text = ""
			res.Detail = fmt.Sprint(r)
		}
		if res.Diagnostics == nil {
			res.Diagnostics = []Attempt{}
		}
		p.logger.Info("document processed",
			"name", res.Name,
			"format", res.Format,
			"status", res.Status,
			"stages", res.Stages(),
			"chars", len(res.Text),
			"duration", time.Since(start))
	}()

	switch {
	case res.Format == config.FormatUnknown:
		res.Status = StatusUnsupported
		return res
	case len(payload.Data) == 0:
		res.Status = StatusFailed
		res.Detail = ErrEmptyContent.Error()
		return res
	case res.Format == config.FormatPDF:
		pdfRes := p.processPDF(ctx, payload.Data)
		pdfRes.Name = res.Name
		return pdfRes
	}

	extractor, ok := p.registry.GetExtractor(res.Format)
	if !ok {
		res.Status = StatusUnsupported
		return res
	}
	text, attempts, err := runExtractor(extractor, payload.Data)
	res.Diagnostics = attempts
	if err != nil {
		res.Status = failureStatus(res.Format)
		res.Detail = err.Error()
		return res
	}
	res.Status = StatusExtracted
	res.Text = text
	return res
}

func (p *Processor) processPDF(ctx context.Context, data []byte) Result {
	res := p.pdf.Run(data)
	if !res.Status.NeedsOCR() {
		return res
	}
	if p.ocr == nil || !p.ocr.Available() {
		res.Diagnostics = append(res.Diagnostics, Attempt{Stage: StageOCR, Outcome: OutcomeUnavailable, Err: ErrStageUnavailable})
		return res
	}

	text, err := p.ocr.RecognizeText(ctx, data)
	if err != nil {
		p.logger.Warn("ocr failed", "error", err)
		res.Diagnostics = append(res.Diagnostics, Attempt{Stage: StageOCR, Outcome: OutcomeFailed, Err: err})
		return res
	}
	res.Diagnostics = append(res.Diagnostics, Attempt{Stage: StageOCR, Outcome: OutcomeSuccess, Text: text})
	res.Status = StatusExtracted
	res.Text = text
	res.Detail = ""
	return res
}

func failureStatus(format config.Format) Status {
	switch format {
	case config.FormatText:
		return StatusDecodeFailed
	case config.FormatWord:
		return StatusWordFailed
	case config.FormatEML, config.FormatMBOX:
		return StatusMailFailed
	default:
		return StatusFailed
	}
}

// DecodeContent decodes base64 document content. A data URL header is
// stripped, whitespace is ignored, padding is optional and the URL-safe
// alphabet is accepted.
func DecodeContent(content string) ([]byte, error) {
	if strings.Contains(content, ";base64,") {
		content = content[strings.IndexByte(content, ',')+1:]
	}
	content = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, content)
	if content == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(content)
	if err == nil {
		return data, nil
	}
	unpadded := strings.TrimRight(content, "=")
	if data, rawErr := base64.RawStdEncoding.DecodeString(unpadded); rawErr == nil {
		return data, nil
	}
	if data, urlErr := base64.RawURLEncoding.DecodeString(unpadded); urlErr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("decode base64 content: %w", err)
}

// IsEncrypted reports whether the result failed because the document is encrypted.
func (r Result) IsEncrypted() bool {
	if r.Status == StatusEncrypted {
		return true
	}
	for _, a := range r.Diagnostics {
		if errors.Is(a.Err, ErrEncrypted) {
			return true
		}
	}
	return false
}
