// Package ocr recognizes text in scanned PDFs with pdftoppm and tesseract.
package ocr

import (
	"errors"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrUnavailable is returned when a required binary is not installed.
var ErrUnavailable = errors.New("ocr tools not installed")

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang     string // default "eng"
	DPI      int    // rasterization DPI, default 300
	MaxPages int    // 0 = no limit

	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
}

// Option customizes a Recognizer.
type Option func(*Recognizer)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(rec *Recognizer) { rec.runner = r }
}

// WithLookPath replaces the binary probe used at construction.
func WithLookPath(fn func(file string) (string, error)) Option {
	return func(rec *Recognizer) { rec.lookPath = fn }
}

// Recognizer renders PDF pages to images and runs tesseract on each.
type Recognizer struct {
	cfg      Config
	runner   Runner
	lookPath func(string) (string, error)
	logger   *slog.Logger
	missing  []string
}

// New creates a Recognizer and probes for the binaries it needs.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	r := &Recognizer{cfg: cfg, runner: execRunner{logger: logger}, lookPath: exec.LookPath, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	for _, bin := range []string{cfg.Tesseract, cfg.Pdftoppm} {
		if _, err := r.lookPath(bin); err != nil {
			r.missing = append(r.missing, bin)
		}
	}
	if len(r.missing) > 0 {
		logger.Debug("ocr unavailable", "missing", strings.Join(r.missing, ", "))
	}
	return r
}

// Available reports whether both binaries were found.
func (r *Recognizer) Available() bool {
	return len(r.missing) == 0
}

// Missing lists the binaries that were not found.
func (r *Recognizer) Missing() []string {
	return append([]string(nil), r.missing...)
}
