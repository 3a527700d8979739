package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RecognizeText rasterizes every page of the PDF and returns the recognized
// text with a "--- Page N ---" header before each page.
func (r *Recognizer) RecognizeText(ctx context.Context, pdf []byte) (string, error) {
	if !r.Available() {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(r.missing, ", "))
	}
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "docsift-ocr-*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}

	pages, err := r.render(ctx, in, filepath.Join(tmpDir, "page"))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, img := range pages {
		txt, err := r.tesseract(ctx, i+1, img)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		fmt.Fprintf(&b, "\n\n--- Page %d ---\n\n%s", i+1, txt)
	}
	text := strings.TrimSpace(b.String())
	if strings.TrimSpace(stripPageHeaders(text)) == "" {
		return "", errors.New("no text recognized")
	}
	r.logger.Debug("ocr done", "pages", len(pages), "chars", len(text), "duration", time.Since(start))
	return text, nil
}

// render runs pdftoppm and returns the generated images in page order.
func (r *Recognizer) render(ctx context.Context, in, prefix string) ([]string, error) {
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png"}
	if r.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(r.cfg.MaxPages))
	}
	args = append(args, in, prefix)
	_, errb, err := r.runner.Run(ctx, Command{Step: stepRender, Path: r.cfg.Pdftoppm, Args: args})
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ... possibly zero padded)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(prefix, matches[i]) < pageNumber(prefix, matches[j])
	})
	if r.cfg.MaxPages > 0 && len(matches) > r.cfg.MaxPages {
		matches = matches[:r.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, errors.New("pdftoppm produced no images")
	}
	return matches, nil
}

func (r *Recognizer) tesseract(ctx context.Context, page int, img string) (string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{img, "stdout", "-l", r.cfg.Lang}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}
	if r.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(r.cfg.PSM))
	}
	out, errb, err := r.runner.Run(ctx, Command{Step: stepRecognize, Page: page, Path: r.cfg.Tesseract, Args: args})
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}

func pageNumber(prefix, path string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(path, prefix+"-"), ".png")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1 << 30
	}
	return n
}

func stripPageHeaders(text string) string {
	var b strings.Builder
	for _, ln := range strings.Split(text, "\n") {
		if strings.HasPrefix(ln, "--- Page ") && strings.HasSuffix(ln, " ---") {
			continue
		}
		b.WriteString(ln)
		b.WriteByte('\n')
	}
	return b.String()
}
