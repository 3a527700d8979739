package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"docsift/config"
)

// ConcurrencyManager handles bounded concurrency for heavy operations
type ConcurrencyManager struct {
	sem chan struct{}
}

func NewConcurrencyManager(slots int) *ConcurrencyManager {
	if slots < 1 {
		slots = 1
	}
	return &ConcurrencyManager{sem: make(chan struct{}, slots)}
}

// Acquire blocks until a slot is free or ctx is done.
func (cm *ConcurrencyManager) Acquire(ctx context.Context) error {
	select {
	case cm.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cm *ConcurrencyManager) Release() {
	<-cm.sem
}

// ExecuteWithTimeout runs fn with a context that expires after timeout.
// fn keeps running in the background if it ignores cancellation.
func (cm *ConcurrencyManager) ExecuteWithTimeout(ctx context.Context, fn func(ctx context.Context), timeout time.Duration) error {
	if timeout <= 0 {
		fn(ctx)
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("operation timed out after %s: %w", timeout, ctx.Err())
	}
}

// FileResult is the outcome of processing one file in a batch.
type FileResult struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
	Result   Result        `json:"result"`
}

// ProgressFunc is an optional callback to report progress like: processed, total, path
type ProgressFunc func(processed, total int, path string)

// Batch processes many files with bounded concurrency and a per-file timeout.
type Batch struct {
	Processor   *Processor
	Workers     int
	FileTimeout time.Duration

	// Optional progress callback (nil if unused)
	OnProgress ProgressFunc

	heavy  *ConcurrencyManager
	logger *slog.Logger
}

// NewBatch creates a batch runner. Heavy formats (PDF and Word) share
// Workers slots; light formats only count against the errgroup limit.
// A heavy file that times out keeps its slot until its extraction returns,
// so timeouts never push heavy work past Workers.
func NewBatch(p *Processor, workers int, fileTimeout time.Duration, logger *slog.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		Processor:   p,
		Workers:     workers,
		FileTimeout: fileTimeout,
		heavy:       NewConcurrencyManager(workers),
		logger:      logger,
	}
}

// Run processes paths and returns one FileResult per path, in input order.
// Per-file failures are reported in the results; the error is only set when
// ctx is cancelled.
func (b *Batch) Run(ctx context.Context, paths []string) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Workers * 2)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.processFile(gctx, path)
			n := processed.Add(1)
			if b.OnProgress != nil {
				b.OnProgress(int(n), len(paths), path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (b *Batch) processFile(ctx context.Context, path string) FileResult {
	start := time.Now()
	fr := FileResult{Path: path}
	fail := func(err error) FileResult {
		b.logger.Warn("file failed", "path", path, "error", err)
		fr.Result = Result{Name: path, Format: config.FormatFor(path), Status: StatusFailed, Detail: err.Error(), Diagnostics: []Attempt{}}
		fr.Duration = time.Since(start)
		return fr
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("read file: %w", err))
	}
	fr.Size = int64(len(data))

	release := func() {}
	if isHeavy(config.FormatFor(path)) {
		if err := b.heavy.Acquire(ctx); err != nil {
			return fail(err)
		}
		release = b.heavy.Release
	}

	var res Result
	err = b.heavy.ExecuteWithTimeout(ctx, func(ctx context.Context) {
		// the slot stays taken until extraction returns, even after a timeout
		defer release()
		res = b.Processor.ProcessPayload(ctx, Payload{Name: path, Data: data})
	}, b.FileTimeout)
	if err != nil {
		return fail(err)
	}
	fr.Result = res
	fr.Duration = time.Since(start)
	return fr
}

func isHeavy(format config.Format) bool {
	return format == config.FormatPDF || format == config.FormatWord
}

// FormatCount formats a number with thousands separators
func FormatCount(n int) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	str := strconv.Itoa(n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return result.String()
}

// FormatFileSize formats file size in human readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(size)/float64(div), 'f', 1, 64) + " " + "KMGTPE"[exp:exp+1] + "B"
}
