package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

// Pipeline steps, as they appear in logs.
const (
	stepRender    = "render"
	stepRecognize = "recognize"
)

// Command is one external tool invocation in the OCR pipeline.
type Command struct {
	Step string
	Page int // 1-based; 0 when the command covers the whole document
	Path string
	Args []string
}

// Runner executes OCR commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, c Command) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, c Command) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()

	attrs := []any{"step", c.Step, "tool", filepath.Base(c.Path), "duration", time.Since(start)}
	if c.Page > 0 {
		attrs = append(attrs, "page", c.Page)
	}
	if err != nil {
		attrs = append(attrs, "error", err, "stderr", truncate(errb.String(), 2<<10))
		r.logger.Warn("ocr step failed", attrs...)
	} else {
		attrs = append(attrs, "stdout_bytes", out.Len())
		r.logger.Debug("ocr step done", attrs...)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
