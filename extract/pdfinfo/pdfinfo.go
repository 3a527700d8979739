//go:build !nopdfcpu

// Package pdfinfo reads document-level facts from a PDF's cross-reference
// table without extracting any text.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Available reports whether inspection is compiled in.
const Available = true

// ErrUnavailable is returned by builds made with the nopdfcpu tag.
var ErrUnavailable = errors.New("pdf inspection not built (nopdfcpu)")

// Info describes a PDF as a whole.
type Info struct {
	Pages     int
	Encrypted bool
	Version   string
}

func init() {
	api.DisableConfigDir()
}

// Inspect reads the document with pdfcpu. A file that pdfcpu cannot open
// without a password is reported as encrypted rather than as an error, as is
// one that opens with the empty user password but still carries an Encrypt
// entry.
func Inspect(data []byte) (info Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			info, err = Info{}, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return Info{Encrypted: true}, nil
		}
		return Info{}, fmt.Errorf("pdfcpu read: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return Info{}, fmt.Errorf("page count: %w", err)
	}
	return Info{
		Pages:     ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
		Version:   ctx.VersionString(),
	}, nil
}
