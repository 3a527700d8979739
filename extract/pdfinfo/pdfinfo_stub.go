//go:build nopdfcpu

package pdfinfo

import "errors"

// Available reports whether inspection is compiled in.
const Available = false

// ErrUnavailable is returned by builds made with the nopdfcpu tag.
var ErrUnavailable = errors.New("pdf inspection not built (nopdfcpu)")

// Info describes a PDF as a whole.
type Info struct {
	Pages     int
	Encrypted bool
	Version   string
}

// Inspect is a stub used for builds with the "nopdfcpu" tag.
func Inspect(data []byte) (Info, error) {
	return Info{}, ErrUnavailable
}
