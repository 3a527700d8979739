// Package chunk splits extracted text into overlapping windows for
// downstream indexing.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Default window, in characters. Split rejects a zero Size; callers start
// from DefaultOptions and override what they need.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// ErrInvalidOptions is returned when the overlap does not fit in the chunk size.
var ErrInvalidOptions = errors.New("invalid chunk options")

// separators are tried in order; the empty separator is a hard cut.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// Options controls chunk size and overlap, both in characters.
type Options struct {
	Size    int
	Overlap int
}

// Chunk is one window of text.
type Chunk struct {
	Index       int    `json:"index"`
	Content     string `json:"content"`
	OverlapPrev int    `json:"overlap_prev"`
}

// DefaultOptions returns the 1000/200 window.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// WithSize returns o with its size replaced. An overlap that no longer fits
// is scaled down to the default overlap ratio.
func (o Options) WithSize(size int) Options {
	o.Size = size
	if o.Overlap >= size {
		o.Overlap = size * DefaultOverlap / DefaultSize
	}
	return o
}

func (o Options) validate() error {
	if o.Size <= 0 || o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: size %d, overlap %d", ErrInvalidOptions, o.Size, o.Overlap)
	}
	return nil
}

// Split breaks text into chunks of at most opts.Size characters. Each chunk
// after the first starts with the last opts.Overlap characters of the chunk
// before it. Splits prefer paragraph, line, sentence, clause and word
// boundaries in that order.
func Split(text string, opts Options) ([]Chunk, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(runes) <= opts.Size {
		return []Chunk{{Index: 0, Content: text}}, nil
	}

	step := opts.Size - opts.Overlap
	segments := split(text, step, separators)

	var chunks []Chunk
	var prev []rune
	for _, seg := range segments {
		if isBlank(seg) {
			continue
		}
		var content []rune
		overlap := 0
		if len(chunks) > 0 {
			overlap = min(opts.Overlap, len(prev))
			content = append(content, prev[len(prev)-overlap:]...)
		}
		content = append(content, []rune(seg)...)
		chunks = append(chunks, Chunk{Index: len(chunks), Content: string(content), OverlapPrev: overlap})
		prev = content
	}
	return chunks, nil
}

// split returns consecutive pieces of text, each at most limit runes, whose
// concatenation is text.
func split(text string, limit int, seps []string) []string {
	if runeLen(text) <= limit {
		return []string{text}
	}
	sep, rest := seps[0], seps[1:]
	if sep == "" {
		return hardCut(text, limit)
	}
	if !strings.Contains(text, sep) {
		return split(text, limit, rest)
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, piece := range splitKeep(text, sep) {
		n := runeLen(piece)
		if n > limit {
			flush()
			out = append(out, split(piece, limit, rest)...)
			continue
		}
		if curLen+n > limit {
			flush()
		}
		cur.WriteString(piece)
		curLen += n
	}
	flush()
	return out
}

// splitKeep splits after each separator, keeping it at the end of its piece.
func splitKeep(text, sep string) []string {
	var out []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			break
		}
		out = append(out, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func hardCut(text string, limit int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/limit+1)
	for len(runes) > 0 {
		n := min(limit, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
