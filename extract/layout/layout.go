// Package layout rebuilds reading order from positioned PDF glyphs.
package layout

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultPageCap is the maximum number of pages laid out when no cap is given.
const DefaultPageCap = 200

// run is a stretch of text on one baseline.
type run struct {
	x, y, end float64
	size      float64
	text      string
}

type line struct {
	y, size float64
	runs    []run
}

// Extract lays out the decoded glyphs of each page. Pages are separated by
// a blank line; pages that fail to decode are skipped.
func Extract(data []byte, pageCap int) (out string, err error) {
	if pageCap <= 0 {
		pageCap = DefaultPageCap
	}

	// Panic protection around library calls.
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("pdf panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage() && i <= pageCap; i++ {
		if text := pageLayout(reader.Page(i)); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func pageLayout(page pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if page.V.IsNull() {
		return ""
	}
	return arrange(glyphRuns(page.Content().Text))
}

// glyphRuns merges consecutive glyphs that sit on the same baseline with
// no visible gap between them.
func glyphRuns(glyphs []pdf.Text) []run {
	var runs []run
	for _, g := range glyphs {
		if g.S == "" || strings.TrimSpace(g.S) == "" && g.S != " " {
			continue
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			gap := g.X - last.end
			if math.Abs(last.y-g.Y) < 0.5 && g.X >= last.x && gap <= math.Max(last.size, g.FontSize)*0.2 {
				last.text += g.S
				last.end = math.Max(last.end, g.X+g.W)
				continue
			}
		}
		runs = append(runs, run{x: g.X, y: g.Y, end: g.X + g.W, size: g.FontSize, text: g.S})
	}
	return runs
}

// arrange groups runs into lines by baseline, orders lines top to bottom
// and runs left to right, and separates lines with a vertical gap wider
// than 1.8 line heights by a blank line.
func arrange(runs []run) string {
	if len(runs) == 0 {
		return ""
	}
	sorted := make([]run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var lines []*line
	for _, r := range sorted {
		if strings.TrimSpace(r.text) == "" && r.text != " " {
			continue
		}
		var cur *line
		if n := len(lines); n > 0 {
			last := lines[n-1]
			tol := math.Max(2, math.Max(last.size, r.size)*0.4)
			if math.Abs(last.y-r.y) <= tol {
				cur = last
			}
		}
		if cur == nil {
			cur = &line{y: r.y, size: r.size}
			lines = append(lines, cur)
		}
		if r.size > cur.size {
			cur.size = r.size
		}
		cur.runs = append(cur.runs, r)
	}

	var b strings.Builder
	prev := -1
	for i, ln := range lines {
		text := joinRuns(ln.runs)
		if text == "" {
			continue
		}
		if prev >= 0 {
			b.WriteByte('\n')
			p := lines[prev]
			height := math.Max(p.size, ln.size)
			if height > 0 && p.y-ln.y > height*1.8 {
				b.WriteByte('\n')
			}
		}
		b.WriteString(text)
		prev = i
	}
	return b.String()
}

func joinRuns(runs []run) string {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].x < runs[j].x })
	var b strings.Builder
	prevEnd := math.Inf(-1)
	for _, r := range runs {
		if b.Len() > 0 && r.text != " " {
			gap := r.x - prevEnd
			last := b.String()[b.Len()-1]
			if gap > r.size*0.2 && last != ' ' && !strings.HasPrefix(r.text, " ") {
				b.WriteByte(' ')
			}
		}
		if r.text == " " && (b.Len() == 0 || b.String()[b.Len()-1] == ' ') {
			prevEnd = math.Max(prevEnd, r.end)
			continue
		}
		b.WriteString(r.text)
		prevEnd = math.Max(prevEnd, r.end)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
