// Package pdftest writes small, well-formed PDF files for tests.
package pdftest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options shapes a generated document.
type Options struct {
	// Encrypted adds a Standard security handler whose user password is
	// not empty, so readers cannot open the file without one.
	Encrypted bool
	// ToUnicode shows text through a Type0 Identity-H font. Glyph codes
	// are arbitrary and only map back to text through a ToUnicode CMap.
	ToUnicode bool
	// Broken is the 1-based number of a page whose content stream shows
	// text without an operand. Zero leaves every page intact.
	Broken int
}

// Build returns a PDF with one page per element of pages. Lines within a
// page are separated by '\n' and are drawn top to bottom with 14pt leading.
func Build(pages []string, opts Options) []byte {
	w := &writer{}
	w.b.WriteString("%PDF-1.4\n")

	catalog := w.reserve()
	tree := w.reserve()
	font := w.reserve()

	var codes map[rune]int
	if opts.ToUnicode {
		codes = glyphCodes(pages)
	}

	kids := make([]string, 0, len(pages))
	for i, text := range pages {
		stream := contentStream(text, codes)
		if i+1 == opts.Broken {
			stream = "BT\n/F1 12 Tf\n72 720 Td\nTj\nET"
		}
		content := w.add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		page := w.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", tree, content, font))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	w.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))
	w.set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))
	if opts.ToUnicode {
		cmap := toUnicodeCMap(codes)
		cmapObj := w.add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(cmap), cmap))
		descendant := w.add("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /ABCDEF+Sans /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /DW 500 >>")
		w.set(font, fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /ABCDEF+Sans /Encoding /Identity-H /DescendantFonts [%d 0 R] /ToUnicode %d 0 R >>", descendant, cmapObj))
	} else {
		w.set(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	}

	var trailer string
	if opts.Encrypted {
		key := strings.Repeat("41", 32)
		enc := w.add("<< /Filter /Standard /V 1 /R 2 /Length 40 /P -44 /O <" + key + "> /U <" + key + "> >>")
		id := strings.Repeat("0F", 16)
		trailer = fmt.Sprintf(" /Encrypt %d 0 R /ID [<%s> <%s>]", enc, id, id)
	}
	return w.finish(catalog, trailer)
}

func contentStream(text string, codes map[rune]int) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("T*\n")
		}
		if codes != nil {
			b.WriteString("<")
			for _, r := range line {
				fmt.Fprintf(&b, "%04X", codes[r])
			}
			b.WriteString("> Tj\n")
			continue
		}
		b.WriteString("(" + strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(line) + ") Tj\n")
	}
	b.WriteString("ET")
	return b.String()
}

// glyphCodes assigns each distinct rune a code in order of first use,
// starting at 3 so codes never coincide with ASCII text bytes.
func glyphCodes(pages []string) map[rune]int {
	codes := make(map[rune]int)
	for _, p := range pages {
		for _, r := range p {
			if r == '\n' {
				continue
			}
			if _, ok := codes[r]; !ok {
				codes[r] = len(codes) + 3
			}
		}
	}
	return codes
}

func toUnicodeCMap(codes map[rune]int) string {
	var b strings.Builder
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	var entries []string
	for r, code := range codes {
		if utf8.RuneLen(r) > 3 {
			continue
		}
		entries = append(entries, fmt.Sprintf("<%04X> <%04X>\n", code, r))
	}
	sort.Strings(entries)
	fmt.Fprintf(&b, "%d beginbfchar\n%s", len(entries), strings.Join(entries, ""))
	b.WriteString("endbfchar\nendcmap\nCMapName currentdict /CMap defineresource pop\nend\nend")
	return b.String()
}

type writer struct {
	b       strings.Builder
	objects []string
}

func (w *writer) reserve() int {
	w.objects = append(w.objects, "")
	return len(w.objects)
}

func (w *writer) add(obj string) int {
	w.objects = append(w.objects, obj)
	return len(w.objects)
}

func (w *writer) set(n int, obj string) {
	w.objects[n-1] = obj
}

func (w *writer) finish(root int, trailer string) []byte {
	offsets := make([]int, len(w.objects))
	for i, obj := range w.objects {
		offsets[i] = w.b.Len()
		w.b.WriteString(strconv.Itoa(i+1) + " 0 obj\n" + obj + "\nendobj\n")
	}
	xref := w.b.Len()
	fmt.Fprintf(&w.b, "xref\n0 %d\n0000000000 65535 f \n", len(w.objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&w.b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.b, "trailer\n<< /Size %d /Root %d 0 R%s >>\n", len(w.objects)+1, root, trailer)
	fmt.Fprintf(&w.b, "startxref\n%d\n%%%%EOF\n", xref)
	return []byte(w.b.String())
}
