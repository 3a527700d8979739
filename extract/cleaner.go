package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// CSS/JavaScript blocks (separate patterns since Go doesn't support backreferences)
	cssRegex = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	jsRegex  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)

	// Tags that end a visual line
	blockTagRegex = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/tr|/h[1-6])[^>]*>`)

	// HTML/XML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

	// HTML entities
	htmlEntityRegex = regexp.MustCompile(`&[a-zA-Z0-9#]*;`)

	// Control characters except tab and newline
	controlCharRegex = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)

	horizontalSpaceRegex = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesRegex      = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkup turns an HTML body into plain text, keeping line structure.
func CleanMarkup(html string) string {
	text := cssRegex.ReplaceAllString(html, "")
	text = jsRegex.ReplaceAllString(text, "")
	text = blockTagRegex.ReplaceAllString(text, "\n")
	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = htmlEntityRegex.ReplaceAllStringFunc(text, func(entity string) string {
		switch entity {
		case "&amp;":
			return "&"
		case "&lt;":
			return "<"
		case "&gt;":
			return ">"
		case "&quot;":
			return "\""
		case "&apos;", "&#39;":
			return "'"
		default:
			return " "
		}
	})
	return NormalizeWhitespace(text)
}

// NormalizeWhitespace collapses horizontal runs, trims each line and keeps at most one blank line.
func NormalizeWhitespace(text string) string {
	text = controlCharRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(horizontalSpaceRegex.ReplaceAllString(ln, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Excerpt returns the leading text cut to maxRunes at a word boundary, on one line.
func Excerpt(text string, maxRunes int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= maxRunes {
		return flat
	}
	runes := []rune(flat)
	cut := maxRunes
	for cut > maxRunes/2 && runes[cut] != ' ' {
		cut--
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
