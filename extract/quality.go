package extract

import (
	"strings"
	"unicode/utf8"
)

// minMeaningfulRunes is the trimmed length below which text is rejected outright.
const minMeaningfulRunes = 10

var commonWords = []string{"the", "and", "is", "in", "to", "of"}

const unusualSymbols = `%@^~{}[]<>|\`

// Verdict holds the individual quality signals for a piece of text.
type Verdict struct {
	TooShort       bool    `json:"too_short"`
	HasSpace       bool    `json:"has_space"`
	HasNewline     bool    `json:"has_newline"`
	HasCommonWord  bool    `json:"has_common_word"`
	HasPeriod      bool    `json:"has_period"`
	PrintableRatio float64 `json:"printable_ratio"`
	UnusualRatio   float64 `json:"unusual_ratio"`
}

// Meaningful reports whether every signal passes.
func (v Verdict) Meaningful() bool {
	return !v.TooShort &&
		v.HasSpace &&
		v.HasNewline &&
		v.HasCommonWord &&
		v.HasPeriod &&
		v.PrintableRatio > 0.90 &&
		v.UnusualRatio < 0.05
}

// Assess computes the quality signals for text. Ratios are taken over the
// untrimmed rune count.
func Assess(text string) Verdict {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minMeaningfulRunes {
		return Verdict{TooShort: true}
	}

	v := Verdict{
		HasSpace:   strings.Contains(text, " "),
		HasNewline: strings.Contains(text, "\n"),
		HasPeriod:  strings.Contains(text, "."),
	}
	lower := strings.ToLower(text)
	for _, w := range commonWords {
		if strings.Contains(lower, w) {
			v.HasCommonWord = true
			break
		}
	}

	total, printable, unusual := 0, 0, 0
	for _, r := range text {
		total++
		if (r >= 32 && r <= 126) || r == '\n' || r == '\t' || r == '\r' {
			printable++
		}
		if strings.ContainsRune(unusualSymbols, r) {
			unusual++
		}
	}
	v.PrintableRatio = float64(printable) / float64(total)
	v.UnusualRatio = float64(unusual) / float64(total)
	return v
}

// IsMeaningful reports whether text looks like recovered prose rather than noise.
func IsMeaningful(text string) bool {
	return Assess(text).Meaningful()
}
