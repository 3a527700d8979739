package extract

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// TextExtractor decodes plain text files. Plain text is trusted as-is, no quality gate.
type TextExtractor struct{}

func (e *TextExtractor) Stage() string { return StageUTF8 }

// ExtractText implements the Extractor interface for plain text files
func (e *TextExtractor) ExtractText(data []byte) (string, error) {
	text, _, err := e.ExtractStaged(data)
	return text, err
}

// ExtractStaged tries UTF-8 first and falls back to Latin-1.
func (e *TextExtractor) ExtractStaged(data []byte) (string, []Attempt, error) {
	if utf8.Valid(data) {
		text := string(data)
		return text, []Attempt{{Stage: StageUTF8, Outcome: OutcomeSuccess, Text: text}}, nil
	}
	attempts := []Attempt{{Stage: StageUTF8, Outcome: OutcomeFailed, Err: invalidUTF8(data)}}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		err = fmt.Errorf("latin-1: %w", err)
		attempts = append(attempts, Attempt{Stage: StageLatin1, Outcome: OutcomeFailed, Err: err})
		return "", attempts, err
	}
	text := string(decoded)
	attempts = append(attempts, Attempt{Stage: StageLatin1, Outcome: OutcomeSuccess, Text: text})
	return text, attempts, nil
}

// invalidUTF8 describes the first byte that breaks UTF-8 decoding.
func invalidUTF8(data []byte) error {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return fmt.Errorf("invalid utf-8 byte 0x%02x at position %d", data[i], i)
		}
		i += size
	}
	return fmt.Errorf("invalid utf-8")
}
