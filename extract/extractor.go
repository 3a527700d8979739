package extract

import (
	"docsift/config"
)

// Extractor defines the interface for extracting text from one document format
type Extractor interface {
	// Stage names the strategy in diagnostics
	Stage() string
	// ExtractText takes raw file bytes and returns extracted plain text
	ExtractText(data []byte) (string, error)
}

// stagedExtractor is implemented by extractors that try more than one
// strategy and want each recorded.
type stagedExtractor interface {
	ExtractStaged(data []byte) (string, []Attempt, error)
}

// ExtractorRegistry holds extractors for the non-PDF formats
type ExtractorRegistry struct {
	extractors map[config.Format]Extractor
}

// NewExtractorRegistry creates a new registry with built-in extractors
func NewExtractorRegistry() *ExtractorRegistry {
	reg := &ExtractorRegistry{
		extractors: make(map[config.Format]Extractor),
	}
	reg.registerBuiltIns()
	return reg
}

// Register replaces the extractor used for a format
func (r *ExtractorRegistry) Register(format config.Format, e Extractor) {
	r.extractors[format] = e
}

// GetExtractor returns the extractor for a format
func (r *ExtractorRegistry) GetExtractor(format config.Format) (Extractor, bool) {
	e, ok := r.extractors[format]
	return e, ok
}

func (r *ExtractorRegistry) registerBuiltIns() {
	r.extractors[config.FormatText] = &TextExtractor{}
	r.extractors[config.FormatWord] = &WordExtractor{}
	r.extractors[config.FormatEML] = &EMLExtractor{}
	r.extractors[config.FormatMBOX] = &MBOXExtractor{}
}

// runExtractor records one attempt per strategy the extractor tried.
func runExtractor(e Extractor, data []byte) (string, []Attempt, error) {
	if se, ok := e.(stagedExtractor); ok {
		return se.ExtractStaged(data)
	}
	text, err := e.ExtractText(data)
	if err != nil {
		return "", []Attempt{{Stage: e.Stage(), Outcome: OutcomeFailed, Err: err}}, err
	}
	return text, []Attempt{{Stage: e.Stage(), Outcome: OutcomeSuccess, Text: text}}, nil
}
