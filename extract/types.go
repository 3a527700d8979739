package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docsift/config"
)

// Stage names recorded in diagnostics.
const (
	StageStructured = "structured"
	StageLayout     = "layout"
	StageRawScan    = "raw-scan"
	StageOCR        = "ocr"
	StageUTF8       = "utf-8"
	StageLatin1     = "latin-1"
	StageDocx       = "docx"
	StageDoc        = "doc"
	StageEML        = "eml"
	StageMBOX       = "mbox"
)

var (
	// ErrEncrypted marks a PDF that cannot be read without a password.
	ErrEncrypted = errors.New("document is encrypted")
	// ErrStageUnavailable marks an optional stage whose dependency is missing.
	ErrStageUnavailable = errors.New("stage unavailable")
	// ErrEmptyContent is returned for payloads with no bytes.
	ErrEmptyContent = errors.New("document content is empty")
	// ErrLowQuality marks text rejected by the quality gate.
	ErrLowQuality = errors.New("extracted text failed the quality gate")
)

// Upload is the inbound, still encoded document.
type Upload struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Payload is a decoded document owned by a single Process call.
type Payload struct {
	Name         string
	DeclaredType string
	Data         []byte
}

// Outcome tags the result of one extraction attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRejected
	OutcomeFailed
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText renders the outcome name in JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Attempt records what one strategy produced.
type Attempt struct {
	Stage   string
	Outcome Outcome
	Text    string
	Err     error
}

// MarshalJSON reports the stage, outcome and diagnostic line.
func (a Attempt) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Stage   string  `json:"stage"`
		Outcome Outcome `json:"outcome"`
		Message string  `json:"message"`
	}{a.Stage, a.Outcome, a.Message()})
}

// Message is the single diagnostic line for the attempt.
func (a Attempt) Message() string {
	switch a.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("%s extraction succeeded", a.Stage)
	case OutcomeRejected:
		return fmt.Sprintf("%s extraction produced low-quality text (%d chars)", a.Stage, len([]rune(strings.TrimSpace(a.Text))))
	case OutcomeUnavailable:
		return fmt.Sprintf("%s extraction not available, skipping", a.Stage)
	default:
		return fmt.Sprintf("%s extraction failed: %v", a.Stage, a.Err)
	}
}

// Status is the terminal state of a Result.
type Status int

const (
	StatusExtracted Status = iota
	StatusPartial
	StatusUnsupported
	StatusEncrypted
	StatusExhausted
	StatusPDFFailed
	StatusDecodeFailed
	StatusWordFailed
	StatusMailFailed
	StatusFailed
)

var statusNames = map[Status]string{
	StatusExtracted:    "extracted",
	StatusPartial:      "partial",
	StatusUnsupported:  "unsupported",
	StatusEncrypted:    "encrypted",
	StatusExhausted:    "exhausted",
	StatusPDFFailed:    "pdf-failed",
	StatusDecodeFailed: "decode-failed",
	StatusWordFailed:   "word-failed",
	StatusMailFailed:   "mail-failed",
	StatusFailed:       "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HasContent reports whether the result carries document text.
func (s Status) HasContent() bool {
	return s == StatusExtracted || s == StatusPartial
}

// NeedsOCR reports whether a PDF result should be retried through OCR.
func (s Status) NeedsOCR() bool {
	return s == StatusEncrypted || s == StatusExhausted || s == StatusPDFFailed
}

// Result is the outcome of processing one document.
type Result struct {
	Name        string        `json:"name"`
	Format      config.Format `json:"format"`
	Status      Status        `json:"status"`
	Pages       int           `json:"pages,omitempty"`
	Text        string        `json:"text,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Diagnostics []Attempt     `json:"diagnostics"`
}

const (
	encryptedMessage = "This PDF is encrypted or password-protected. Please provide an unencrypted PDF."
	partialWarning   = "Warning: PDF extraction may be incomplete or unreliable.\n\n"
	exhaustedMessage = "Failed to extract text from PDF. The PDF may be scanned images without OCR text, corrupt, or have security features that prevent extraction.\n\nErrors encountered:\n"
	ocrMissing       = "OCR dependencies (tesseract, pdftoppm) not installed. Install them for OCR capabilities."
)

// String renders the single-string form returned to existing consumers.
func (r Result) String() string {
	var s string
	switch r.Status {
	case StatusExtracted:
		return r.Text
	case StatusPartial:
		return partialWarning + r.Text
	case StatusUnsupported:
		return "Unsupported file type: " + r.Name
	case StatusEncrypted:
		s = encryptedMessage
	case StatusExhausted:
		lines := make([]string, 0, len(r.Diagnostics))
		for _, a := range r.Diagnostics {
			if a.Stage == StageOCR || a.Outcome == OutcomeSuccess {
				continue
			}
			lines = append(lines, a.Message())
		}
		s = exhaustedMessage + strings.Join(lines, "\n")
	case StatusPDFFailed:
		s = "Error processing PDF: " + r.Detail
	case StatusDecodeFailed:
		return "Error decoding text: " + r.Detail
	case StatusWordFailed:
		return "Error processing DOCX: " + r.Detail
	case StatusMailFailed:
		return "Error processing email: " + r.Detail
	default:
		return "Error processing document: " + r.Detail
	}
	if ocr, ok := r.attempt(StageOCR); ok && ocr.Outcome != OutcomeSuccess {
		s += "\n\nOCR attempt: " + ocrMessage(ocr)
	}
	return s
}

// Stages returns the stage names in the order they were attempted.
func (r Result) Stages() []string {
	names := make([]string, len(r.Diagnostics))
	for i, a := range r.Diagnostics {
		names[i] = a.Stage
	}
	return names
}

func (r Result) attempt(stage string) (Attempt, bool) {
	for i := len(r.Diagnostics) - 1; i >= 0; i-- {
		if r.Diagnostics[i].Stage == stage {
			return r.Diagnostics[i], true
		}
	}
	return Attempt{}, false
}

func ocrMessage(a Attempt) string {
	if a.Outcome == OutcomeUnavailable {
		return ocrMissing
	}
	return fmt.Sprintf("OCR processing failed: %v", a.Err)
}
