package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"
)

// EMLExtractor extracts text from .eml files (MIME messages)
type EMLExtractor struct{}

func (e *EMLExtractor) Stage() string { return StageEML }

// ExtractText implements the Extractor interface for EML files
func (e *EMLExtractor) ExtractText(data []byte) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}

	// Prefer plain text, fallback to HTML if plain text is empty
	body := NormalizeWhitespace(env.Text)
	if body == "" && env.HTML != "" {
		body = CleanMarkup(env.HTML)
	}

	var b strings.Builder
	if subject := strings.TrimSpace(env.GetHeader("Subject")); subject != "" {
		b.WriteString("Subject: ")
		b.WriteString(subject)
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("message has no text content")
	}
	return text, nil
}

// MBOXExtractor extracts text from .mbox files (collections of MIME messages)
type MBOXExtractor struct{}

func (e *MBOXExtractor) Stage() string { return StageMBOX }

// ExtractText implements the Extractor interface for MBOX files.
// Unreadable messages are skipped.
func (e *MBOXExtractor) ExtractText(data []byte) (string, error) {
	reader := mbox.NewReader(bytes.NewReader(data))
	emlExtractor := &EMLExtractor{}

	var parts []string
	for {
		msg, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(parts) == 0 {
				return "", fmt.Errorf("read mailbox: %w", err)
			}
			break
		}
		content, err := io.ReadAll(msg)
		if err != nil {
			continue
		}
		extracted, err := emlExtractor.ExtractText(content)
		if err != nil {
			continue
		}
		parts = append(parts, extracted)
	}

	if len(parts) == 0 {
		return "", errors.New("mailbox contains no readable messages")
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
