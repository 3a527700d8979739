package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// maxDocumentXML caps how much of word/document.xml is inflated.
const maxDocumentXML = 256 << 20

// WordExtractor extracts text from .docx files and legacy .doc compound files
type WordExtractor struct{}

func (e *WordExtractor) Stage() string { return StageDocx }

// ExtractText implements the Extractor interface for Word files
func (e *WordExtractor) ExtractText(data []byte) (string, error) {
	text, _, err := e.ExtractStaged(data)
	return text, err
}

// ExtractStaged routes OLE2 payloads to the legacy reader and everything else to the OOXML reader.
func (e *WordExtractor) ExtractStaged(data []byte) (string, []Attempt, error) {
	if isCompoundFile(data) {
		return extractLegacyDoc(data)
	}
	text, err := extractDocx(data)
	if err != nil {
		return "", []Attempt{{Stage: StageDocx, Outcome: OutcomeFailed, Err: err}}, err
	}
	return text, []Attempt{{Stage: StageDocx, Outcome: OutcomeSuccess, Text: text}}, nil
}

func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		paras, err := docxParagraphs(io.LimitReader(rc, maxDocumentXML))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(strings.Join(paras, "\n")), nil
	}
	return "", errors.New("word/document.xml not found in archive")
}

// docxParagraphs returns the text of each top-level body paragraph in document order.
// Paragraphs nested in tables or text boxes are not part of the body sequence.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		stack  []string
		paras  []string
		cur    strings.Builder
		inPara bool
		inText bool
	)
	parent := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1]
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			local := ""
			if t.Name.Space == wordNS {
				local = t.Name.Local
			}
			switch {
			case local == "p" && parent() == "body":
				inPara = true
				cur.Reset()
			case inPara && parent() == "r":
				switch local {
				case "t":
					inText = true
				case "tab":
					cur.WriteByte('\t')
				case "br", "cr":
					cur.WriteByte('\n')
				}
			}
			stack = append(stack, local)
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			local := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch {
			case local == "t":
				inText = false
			case local == "p" && inPara && parent() == "body":
				paras = append(paras, cur.String())
				inPara = false
			}
		case xml.CharData:
			if inPara && inText {
				cur.Write(t)
			}
		}
	}
	return paras, nil
}
