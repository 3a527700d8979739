package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsift/extract/internal/pdftest"
	"docsift/extract/pdfinfo"
)

const prose = "The quarterly report describes the revenue of the company in detail.\n" +
	"It is written to inform the board and the staff of the results.\n"

func stage(name string, gated bool, text string, err error) PDFStage {
	return PDFStage{Name: name, Gated: gated, Extract: func([]byte) (string, error) { return text, err }}
}

func cascade(stages ...PDFStage) *PDFCascade {
	c := NewPDFCascade(PDFOptions{})
	c.Stages = stages
	c.Inspect = nil
	return c
}

func TestCascadeFirstAcceptedStageWins(t *testing.T) {
	c := cascade(
		stage(StageStructured, true, "\n  "+prose+"  \n", nil),
		stage(StageLayout, true, "", errors.New("must not run")),
	)
	res := c.Run([]byte("%PDF-1.4"))
	assert.Equal(t, StatusExtracted, res.Status)
	assert.Equal(t, strings.TrimSpace(prose), res.Text)
	assert.Equal(t, []string{StageStructured}, res.Stages())
}

func TestCascadeGateRejectsShortText(t *testing.T) {
	short := "The cat is in the hat.\nDone."
	c := cascade(
		stage(StageStructured, true, short, nil),
		stage(StageLayout, true, prose, nil),
	)
	res := c.Run(nil)
	assert.Equal(t, StatusExtracted, res.Status)
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, OutcomeRejected, res.Diagnostics[0].Outcome)
	assert.Equal(t, OutcomeSuccess, res.Diagnostics[1].Outcome)
}

func TestCascadeRespectsMinChars(t *testing.T) {
	c := cascade(stage(StageStructured, true, prose, nil))
	c.MinChars = len(prose) + 10
	res := c.Run(nil)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, strings.TrimSpace(prose), res.Text)
}

func TestCascadeRawScanUngated(t *testing.T) {
	c := cascade(
		stage(StageStructured, true, "", errors.New("boom")),
		stage(StageLayout, true, "", ErrStageUnavailable),
		stage(StageRawScan, false, "xx yy zz", nil),
	)
	res := c.Run(nil)
	assert.Equal(t, StatusExtracted, res.Status)
	assert.Equal(t, "xx yy zz", res.Text)
	assert.Equal(t, []string{StageStructured, StageLayout, StageRawScan}, res.Stages())
	assert.Equal(t, OutcomeUnavailable, res.Diagnostics[1].Outcome)
	assert.Equal(t, "layout extraction not available, skipping", res.Diagnostics[1].Message())
}

func TestCascadePartialKeepsLastRejectedText(t *testing.T) {
	c := cascade(
		stage(StageStructured, true, "first weak text", nil),
		stage(StageLayout, true, "second weak text", nil),
		stage(StageRawScan, false, "   ", nil),
	)
	res := c.Run(nil)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, "second weak text", res.Text)
	assert.True(t, strings.HasPrefix(res.String(), "Warning: PDF extraction may be incomplete or unreliable.\n\n"))
}

func TestCascadeExhausted(t *testing.T) {
	c := cascade(
		stage(StageStructured, true, "", errors.New("bad xref")),
		stage(StageLayout, true, "", errors.New("no pages")),
		stage(StageRawScan, false, "", nil),
	)
	res := c.Run(nil)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Empty(t, res.Text)
	msg := res.String()
	assert.Contains(t, msg, "Failed to extract text from PDF.")
	assert.Contains(t, msg, "structured extraction failed: bad xref")
	assert.Contains(t, msg, "layout extraction failed: no pages")
	assert.Contains(t, msg, "raw-scan extraction failed: no readable text found")
}

func TestCascadeEncryptedErrorStops(t *testing.T) {
	c := cascade(
		stage(StageStructured, true, "", ErrEncrypted),
		stage(StageLayout, true, prose, nil),
	)
	res := c.Run(nil)
	assert.Equal(t, StatusEncrypted, res.Status)
	assert.Equal(t, []string{StageStructured}, res.Stages())
}

func TestCascadeRecoversStagePanic(t *testing.T) {
	c := cascade(
		PDFStage{Name: StageStructured, Gated: true, Extract: func([]byte) (string, error) { panic("bad object") }},
		stage(StageLayout, true, prose, nil),
	)
	res := c.Run(nil)
	assert.Equal(t, StatusExtracted, res.Status)
	assert.Contains(t, res.Diagnostics[0].Err.Error(), "panic: bad object")
}

func TestCascadeEncryptedDocument(t *testing.T) {
	data := pdftest.Build([]string{"Secret text"}, pdftest.Options{Encrypted: true})
	res := NewPDFCascade(PDFOptions{Layout: true}).Run(data)
	assert.Equal(t, StatusEncrypted, res.Status)
	assert.Len(t, res.Diagnostics, 1)
	assert.True(t, errors.Is(res.Diagnostics[0].Err, ErrEncrypted))
	assert.Contains(t, res.String(), "encrypted")
}

func TestCascadeInspectEncryptedStopsBeforeStages(t *testing.T) {
	c := cascade(stage(StageStructured, true, prose, nil))
	c.Inspect = func([]byte) (pdfinfo.Info, error) { return pdfinfo.Info{Pages: 2, Encrypted: true}, nil }
	res := c.Run(nil)
	assert.Equal(t, StatusEncrypted, res.Status)
	assert.Equal(t, []string{StageStructured}, res.Stages())
	assert.Empty(t, res.Text)
}

func TestCascadeInspectFailureStillRunsStages(t *testing.T) {
	c := cascade(stage(StageStructured, true, prose, nil))
	c.Inspect = func([]byte) (pdfinfo.Info, error) { return pdfinfo.Info{}, errors.New("bad xref") }
	res := c.Run(nil)
	assert.Equal(t, StatusExtracted, res.Status)
	assert.Zero(t, res.Pages)
}

func TestCascadeGibberishRunsEveryStage(t *testing.T) {
	data := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj <<>> endobj\n\x00\x01\x02\xff\n%%EOF")
	res := NewPDFCascade(PDFOptions{Layout: true}).Run(data)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, []string{StageStructured, StageLayout, StageRawScan}, res.Stages())
	assert.True(t, res.Status.NeedsOCR())
}

func TestCascadeShortPDFFallsThroughToRawScan(t *testing.T) {
	data := pdftest.Build([]string{"Hello World from PDF"}, pdftest.Options{})
	res := NewPDFCascade(PDFOptions{Layout: true}).Run(data)
	assert.Equal(t, StatusExtracted, res.Status)
	assert.Contains(t, res.Text, "Hello World from PDF")
	assert.Equal(t, []string{StageStructured, StageLayout, StageRawScan}, res.Stages())
}

const (
	pageOne = "The quarterly report describes the revenue of the company in detail.\n" +
		"It is written to inform the board and the staff of the results."
	pageTwo = "Costs fell in every region while the number of customers kept growing.\n" +
		"The board expects the same trend to continue through the next year."
)

func TestCascadeStructuredAcceptsRealPDF(t *testing.T) {
	data := pdftest.Build([]string{pageOne, pageTwo}, pdftest.Options{})
	res := NewPDFCascade(PDFOptions{Layout: true}).Run(data)
	require.Equal(t, StatusExtracted, res.Status, res.String())
	assert.Equal(t, []string{StageStructured}, res.Stages())
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, pageOne+"\n\n"+pageTwo, res.Text)
}

func TestCascadeLayoutAcceptsRealPDF(t *testing.T) {
	data := pdftest.Build([]string{pageOne, pageTwo}, pdftest.Options{})
	c := NewPDFCascade(PDFOptions{Layout: true})
	c.Stages[0] = stage(StageStructured, true, "", errors.New("xref damaged"))
	res := c.Run(data)
	require.Equal(t, StatusExtracted, res.Status, res.String())
	assert.Equal(t, []string{StageStructured, StageLayout}, res.Stages())
	assert.Equal(t, pageOne+"\n\n"+pageTwo, res.Text)
}

func TestCascadeToUnicodeFontRecoveredByLayout(t *testing.T) {
	data := pdftest.Build([]string{pageOne}, pdftest.Options{ToUnicode: true})

	structured, err := structuredPages(data, func(int, error) {})
	require.NoError(t, err)
	assert.Contains(t, structured, "The quarterly report")
	assert.NotContains(t, strings.TrimSpace(structured), "\n")

	res := NewPDFCascade(PDFOptions{Layout: true}).Run(data)
	require.Equal(t, StatusExtracted, res.Status, res.String())
	assert.Equal(t, []string{StageStructured, StageLayout}, res.Stages())
	assert.Equal(t, OutcomeRejected, res.Diagnostics[0].Outcome)
	assert.Equal(t, pageOne, res.Text)
}

func TestStructuredSkipsFailingPage(t *testing.T) {
	data := pdftest.Build([]string{pageOne, "unreadable", pageTwo}, pdftest.Options{Broken: 2})

	var skipped []int
	text, err := structuredPages(data, func(page int, err error) { skipped = append(skipped, page) })
	require.NoError(t, err)
	assert.Equal(t, []int{2}, skipped)
	assert.Equal(t, pageOne+"\n\n"+pageTwo, strings.TrimSpace(text))

	res := NewPDFCascade(PDFOptions{Logger: quietLogger()}).Run(data)
	assert.Equal(t, StatusExtracted, res.Status)
	assert.Equal(t, []string{StageStructured}, res.Stages())
}

func TestStructuredFailsWhenEveryPageFails(t *testing.T) {
	data := pdftest.Build([]string{"only page"}, pdftest.Options{Broken: 1})
	_, err := structuredPages(data, func(int, error) {})
	assert.ErrorContains(t, err, "page 1")
}

func TestRawScanText(t *testing.T) {
	data := []byte("\x00\x01stream Readable sentence here, ok.\xff\xfe short \x02")
	text, err := rawScanText(data)
	require.NoError(t, err)
	assert.Equal(t, "stream Readable sentence here, ok.", text)
}
