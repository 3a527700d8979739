package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes one png per entry in pages when pdftoppm is called and
// answers tesseract with the text registered for the image's page suffix.
type fakeRunner struct {
	pages    []string // page file suffixes, e.g. "1", "02"
	text     map[string]string
	failTess bool
	failPPM  bool
	calls    []Command
}

func (f *fakeRunner) Run(ctx context.Context, c Command) ([]byte, []byte, error) {
	f.calls = append(f.calls, c)
	args := c.Args
	switch c.Step {
	case stepRender:
		if f.failPPM {
			return nil, []byte("Syntax Error: Couldn't read xref table"), errors.New("exit status 1")
		}
		prefix := args[len(args)-1]
		for _, p := range f.pages {
			if err := os.WriteFile(fmt.Sprintf("%s-%s.png", prefix, p), []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case stepRecognize:
		if f.failTess {
			return nil, []byte("Error opening data file"), errors.New("exit status 1")
		}
		img := filepath.Base(args[0])
		suffix := strings.TrimSuffix(strings.TrimPrefix(img, "page-"), ".png")
		return []byte(f.text[suffix]), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected step %s", c.Step)
}

func found(string) (string, error) { return "/usr/bin/x", nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAvailability(t *testing.T) {
	r := New(Config{}, quiet(), WithLookPath(func(file string) (string, error) {
		if file == "tesseract" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + file, nil
	}))
	assert.False(t, r.Available())
	assert.Equal(t, []string{"tesseract"}, r.Missing())

	_, err := r.RecognizeText(context.Background(), []byte("%PDF"))
	assert.ErrorIs(t, err, ErrUnavailable)

	r = New(Config{}, quiet(), WithLookPath(found))
	assert.True(t, r.Available())
	assert.Empty(t, r.Missing())
}

func TestRecognizeTextPageOrder(t *testing.T) {
	fr := &fakeRunner{
		pages: []string{"1", "2", "10"},
		text:  map[string]string{"1": "first page\n", "2": "second page\n", "10": "tenth page\n"},
	}
	r := New(Config{}, quiet(), WithRunner(fr), WithLookPath(found))
	text, err := r.RecognizeText(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t,
		"--- Page 1 ---\n\nfirst page\n\n\n--- Page 2 ---\n\nsecond page\n\n\n--- Page 3 ---\n\ntenth page",
		text)
	require.Len(t, fr.calls, 4)
	assert.Equal(t, "pdftoppm", fr.calls[0].Path)
	assert.Equal(t, []string{"-r", "300", "-png"}, fr.calls[0].Args[:3])
	assert.Equal(t, "tesseract", fr.calls[1].Path)
	assert.Equal(t, []string{"stdout", "-l", "eng"}, fr.calls[1].Args[1:])
	for i, c := range fr.calls[1:] {
		assert.Equal(t, i+1, c.Page)
	}
}

func TestRecognizeTextOptions(t *testing.T) {
	fr := &fakeRunner{pages: []string{"01", "02", "03"}, text: map[string]string{"01": "a", "02": "b", "03": "c"}}
	r := New(Config{DPI: 150, MaxPages: 2, Lang: "deu", TessdataDir: "/td", PSM: 6}, quiet(), WithRunner(fr), WithLookPath(found))
	text, err := r.RecognizeText(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\n\na\n\n--- Page 2 ---\n\nb", text)
	assert.Equal(t, []string{"-r", "150", "-png", "-l", "2"}, fr.calls[0].Args[:5])
	assert.Equal(t, []string{"stdout", "-l", "deu", "--tessdata-dir", "/td", "--psm", "6"}, fr.calls[1].Args[1:])
	assert.Len(t, fr.calls, 3)
}

func TestRecognizeTextFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   string
	}{
		{"pdftoppm fails", &fakeRunner{failPPM: true}, "pdftoppm: exit status 1: Syntax Error"},
		{"no images", &fakeRunner{}, "pdftoppm produced no images"},
		{"tesseract fails", &fakeRunner{pages: []string{"1"}, failTess: true}, "page 1: tesseract: exit status 1"},
		{"blank pages", &fakeRunner{pages: []string{"1", "2"}, text: map[string]string{"1": " \n", "2": "\f"}}, "no text recognized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{}, quiet(), WithRunner(tt.runner), WithLookPath(found))
			_, err := r.RecognizeText(context.Background(), []byte("%PDF"))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestExecRunnerLogsStepAndPage(t *testing.T) {
	var buf bytes.Buffer
	r := execRunner{logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	out, errb, err := r.Run(context.Background(), Command{Step: stepRecognize, Page: 2, Path: "/bin/sh", Args: []string{"-c", "echo words; echo oops >&2; exit 3"}})
	require.Error(t, err)
	assert.Equal(t, "words\n", string(out))
	assert.Equal(t, "oops\n", string(errb))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ocr step failed", entry["msg"])
	assert.Equal(t, "recognize", entry["step"])
	assert.Equal(t, "sh", entry["tool"])
	assert.EqualValues(t, 2, entry["page"])
	assert.Equal(t, "oops\n", entry["stderr"])

	buf.Reset()
	_, _, err = r.Run(context.Background(), Command{Step: stepRender, Path: "/bin/sh", Args: []string{"-c", "true"}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ocr step done", entry["msg"])
	assert.NotContains(t, buf.String(), `"page"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...(truncated)", truncate("abcdef", 2))
}
