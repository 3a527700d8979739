package app

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsift/chunk"
	"docsift/extract"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loadedViewer(t *testing.T, res extract.Result) viewer {
	t.Helper()
	m := newViewer("report.txt", 2048, chunk.Options{Size: 40, Overlap: 10}, func(context.Context) extract.Result { return res })
	msg := m.runExtraction()()
	updated, _ := m.Update(msg)
	return updated.(viewer)
}

func TestViewerPaging(t *testing.T) {
	text := strings.Repeat("the quick brown fox. ", 10)
	m := loadedViewer(t, extract.Result{
		Name:        "report.txt",
		Status:      extract.StatusExtracted,
		Text:        text,
		Diagnostics: []extract.Attempt{{Stage: extract.StageUTF8, Outcome: extract.OutcomeSuccess}},
	})
	require.False(t, m.loading)
	require.Greater(t, len(m.chunks), 2)
	assert.False(t, m.showDiag)

	next, _ := m.Update(key("n"))
	m = next.(viewer)
	assert.Equal(t, 1, m.current)
	assert.Contains(t, m.View(), "Chunk 2 of")

	prev, _ := m.Update(key("p"))
	m = prev.(viewer)
	assert.Equal(t, 0, m.current)

	prev, _ = m.Update(key("p"))
	assert.Equal(t, 0, prev.(viewer).current)

	end, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnd})
	assert.Equal(t, len(m.chunks)-1, end.(viewer).current)
}

func TestViewerDiagnosticsOnFailure(t *testing.T) {
	m := loadedViewer(t, extract.Result{
		Name:   "scan.pdf",
		Status: extract.StatusExhausted,
		Diagnostics: []extract.Attempt{
			{Stage: extract.StageStructured, Outcome: extract.OutcomeRejected, Text: "@@"},
			{Stage: extract.StageOCR, Outcome: extract.OutcomeUnavailable},
		},
	})
	assert.True(t, m.showDiag)
	assert.Empty(t, m.chunks)

	view := m.View()
	assert.Contains(t, view, "Diagnostics")
	assert.Contains(t, view, "structured extraction produced low-quality text")

	toggled, _ := m.Update(key("d"))
	assert.Contains(t, toggled.(viewer).View(), "No text extracted.")
}

func TestViewerQuit(t *testing.T) {
	m := newViewer("a.txt", 1, chunk.DefaultOptions(), nil)
	updated, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.True(t, updated.(viewer).quitting)
	assert.Equal(t, "Goodbye!\n", updated.(viewer).View())
}
