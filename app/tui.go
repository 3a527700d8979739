package app

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sys/unix"

	"docsift/chunk"
	"docsift/extract"
)

var startWall time.Time

// Styles (shared with CLI output)
var (
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7aa2f7"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7aa2f7"))

	subHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7dcfff")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a9b1d6"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ece6a")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0af68")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f7768e")).
			Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89"))
)

// viewer pages through one document's chunks, with its stage diagnostics
// available on a second pane.
type viewer struct {
	path      string
	size      int64
	chunkOpts chunk.Options
	process   func(context.Context) extract.Result

	// Extraction output
	result   extract.Result
	chunks   []chunk.Chunk
	chunkErr error
	elapsed  time.Duration

	current       int
	contentScroll int
	showDiag      bool

	loading  bool
	quitting bool

	width  int
	height int

	memUsageText string
}

func newViewer(path string, size int64, opts chunk.Options, process func(context.Context) extract.Result) viewer {
	return viewer{
		path:      path,
		size:      size,
		chunkOpts: opts,
		process:   process,
		loading:   true,
	}
}

func (m viewer) Init() tea.Cmd {
	return tea.Batch(m.runExtraction(), m.memUsageTick())
}

func (m viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			switch msg.String() {
			case "q", "ctrl+c":
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "n", "right", "l", "enter", " ":
			if m.current < len(m.chunks)-1 {
				m.current++
			}
			m.contentScroll = 0
		case "p", "left", "h":
			if m.current > 0 {
				m.current--
			}
			m.contentScroll = 0
		case "home", "g":
			m.current = 0
			m.contentScroll = 0
		case "end", "G":
			m.current = max(len(m.chunks)-1, 0)
			m.contentScroll = 0
		case "d", "tab":
			m.showDiag = !m.showDiag
			m.contentScroll = 0
		case "up", "k":
			m.contentScroll = max(m.contentScroll-1, 0)
		case "down", "j":
			m.contentScroll++
		case "pgup":
			m.contentScroll = max(m.contentScroll-5, 0)
		case "pgdown":
			m.contentScroll += 5
		}
		return m, nil

	case extractedMsg:
		m.result = msg.result
		m.chunks = msg.chunks
		m.chunkErr = msg.err
		m.elapsed = msg.elapsed
		m.current = 0
		m.loading = false
		if !m.result.Status.HasContent() {
			m.showDiag = true
		}
		return m, nil

	case memUsageMsg:
		m.memUsageText = msg.Text
		return m, m.memUsageTick()
	}
	return m, nil
}

func (m viewer) View() string {
	width := m.width
	height := m.height
	if width <= 0 {
		width = 120
	}
	if height <= 0 {
		height = 30
	}

	if m.quitting {
		return "Goodbye!\n"
	}

	var headerLines []string
	headerLines = append(headerLines, "")
	headerLines = append(headerLines, titleStyle.Render("docsift v"+version))
	headerLines = append(headerLines, "")
	headerLines = append(headerLines, subHeaderStyle.Render(wrapTextWithIndent("📄 File: ", m.path, width-4)))

	if m.loading {
		headerLines = append(headerLines, infoStyle.Render(fmt.Sprintf("⏳ Extracting • %.1fs%s", time.Since(startWall).Seconds(), m.memUsageText)))
	} else {
		res := m.result
		status := statusStyle(res).Render(res.Status.String())
		headerLines = append(headerLines, infoStyle.Render(fmt.Sprintf("📦 %s • %s • ", extract.FormatFileSize(m.size), res.Format))+status)
		stages := lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7"))
		headerLines = append(headerLines, stages.Render(fmt.Sprintf("⚙️ Stages: %s • %.2fs%s", strings.Join(res.Stages(), " → "), m.elapsed.Seconds(), m.memUsageText)))
	}

	header := strings.Join(headerLines, "\n")
	headerHeight := strings.Count(header, "\n") + 1
	statusHeight := 1
	footerHeight := 1

	boxOuterWidth := width - 4
	chromeHeight := 4
	contentHeight := height - headerHeight - statusHeight - footerHeight - chromeHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	innerWidth := max(boxOuterWidth-6, 10)
	var boxContent string
	switch {
	case m.loading:
		boxContent = "Extracting..."
	case m.showDiag:
		boxContent = m.diagnosticsView(innerWidth)
	case m.chunkErr != nil:
		boxContent = errorStyle.Render("Chunking failed: " + m.chunkErr.Error())
	case len(m.chunks) == 0:
		boxContent = "No text extracted."
	default:
		boxContent = lipgloss.NewStyle().Width(innerWidth).Render(m.chunks[m.current].Content)
	}

	lines := strings.Split(boxContent, "\n")
	maxStart := max(len(lines)-contentHeight, 0)
	start := min(m.contentScroll, maxStart)
	end := min(start+contentHeight, len(lines))
	window := strings.Join(lines[start:end], "\n")

	parts := []string{header, appStyle.Width(boxOuterWidth).Height(contentHeight).Render(window)}

	var status string
	if !m.loading {
		if m.showDiag {
			status = infoStyle.Render(fmt.Sprintf("Diagnostics • %d attempts", len(m.result.Diagnostics)))
		} else if len(m.chunks) > 0 {
			c := m.chunks[m.current]
			status = infoStyle.Render(fmt.Sprintf("Chunk %d of %d • %d chars • overlap %d",
				c.Index+1, len(m.chunks), runeLen(c.Content), c.OverlapPrev))
		}
	}
	parts = append(parts, status)

	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render("🔚 n: next • p: previous • j/k: scroll • d: diagnostics • q: quit")
	parts = append(parts, footer)

	return strings.Join(parts, "\n")
}

func (m viewer) diagnosticsView(width int) string {
	var b strings.Builder
	b.WriteString(subHeaderStyle.Render("Result") + "\n")
	b.WriteString(wrapTextWithIndent("", m.result.String(), width) + "\n\n")
	b.WriteString(subHeaderStyle.Render("Attempts") + "\n")
	for i, a := range m.result.Diagnostics {
		style := infoStyle
		switch a.Outcome {
		case extract.OutcomeSuccess:
			style = successStyle
		case extract.OutcomeFailed:
			style = errorStyle
		case extract.OutcomeRejected, extract.OutcomeUnavailable:
			style = warningStyle
		}
		label := fmt.Sprintf("%d. [%s] ", i+1, a.Outcome)
		b.WriteString(style.Render(wrapTextWithIndent(label, a.Message(), width)) + "\n")
	}
	if m.result.Status.HasContent() {
		v := extract.Assess(m.result.Text)
		b.WriteString("\n" + subHeaderStyle.Render("Quality") + "\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("meaningful %t • printable %.0f%% • unusual %.1f%%",
			v.Meaningful(), v.PrintableRatio*100, v.UnusualRatio*100)))
	}
	return b.String()
}

// runExtraction processes the document in the background and chunks its text.
func (m viewer) runExtraction() tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		res := m.process(context.Background())
		msg := extractedMsg{result: res, elapsed: time.Since(start)}
		if res.Status.HasContent() {
			msg.chunks, msg.err = chunk.Split(res.Text, m.chunkOpts)
		}
		return msg
	}
}

func wrapTextWithIndent(prefix, text string, width int) string {
	prefixWidth := lipgloss.Width(prefix)
	indent := strings.Repeat(" ", prefixWidth)
	wrapped := lipgloss.NewStyle().Width(max(width-prefixWidth, 1)).Render(text)
	return prefix + strings.ReplaceAll(wrapped, "\n", "\n"+indent)
}

func runeLen(s string) int {
	return len([]rune(s))
}

func (m viewer) memUsageTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		mem, cpu := sampleMemoryAndCPU()
		return memUsageMsg{Text: fmt.Sprintf(" • Heap %5.1f MB • RSS %5.1f MB • CPU %5.1f%%", float64(mem.heap)/(1024*1024), float64(mem.rss)/(1024*1024), cpu)}
	})
}

var lastCPUWall time.Time
var lastCPUProc time.Duration
var haveCPUSample bool

func sampleMemoryAndCPU() (mem struct{ heap, rss uint64 }, cpu float64) {
	var rusage unix.Rusage
	_ = unix.Getrusage(unix.RUSAGE_SELF, &rusage)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mem.heap = ms.HeapAlloc
	mem.rss = uint64(rusage.Maxrss * 1024) // KB to bytes

	// process user+sys time from rusage
	nowWall := time.Now()
	user := time.Duration(rusage.Utime.Sec)*time.Second + time.Duration(rusage.Utime.Usec)*time.Microsecond
	sys := time.Duration(rusage.Stime.Sec)*time.Second + time.Duration(rusage.Stime.Usec)*time.Microsecond
	nowProc := user + sys
	if haveCPUSample {
		wallDiff := nowWall.Sub(lastCPUWall)
		procDiff := nowProc - lastCPUProc
		if wallDiff > 0 {
			cpu = max(procDiff.Seconds()/wallDiff.Seconds()*100, 0)
		}
	}
	lastCPUWall = nowWall
	lastCPUProc = nowProc
	haveCPUSample = true
	return
}

type extractedMsg struct {
	result  extract.Result
	chunks  []chunk.Chunk
	err     error
	elapsed time.Duration
}

type memUsageMsg struct {
	Text string
}
