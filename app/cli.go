package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docsift/chunk"
	"docsift/config"
	"docsift/extract"
	"docsift/extract/pdfinfo"
	"docsift/mcptool"
	"docsift/ocr"
	"docsift/server"
)

var version = "0.3"

// env is the state shared by every subcommand once flags are parsed.
type env struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

// Run executes the command line and returns a process exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	e := &env{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "docsift",
		Short:         "Extract clean text from PDF, Word, text and email documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate(successStyle.Render("docsift v{{.Version}}") + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&e.cfgPath, "config", "", "YAML configuration file")
	pf.StringVar(&e.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&e.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newExtractCmd(e),
		newChunkCmd(e),
		newViewCmd(e),
		newServeCmd(e),
		newMCPCmd(e),
		newProbeCmd(e),
	)
	return root
}

func (e *env) setup() error {
	cfg, err := config.Load(e.cfgPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
	}
	if e.logFormat != "" {
		cfg.Log.Format = e.logFormat
	}
	logger, err := newLogger(e.errOut, cfg.Log)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logger
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func (e *env) recognizer() *ocr.Recognizer {
	c := e.cfg.OCR
	return ocr.New(ocr.Config{
		Pdftoppm:    c.Pdftoppm,
		Tesseract:   c.Tesseract,
		Lang:        c.Lang,
		DPI:         c.DPI,
		MaxPages:    c.MaxPages,
		TessdataDir: c.TessdataDir,
		PSM:         c.PSM,
	}, e.logger)
}

func (e *env) processor() *extract.Processor {
	var engine extract.OCR
	if e.cfg.OCR.Enabled {
		engine = e.recognizer()
	}
	return extract.NewProcessor(extract.OptionsFromConfig(*e.cfg, engine, e.logger))
}

func (e *env) chunkOptions() chunk.Options {
	return chunk.Options{Size: e.cfg.Chunk.Size, Overlap: e.cfg.Chunk.Overlap}
}

// --- extract ---

type extractFlags struct {
	json    bool
	chunks  bool
	workers int
	timeout time.Duration
}

type fileReport struct {
	extract.FileResult
	Text    string           `json:"text"`
	Quality *extract.Verdict `json:"quality,omitempty"`
	Chunks  []chunk.Chunk    `json:"chunks,omitempty"`
}

func newExtractCmd(e *env) *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract PATH...",
		Short: "Extract text from files; directories are walked",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runExtract(cmd.Context(), f, args)
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&f.chunks, "chunks", false, "include chunked text")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent heavy extractions (default from config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-file timeout (default from config)")
	return cmd
}

func (e *env) runExtract(ctx context.Context, f extractFlags, paths []string) error {
	files, err := extract.NewFileWalker().FindFiles(ctx, paths...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no supported documents found")
	}

	workers, timeout := e.cfg.Batch.Workers, e.cfg.Batch.FileTimeout
	if f.workers > 0 {
		workers = f.workers
	}
	if f.timeout > 0 {
		timeout = f.timeout
	}
	batch := extract.NewBatch(e.processor(), workers, timeout, e.logger)
	if !f.json && isTerminal(e.errOut) {
		batch.OnProgress = func(processed, total int, path string) {
			fmt.Fprintf(e.errOut, "\r⏳ [%s/%s] %s\033[K", extract.FormatCount(processed), extract.FormatCount(total), path)
		}
	}

	start := time.Now()
	results, err := batch.Run(ctx, files)
	if batch.OnProgress != nil {
		fmt.Fprint(e.errOut, "\r\033[K")
	}
	if err != nil {
		return err
	}

	reports := make([]fileReport, len(results))
	for i, fr := range results {
		reports[i] = fileReport{FileResult: fr, Text: fr.Result.String()}
		if fr.Result.Status.HasContent() {
			v := extract.Assess(fr.Result.Text)
			reports[i].Quality = &v
		}
		if f.chunks && fr.Result.Status.HasContent() {
			chunks, err := chunk.Split(fr.Result.Text, e.chunkOptions())
			if err != nil {
				return err
			}
			reports[i].Chunks = chunks
		}
	}

	if f.json {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	e.printReports(reports, time.Since(start))
	return nil
}

func (e *env) printReports(reports []fileReport, elapsed time.Duration) {
	sep := separatorStyle.Render(createSeparator(e.out))
	extracted := 0
	for _, r := range reports {
		res := r.Result
		fmt.Fprintln(e.out, sep)
		fmt.Fprintf(e.out, "%s %s\n", subHeaderStyle.Render("📄 "+r.Path), infoStyle.Render("("+extract.FormatFileSize(r.Size)+")"))
		fmt.Fprintf(e.out, "%s %s\n", infoStyle.Render("Status:"), statusStyle(res).Render(res.Status.String()))
		if res.Pages > 0 {
			fmt.Fprintln(e.out, infoStyle.Render("Pages: "+extract.FormatCount(res.Pages)))
		}
		if stages := res.Stages(); len(stages) > 0 {
			fmt.Fprintln(e.out, infoStyle.Render("Stages: "+strings.Join(stages, " → ")))
		}
		if res.Status.HasContent() {
			extracted++
			if res.Format == config.FormatPDF && !r.Quality.Meaningful() {
				fmt.Fprintln(e.out, warningStyle.Render("Quality: text did not pass the quality gate"))
			}
		}
		if res.IsEncrypted() && res.Status != extract.StatusExtracted {
			fmt.Fprintln(e.out, warningStyle.Render("🔒 Encrypted: supply an unencrypted copy or enable OCR"))
		}
		fmt.Fprintln(e.out)
		fmt.Fprintln(e.out, r.Text)
		for _, c := range r.Chunks {
			fmt.Fprintln(e.out)
			fmt.Fprintln(e.out, subHeaderStyle.Render(fmt.Sprintf("Chunk %d", c.Index+1))+" "+infoStyle.Render(extract.Excerpt(c.Content, 80)))
		}
	}
	fmt.Fprintln(e.out, sep)
	fmt.Fprintln(e.out, successStyle.Render(fmt.Sprintf("✅ Extracted %s of %s files in %.2fs",
		extract.FormatCount(extracted), extract.FormatCount(len(reports)), elapsed.Seconds())))
}

func statusStyle(res extract.Result) lipgloss.Style {
	switch res.Status {
	case extract.StatusExtracted:
		return successStyle
	case extract.StatusPartial, extract.StatusUnsupported:
		return warningStyle
	default:
		return errorStyle
	}
}

// --- chunk ---

func newChunkCmd(e *env) *cobra.Command {
	var size, overlap int
	cmd := &cobra.Command{
		Use:   "chunk [FILE|-]",
		Short: "Split a document or stdin text into overlapping chunks (JSON)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := e.chunkOptions()
			if cmd.Flags().Changed("size") {
				opts = opts.WithSize(size)
			}
			if cmd.Flags().Changed("overlap") {
				opts.Overlap = overlap
			}

			var text string
			if len(args) == 0 || args[0] == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			} else {
				res, err := e.processFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				text = res.Text
			}

			chunks, err := chunk.Split(text, opts)
			if err != nil {
				return err
			}
			if chunks == nil {
				chunks = []chunk.Chunk{}
			}
			enc := json.NewEncoder(e.out)
			enc.SetIndent("", "  ")
			return enc.Encode(chunks)
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "maximum characters per chunk (default from config)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "characters shared with the previous chunk (default from config)")
	return cmd
}

// processFile extracts one file and fails when it yields no text.
func (e *env) processFile(ctx context.Context, path string) (extract.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Result{}, fmt.Errorf("read file: %w", err)
	}
	res := e.processor().ProcessPayload(ctx, extract.Payload{Name: path, Data: data})
	if !res.Status.HasContent() {
		return res, fmt.Errorf("%s: %s", path, res.String())
	}
	return res, nil
}

// --- view ---

func newViewCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "view FILE",
		Short: "Page through a document's chunks and diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			m := newViewer(args[0], int64(len(data)), e.chunkOptions(), func(ctx context.Context) extract.Result {
				return e.processor().ProcessPayload(ctx, extract.Payload{Name: args[0], Data: data})
			})
			startWall = time.Now()
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
}

// --- serve ---

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /process-document over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := e.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			return server.New(e.processor(), cfg, e.logger).ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// --- mcp ---

func newMCPCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve extraction and chunking tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcptool.NewServer(e.processor(), e.chunkOptions(), version, e.logger)
			return mcptool.Serve(cmd.Context(), srv)
		},
	}
}

// --- probe ---

func newProbeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [DIR...]",
		Short: "Report which optional extraction stages are available and count documents under DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(e.out, subHeaderStyle.Render("docsift v"+version))
			fmt.Fprintln(e.out, infoStyle.Render("Formats: "+config.GetFileTypeDescription()))
			fmt.Fprintln(e.out, capability("Layout", e.cfg.Layout.Enabled, "disabled in config"))
			fmt.Fprintln(e.out, capability("Inspect", pdfinfo.Available, "built without pdfcpu"))

			switch rec := e.recognizer(); {
			case !e.cfg.OCR.Enabled:
				fmt.Fprintln(e.out, capability("OCR", false, "disabled in config"))
			case !rec.Available():
				fmt.Fprintln(e.out, capability("OCR", false, "missing "+strings.Join(rec.Missing(), ", ")))
			default:
				fmt.Fprintln(e.out, capability("OCR", true, ""))
			}

			walker := extract.NewFileWalker()
			for _, dir := range args {
				n, err := walker.CountFiles(dir)
				if err != nil {
					return fmt.Errorf("count %s: %w", dir, err)
				}
				fmt.Fprintln(e.out, infoStyle.Render(fmt.Sprintf("📁 %s: %s documents", dir, extract.FormatCount(int(n)))))
			}
			return nil
		},
	}
}

func capability(name string, ok bool, why string) string {
	if ok {
		return successStyle.Render("✔ " + name + ": available")
	}
	return warningStyle.Render("✘ "+name+": unavailable") + infoStyle.Render(" ("+why+")")
}

// createSeparator creates a separator line that fits the terminal width
func createSeparator(w io.Writer) string {
	width := 80
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}
	return strings.Repeat("━", min(width, 120))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
