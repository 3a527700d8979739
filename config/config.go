package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Layout     LayoutConfig     `yaml:"layout"`
	OCR        OCRConfig        `yaml:"ocr"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Batch      BatchConfig      `yaml:"batch"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// ExtractionConfig controls the PDF quality gate.
type ExtractionConfig struct {
	// MinPDFChars is the length a PDF stage result must exceed to be accepted.
	MinPDFChars int `yaml:"min_pdf_chars"`
}

// LayoutConfig controls the layout-based PDF stage.
type LayoutConfig struct {
	Enabled bool `yaml:"enabled"`
	PageCap int  `yaml:"page_cap"`
}

// OCRConfig holds OCR tool locations and tuning.
type OCRConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pdftoppm    string `yaml:"pdftoppm"`
	Tesseract   string `yaml:"tesseract"`
	Lang        string `yaml:"lang"`
	DPI         int    `yaml:"dpi"`
	MaxPages    int    `yaml:"max_pages"`
	TessdataDir string `yaml:"tessdata_dir"`
	PSM         int    `yaml:"psm"`
}

// ChunkConfig controls text chunking.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// BatchConfig controls multi-file extraction.
type BatchConfig struct {
	Workers     int           `yaml:"workers"`
	FileTimeout time.Duration `yaml:"file_timeout"`
}

// ServerConfig holds HTTP shell settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Extraction: ExtractionConfig{MinPDFChars: 100},
		Layout:     LayoutConfig{Enabled: true, PageCap: 200},
		OCR: OCRConfig{
			Enabled:   true,
			Pdftoppm:  "pdftoppm",
			Tesseract: "tesseract",
			Lang:      "eng",
			DPI:       300,
		},
		Chunk: ChunkConfig{Size: 1000, Overlap: 200},
		Batch: BatchConfig{Workers: 2, FileTimeout: 2 * time.Minute},
		Server: ServerConfig{
			Addr:         ":5000",
			MaxBodyBytes: 64 << 20,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, an optional YAML file, then DOCSIFT_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Extraction.MinPDFChars = getEnvAsInt("DOCSIFT_MIN_PDF_CHARS", c.Extraction.MinPDFChars)

	c.Layout.Enabled = getEnvAsBool("DOCSIFT_LAYOUT_ENABLED", c.Layout.Enabled)
	c.Layout.PageCap = getEnvAsInt("DOCSIFT_LAYOUT_PAGE_CAP", c.Layout.PageCap)

	c.OCR.Enabled = getEnvAsBool("DOCSIFT_OCR_ENABLED", c.OCR.Enabled)
	c.OCR.Pdftoppm = getEnv("DOCSIFT_PDFTOPPM", c.OCR.Pdftoppm)
	c.OCR.Tesseract = getEnv("DOCSIFT_TESSERACT", c.OCR.Tesseract)
	c.OCR.Lang = getEnv("DOCSIFT_OCR_LANG", c.OCR.Lang)
	c.OCR.DPI = getEnvAsInt("DOCSIFT_OCR_DPI", c.OCR.DPI)
	c.OCR.MaxPages = getEnvAsInt("DOCSIFT_OCR_MAX_PAGES", c.OCR.MaxPages)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)

	c.Chunk.Size = getEnvAsInt("DOCSIFT_CHUNK_SIZE", c.Chunk.Size)
	c.Chunk.Overlap = getEnvAsInt("DOCSIFT_CHUNK_OVERLAP", c.Chunk.Overlap)

	c.Batch.Workers = getEnvAsInt("DOCSIFT_WORKERS", c.Batch.Workers)
	c.Batch.FileTimeout = getEnvAsDuration("DOCSIFT_FILE_TIMEOUT", c.Batch.FileTimeout)

	c.Server.Addr = getEnv("DOCSIFT_ADDR", c.Server.Addr)
	c.Server.MaxBodyBytes = int64(getEnvAsInt("DOCSIFT_MAX_BODY_BYTES", int(c.Server.MaxBodyBytes)))

	c.Log.Level = getEnv("DOCSIFT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("DOCSIFT_LOG_FORMAT", c.Log.Format)
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.Extraction.MinPDFChars < 0 {
		errs = append(errs, fmt.Errorf("extraction.min_pdf_chars must not be negative, got %d", c.Extraction.MinPDFChars))
	}
	if c.Chunk.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("chunk.overlap must be in [0, size), got %d", c.Chunk.Overlap))
	}
	if c.OCR.DPI <= 0 {
		errs = append(errs, fmt.Errorf("ocr.dpi must be positive, got %d", c.OCR.DPI))
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
