package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/order-intake/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
	TessdataDir   string

	// MinTextChars below which the text layer counts as missing and the
	// document is rasterized and OCRed instead. Default 40.
	MinTextChars int
}

type ExtractionResult struct {
	Text     string
	Table    [][]string
	Pages    int
	Method   string // "pdf-text" | "pdf-ocr"
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg      Config
	runner   Runner
	validate func(path string) (int, error)
	logger   *slog.Logger
}

type Option func(*Extractor)

// WithRunner swaps the command runner, mainly for tests.
func WithRunner(r Runner) Option { return func(e *Extractor) { e.runner = r } }

// WithValidator swaps the structural PDF check. It returns the page count.
func WithValidator(fn func(path string) (int, error)) Option {
	return func(e *Extractor) { e.validate = fn }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 40
	}
	e := &Extractor{cfg: cfg, logger: logger, validate: ValidatePDF}
	e.runner = execRunner{logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract validates a PDF, reads its text layer and derives a best-effort table.
// Scans without a usable text layer are OCRed page by page.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.AllowedExt(ext) {
		e.logger.Error("unsupported document extension", "path", path, "extension", ext)
		return ExtractionResult{}, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	e.logger.Debug("starting document extraction", "path", path)

	pages, err := e.validate(path)
	if err != nil {
		e.logger.Warn("invalid pdf", "path", path, "error", err)
		return ExtractionResult{}, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	text, textPages, warns, err := e.pdfToText(ctx, path)
	if err != nil {
		return ExtractionResult{Warnings: warns}, e.toolError(e.cfg.Pdftotext, err)
	}
	res := ExtractionResult{Text: text, Pages: textPages, Method: "pdf-text", Warnings: warns}
	if pages > 0 {
		res.Pages = pages
	}

	if len(strings.TrimSpace(text)) < e.cfg.MinTextChars {
		e.logger.Info("pdf text layer empty, falling back to ocr", "path", path, "chars", len(strings.TrimSpace(text)))
		ocrText, ocrPages, w, err := e.pdfToOCR(ctx, path)
		res.Warnings = append(res.Warnings, w...)
		if err != nil {
			return res, e.toolError(e.cfg.Pdftoppm, err)
		}
		res.Text, res.Pages, res.Method = ocrText, ocrPages, "pdf-ocr"
	}

	res.Table = LayoutTable(res.Text)
	res.Duration = time.Since(start)
	e.logger.Debug("document extraction ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"rows", len(res.Table),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
