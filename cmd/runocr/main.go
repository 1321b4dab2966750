package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/extract"
	"github.com/joseph-ayodele/order-intake/internal/ocr"
)

// runocr extracts one document and prints what the parsers would see,
// including the address fragments the tesseract fallback recovers.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <file.pdf>")
		os.Exit(2)
	}
	path := os.Args[1]
	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ocrx := ocr.NewExtractor(ocr.Config{TessdataDir: cfg.OCR.TessdataDir, DPI: cfg.OCR.DPI}, logger)
	adapter := extract.NewOCRAdapter(ocrx, logger)

	start := time.Now()
	doc, err := adapter.Extract(ctx, path)
	if err != nil {
		logger.Error("text extraction failed", "file", path, "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}
	logger.Info("text extraction OK",
		"file", doc.Name,
		"bol_hint", doc.BOLHint,
		"pages", doc.Pages,
		"bytes", len(doc.Text),
		"rows", len(doc.Table),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	fmt.Println(doc.Text)
	for i, row := range doc.Table {
		fmt.Printf("--- row %d ---\n", i)
		for j, cell := range row {
			fmt.Printf("[%d] %s\n", j, cell)
		}
	}

	frags, err := ocr.NewTesseractFallback(ocrx).Fragments(ctx, doc)
	if err != nil {
		logger.Warn("fallback fragments failed", "error", err)
		return
	}
	for role, f := range frags {
		fmt.Printf("%s: %s (company %q, zip %q)\n", role, f.Line(false), f.Company, f.Zip)
	}
}
