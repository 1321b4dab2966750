package extract

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/ocr"
)

type OCRAdapter struct {
	e      *ocr.Extractor
	logger *slog.Logger
}

func NewOCRAdapter(e *ocr.Extractor, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRAdapter{e: e, logger: logger}
}

// Extract returns a Document named after the file. A missing extraction tool
// is wrapped in a StageError since no document in the batch could succeed.
func (a *OCRAdapter) Extract(ctx context.Context, path string) (entity.Document, error) {
	name := filepath.Base(path)
	doc := entity.Document{
		Path:    path,
		Name:    name,
		BOLHint: strings.TrimSuffix(name, filepath.Ext(name)),
	}
	r, err := a.e.Extract(ctx, path)
	if err != nil {
		if errors.Is(err, ocr.ErrToolMissing) {
			return doc, &common.StageError{Stage: "extract", Err: err}
		}
		return doc, err
	}
	for _, w := range r.Warnings {
		if strings.TrimSpace(w) != "" {
			a.logger.Debug("extract.warning", "file", name, "warning", w)
		}
	}
	doc.Text, doc.Table, doc.Pages = r.Text, r.Table, r.Pages
	return doc, nil
}
