// Package attach renders a BOL document's embedded page images into the
// category images folder, one directory per BOL.
package attach

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const defaultMaxWidth = 1700

// Attacher writes images/<bol>/<n>.jpg for a document.
type Attacher struct {
	root     string
	maxWidth int
	extract  func(inFile, outDir string) error
	logger   *slog.Logger
}

type Option func(*Attacher)

// WithMaxWidth caps the saved image width; narrower images are kept as is.
func WithMaxWidth(w int) Option {
	return func(a *Attacher) {
		if w > 0 {
			a.maxWidth = w
		}
	}
}

// WithExtractor replaces the pdfcpu image extraction.
func WithExtractor(fn func(inFile, outDir string) error) Option {
	return func(a *Attacher) { a.extract = fn }
}

func NewAttacher(root string, logger *slog.Logger, opts ...Option) *Attacher {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Attacher{root: root, maxWidth: defaultMaxWidth, extract: extractImages, logger: logger}
	for _, o := range opts {
		o(a)
	}
	return a
}

func extractImages(inFile, outDir string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.ExtractImagesFile(inFile, outDir, nil, conf)
}

// Attach returns the written image paths. Documents that are not on the
// local filesystem are skipped.
func (a *Attacher) Attach(ctx context.Context, bol, docPath string) ([]string, error) {
	if strings.HasPrefix(docPath, "gs://") {
		a.logger.Info("attach.skip.remote", "bol", bol, "doc", docPath)
		return nil, nil
	}
	if bol == "" {
		return nil, fmt.Errorf("attach: empty bol")
	}
	dir := filepath.Join(a.root, bol)
	raw := filepath.Join(dir, ".raw")
	if err := os.MkdirAll(raw, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	defer os.RemoveAll(raw)

	if err := a.extract(docPath, raw); err != nil {
		a.logger.Error("attach.extract.failed", "bol", bol, "doc", docPath, "error", err)
		return nil, fmt.Errorf("extract images from %s: %w", docPath, err)
	}

	entries, err := os.ReadDir(raw)
	if err != nil {
		return nil, fmt.Errorf("read extracted images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []string
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		img, err := imaging.Open(filepath.Join(raw, name))
		if err != nil {
			a.logger.Warn("attach.decode.skipped", "bol", bol, "image", name, "error", err)
			continue
		}
		if img.Bounds().Dx() > a.maxWidth {
			img = imaging.Resize(img, a.maxWidth, 0, imaging.Lanczos)
		}
		dst := filepath.Join(dir, fmt.Sprintf("%d.jpg", i+1))
		if err := imaging.Save(img, dst, imaging.JPEGQuality(85)); err != nil {
			return out, fmt.Errorf("save %s: %w", dst, err)
		}
		out = append(out, dst)
	}
	a.logger.Info("attach.done", "bol", bol, "images", len(out))
	return out, nil
}
