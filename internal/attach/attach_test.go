package attach

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.Black)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestAttachResizesWideImages(t *testing.T) {
	root := t.TempDir()
	fake := func(_ string, outDir string) error {
		writePNG(t, filepath.Join(outDir, "doc_1_9.png"), 3400, 40)
		writePNG(t, filepath.Join(outDir, "doc_2_11.png"), 800, 40)
		return os.WriteFile(filepath.Join(outDir, "doc_3_12.txt"), []byte("not an image"), 0o600)
	}
	a := NewAttacher(root, quiet(), WithExtractor(fake))

	paths, err := a.Attach(context.Background(), "1LID9", "/inbox/1LID9.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	first, err := imaging.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if first.Bounds().Dx() != defaultMaxWidth {
		t.Fatalf("width = %d", first.Bounds().Dx())
	}
	second, _ := imaging.Open(paths[1])
	if second.Bounds().Dx() != 800 {
		t.Fatalf("narrow image resized to %d", second.Bounds().Dx())
	}
	if _, err := os.Stat(filepath.Join(root, "1LID9", ".raw")); !os.IsNotExist(err) {
		t.Fatal("raw extraction dir left behind")
	}
}

func TestAttachErrors(t *testing.T) {
	boom := errors.New("broken xref")
	a := NewAttacher(t.TempDir(), quiet(), WithExtractor(func(string, string) error { return boom }))
	if _, err := a.Attach(context.Background(), "1LID9", "/inbox/1LID9.pdf"); !errors.Is(err, boom) {
		t.Fatalf("want extractor error, got %v", err)
	}
	if paths, err := a.Attach(context.Background(), "1LID9", "gs://b/1LID9.pdf"); err != nil || paths != nil {
		t.Fatalf("remote doc = %v, %v", paths, err)
	}
}
