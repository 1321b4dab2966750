package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

type noDocs struct{}

func (noDocs) Extract(context.Context, string) (entity.Document, error) {
	return entity.Document{}, errors.New("no documents expected")
}

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DOCUMENTS_DIR", t.TempDir())
	t.Setenv("OCR_FALLBACK", "")
	cfg := common.LoadConfig()
	cfg.OCR.Fallback = ""
	for _, cat := range constants.AllCategories() {
		if err := os.MkdirAll(cfg.Paths[cat].Inbox, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuildInMemoryRunsEmptyInboxes(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t), quiet(), Options{SQLiteDSN: ":memory:", Extractor: noDocs{}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if err := a.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	reports, err := a.Orchestrator.RunSelection(ctx, "all")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reports) != len(constants.AllCategories()) {
		t.Fatalf("reports = %d", len(reports))
	}
	for _, r := range reports {
		if r.Summary() == "" {
			t.Fatalf("empty summary for %+v", r)
		}
	}
}

func TestBuildRejectsUnknownFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.OCR.Fallback = "crystal-ball"
	if _, err := Build(context.Background(), cfg, quiet(), Options{SQLiteDSN: ":memory:", Extractor: noDocs{}}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want config error, got %v", err)
	}
}

func TestBuildRejectsUnknownArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Backend = "tape"
	if _, err := Build(context.Background(), cfg, quiet(), Options{SQLiteDSN: ":memory:", Extractor: noDocs{}}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want config error, got %v", err)
	}
}
