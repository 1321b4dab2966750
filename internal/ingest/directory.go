// Package ingest lists the documents waiting in a category inbox.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStats summarizes one inbox scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
}

// ErrInboxUnreadable means the inbox directory itself could not be listed.
var ErrInboxUnreadable = errors.New("inbox unreadable")

// Scan returns the files directly under root whose extension is in exts
// (default pdf), sorted by name. Hidden files and subdirectories such as the
// imaging and images folders are skipped.
func Scan(ctx context.Context, root string, exts []string, logger *slog.Logger) ([]string, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, fmt.Errorf("%w: empty path", ErrInboxUnreadable)
	}

	allowed := map[string]struct{}{}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			allowed[e] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		allowed["pdf"] = struct{}{}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		logger.Error("ingest.scan.failed", "root", root, "error", err)
		return nil, stats, fmt.Errorf("%w: %s: %v", ErrInboxUnreadable, root, err)
	}

	var out []string
	for _, d := range entries {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}
		stats.Scanned++
		if d.IsDir() || isHidden(d.Name()) || !d.Type().IsRegular() {
			stats.Skipped++
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if _, ok := allowed[ext]; !ok {
			stats.Skipped++
			continue
		}
		stats.Matched++
		out = append(out, filepath.Join(root, d.Name()))
	}
	sort.Strings(out)
	logger.Debug("ingest.scan.ok", "root", root, "scanned", stats.Scanned, "matched", stats.Matched)
	return out, stats, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
