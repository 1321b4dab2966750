// Package archive moves a created order's source document out of its inbox.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/order-intake/internal/common"
)

// Backend is an archive destination.
type Backend interface {
	// Archive moves src and returns where it ended up. A missing src is
	// logged and reported as "", nil.
	Archive(ctx context.Context, src string) (string, error)
	Close() error
}

// Open returns the backend cfg selects. localDest is the category's imaging
// folder; for gcs it becomes the last object prefix segment.
func Open(ctx context.Context, cfg common.ArchiveConfig, localDest string, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(localDest, logger), nil
	case "gcs":
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix+"/"+filepath.Base(filepath.Dir(localDest)), logger)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown archive backend %q", cfg.Backend), common.ErrInvalidInput)
	}
}

// Local moves files into a directory on the same host.
type Local struct {
	dest   string
	logger *slog.Logger
}

func NewLocal(dest string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{dest: dest, logger: logger}
}

func (l *Local) Archive(_ context.Context, src string) (string, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		l.logger.Warn("archive.source_missing", "file", src)
		return "", nil
	}
	if err := os.MkdirAll(l.dest, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	dst := filepath.Join(l.dest, filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		// rename fails across devices
		l.logger.Debug("archive.rename_failed", "file", src, "error", err)
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return dst, fmt.Errorf("remove archived source: %w", err)
		}
	}
	l.logger.Info("archive.moved", "from", src, "to", dst)
	return dst, nil
}

func (l *Local) Close() error { return nil }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
