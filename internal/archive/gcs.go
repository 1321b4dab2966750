package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCS uploads files to a bucket and removes the local copy.
type GCS struct {
	client    *storage.Client
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object string) io.WriteCloser
	logger    *slog.Logger
}

// NewGCS uses application default credentials unless GCS_CREDENTIALS_JSON is set.
func NewGCS(ctx context.Context, bucket, prefix string, logger *slog.Logger, opts ...option.ClientOption) (*GCS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		return nil, errors.New("gcs archive: bucket is required")
	}
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	bh := client.Bucket(bucket)
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		newWriter: func(ctx context.Context, object string) io.WriteCloser {
			return bh.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		},
		logger: logger,
	}, nil
}

func (g *GCS) objectName(src string) string {
	return path.Join(g.prefix, filepath.Base(src))
}

// Archive writes src only if the object does not exist yet. An existing
// object counts as archived.
func (g *GCS) Archive(ctx context.Context, src string) (string, error) {
	f, err := os.Open(src)
	if os.IsNotExist(err) {
		g.logger.Warn("archive.source_missing", "file", src)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	object := g.objectName(src)
	uri := "gs://" + g.bucket + "/" + object
	w := g.newWriter(ctx, object)
	_, err = io.Copy(w, f)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != 412 {
			g.logger.Error("archive.gcs.write_failed", "object", uri, "error", err)
			return "", fmt.Errorf("write %s: %w", uri, err)
		}
		g.logger.Info("archive.gcs.exists", "object", uri)
	}

	_ = f.Close()
	if err := os.Remove(src); err != nil {
		return uri, fmt.Errorf("remove archived source: %w", err)
	}
	g.logger.Info("archive.uploaded", "from", src, "to", uri)
	return uri, nil
}

func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
