// Package httpjson sends JSON requests to the remote APIs the pipeline calls.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/order-intake/internal/common"
)

const defaultTimeout = 30 * time.Second

// Request is one call. A nil Body sends no payload; an empty Username skips basic auth.
type Request struct {
	Method   string
	URL      string
	Body     any
	Headers  map[string]string
	Username string
	Password string
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string { return fmt.Sprintf("non-2xx status: %d", e.Status) }

// Do sends r and returns the raw response body with its status. Transport
// failures come back as the client error; non-2xx replies as *StatusError
// together with the body.
func Do(ctx context.Context, client *http.Client, r Request, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if r.Method == "" {
		r.Method = http.MethodPost
	}

	reqID := uuid.New().String()
	log := logger.With("req_id", reqID)
	if runID := common.RunIDFromContext(ctx); runID != "" {
		log = log.With("run_id", runID)
	}
	if id := common.RequestIDFromContext(ctx); id != "" {
		log = log.With("request_id", id)
	}
	start := time.Now()

	var rdr io.Reader
	length := 0
	if r.Body != nil {
		bs, err := json.Marshal(r.Body)
		if err != nil {
			log.Error("http.encode_error", "error", err)
			return nil, 0, fmt.Errorf("encode json: %w", err)
		}
		rdr, length = bytes.NewReader(bs), len(bs)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, rdr)
	if err != nil {
		log.Error("http.build_request_error", "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Username != "" {
		req.SetBasicAuth(r.Username, r.Password)
	}

	log.Info("http.request", "method", r.Method, "url", r.URL, "content_length", length)

	resp, err := client.Do(req)
	if err != nil {
		log.Error("http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Warn("http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	log.Info("http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp.StatusCode, nil
}
