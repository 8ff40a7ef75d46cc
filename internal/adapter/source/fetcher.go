package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/covid-risk-etl/internal/observability"
)

// maxBodyBytes bounds a single download. The full VDH history is ~10MB.
const maxBodyBytes = 512 << 20

// Fetcher downloads datasets over HTTP(S) or reads them from local paths.
// Remote fetches get one retry after retryDelay.
type Fetcher struct {
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewFetcher creates a Fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: 2 * time.Second,
		logger:     logger,
		metrics:    metrics,
	}
}

// Fetch returns the content at location: an http(s) URL, a file:// URL or a
// plain filesystem path.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !isRemote(location) {
		data, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
		if err != nil {
			f.metrics.FetchRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("read %s: %w", location, err)
		}
		f.metrics.FetchRequests.WithLabelValues("success").Inc()
		return data, nil
	}

	data, err := f.get(ctx, location)
	if err == nil {
		f.metrics.FetchRequests.WithLabelValues("success").Inc()
		return data, nil
	}
	if ctx.Err() != nil {
		f.metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	f.logger.Warn("fetch failed, retrying once", "url", redact(location), "error", err, "delay", f.retryDelay)
	f.metrics.FetchRequests.WithLabelValues("retry").Inc()
	if !sleepWithContext(ctx, f.retryDelay) {
		f.metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, ctx.Err()
	}

	data, err = f.get(ctx, location)
	if err != nil {
		f.metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	f.metrics.FetchRequests.WithLabelValues("success").Inc()
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, location string) ([]byte, error) {
	start := time.Now()
	defer func() { f.metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redact(location), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: redact(location), StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", redact(location), err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", redact(location), maxBodyBytes)
	}
	f.logger.Debug("fetched dataset", "url", redact(location), "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the dataset host.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// redact drops the query string, which may carry app tokens.
func redact(location string) string {
	if i := strings.IndexByte(location, '?'); i >= 0 {
		return location[:i]
	}
	return location
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
