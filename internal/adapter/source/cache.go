package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
)

// LatestDateFunc reports the newest report date contained in a dataset.
type LatestDateFunc func(data []byte) (time.Time, error)

// Cache keeps a local copy of a dataset and refreshes it when the newest
// report date inside is older than staleAfter.
type Cache struct {
	fetcher    *Fetcher
	staleAfter time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewCache creates a Cache around a Fetcher.
func NewCache(fetcher *Fetcher, staleAfter time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		fetcher:    fetcher,
		staleAfter: staleAfter,
		logger:     logger,
		metrics:    metrics,
	}
}

// Get returns the dataset at location, served from path when the copy there
// is fresh. A refetched dataset overwrites path. If the refetched data is
// still stale the run continues with a warning: upstream publishes late.
// An empty path disables caching.
func (c *Cache) Get(ctx context.Context, location, path string, latest LatestDateFunc) ([]byte, error) {
	if path == "" {
		return c.fetcher.Fetch(ctx, location)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if newest, ok := c.fresh(data, latest); ok {
			c.logger.Info("using cached dataset", "path", path, "latest_report_date", newest.Format(domain.DateLayout))
			c.metrics.FetchRequests.WithLabelValues("cache_hit").Inc()
			return data, nil
		}
		c.logger.Info("cached dataset is stale, refetching", "path", path)
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Info("no cached dataset, fetching", "path", path)
	default:
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}

	data, err = c.fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, data); err != nil {
		return nil, err
	}

	if newest, ok := c.fresh(data, latest); !ok {
		c.metrics.FetchRequests.WithLabelValues("stale").Inc()
		c.logger.Warn("dataset is still stale after refetch",
			"path", path,
			"latest_report_date", newest.Format(domain.DateLayout),
			"stale_after", c.staleAfter,
		)
	}
	return data, nil
}

// fresh reports whether the newest report date is within staleAfter of now.
// Data whose date cannot be determined is treated as stale.
func (c *Cache) fresh(data []byte, latest LatestDateFunc) (time.Time, bool) {
	newest, err := latest(data)
	if err != nil {
		c.logger.Warn("cannot determine dataset date", "error", err)
		return time.Time{}, false
	}
	return newest, domain.Now().Sub(newest) <= c.staleAfter
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	return nil
}
