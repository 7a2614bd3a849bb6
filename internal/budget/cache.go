package budget

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/hrdash/hrdash/internal/platform/cache"
)

// SummaryCache stores summary reports per division. Concurrent misses for the
// same key share one build.
type SummaryCache struct {
	store  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
}

// NewSummaryCache wraps a versioned store.
func NewSummaryCache(store *cache.Versioned, logger *slog.Logger) *SummaryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryCache{store: store, logger: logger}
}

// Fetch returns the cached report or builds it. Cache failures degrade to a
// direct build.
func (c *SummaryCache) Fetch(ctx context.Context, div Division, build func(context.Context) (SummaryReport, error)) (SummaryReport, error) {
	if c == nil {
		return build(ctx)
	}
	key, err := c.store.BuildKey(ctx, div.Slug, "summary")
	if err != nil {
		c.logger.Warn("summary cache key", slog.String("division", div.Slug), slog.Any("error", err))
		return build(ctx)
	}

	resultChan := c.group.DoChan(key, func() (any, error) {
		var (
			report   SummaryReport
			buildErr error
		)
		err := c.store.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			built, err := build(ctx)
			buildErr = err
			return built, err
		})
		if err != nil && buildErr == nil {
			c.logger.Warn("summary cache fetch", slog.String("division", div.Slug), slog.Any("error", err))
			return build(ctx)
		}
		return report, err
	})
	select {
	case <-ctx.Done():
		return SummaryReport{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return SummaryReport{}, res.Err
		}
		return res.Val.(SummaryReport), nil
	}
}

// Invalidate orphans every cached report of the division.
func (c *SummaryCache) Invalidate(ctx context.Context, div Division) error {
	if c == nil {
		return nil
	}
	return c.store.Bump(ctx, div.Slug)
}
