package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// ReportCache stores report results under versioned keys. Bump moves every
// subsequent Key call to a new version, which orphans all earlier entries.
type ReportCache interface {
	Key(ctx context.Context, parts ...string) (string, error)
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Bump(ctx context.Context) error
}

// NoopReportCache stores nothing. It still versions its keys so that callers
// collapsing concurrent loads by key never join a load started before a Bump.
type NoopReportCache struct {
	version atomic.Int64
}

func NewNoopReportCache() *NoopReportCache {
	return &NoopReportCache{}
}

func (c *NoopReportCache) Key(_ context.Context, parts ...string) (string, error) {
	return fmt.Sprintf("%s:v%d", strings.Join(parts, ":"), c.version.Load()), nil
}

func (c *NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (c *NoopReportCache) Set(_ context.Context, _ string, _ any) error {
	return nil
}

func (c *NoopReportCache) Bump(_ context.Context) error {
	c.version.Add(1)
	return nil
}
