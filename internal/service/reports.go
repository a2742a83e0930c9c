package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"facturapos/backend/internal/cache"
	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

const (
	DefaultFromDate = "1970-01-01"
	DefaultToDate   = "9999-12-31"
	topProductLimit = 10
)

type Reports struct {
	repo   store.Repository
	cache  cache.ReportCache
	group  singleflight.Group
	logger *slog.Logger
}

func NewReports(repo store.Repository, reportCache cache.ReportCache, logger *slog.Logger) *Reports {
	if reportCache == nil {
		reportCache = cache.NewNoopReportCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reports{repo: repo, cache: reportCache, logger: logger}
}

// SalesByDate totals invoices per UTC calendar day in the inclusive range,
// newest day first. Empty bounds fall back to the open defaults.
func (r *Reports) SalesByDate(ctx context.Context, from, to string) ([]domain.DailySales, error) {
	if from == "" {
		from = DefaultFromDate
	}
	if to == "" {
		to = DefaultToDate
	}
	if _, err := time.Parse(time.DateOnly, from); err != nil {
		return nil, fmt.Errorf("%w: desde must be YYYY-MM-DD", store.ErrValidation)
	}
	if _, err := time.Parse(time.DateOnly, to); err != nil {
		return nil, fmt.Errorf("%w: hasta must be YYYY-MM-DD", store.ErrValidation)
	}

	return loadCached(ctx, r, []string{"reports", "sales-by-date", from, to}, func(ctx context.Context) ([]domain.DailySales, error) {
		return r.repo.SalesByDate(ctx, store.DateRange{From: from, To: to})
	})
}

func (r *Reports) TopProducts(ctx context.Context) ([]domain.ProductSales, error) {
	return loadCached(ctx, r, []string{"reports", "top-products", strconv.Itoa(topProductLimit)}, func(ctx context.Context) ([]domain.ProductSales, error) {
		return r.repo.TopProducts(ctx, topProductLimit)
	})
}

// loadCached serves a report from the cache, or loads it once per key no
// matter how many callers ask concurrently. Cache failures degrade to a
// direct load.
func loadCached[T any](ctx context.Context, r *Reports, parts []string, load func(context.Context) ([]T, error)) ([]T, error) {
	key, err := r.cache.Key(ctx, parts...)
	if err != nil {
		r.logger.Warn("report cache unavailable", slog.Any("error", err))
		return nonNil(load(ctx))
	}

	var cached []T
	hit, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if hit {
		return nonNil(cached, nil)
	}

	// The shared load outlives any single caller; joined callers must not
	// inherit the first caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		rows, err := nonNil(load(loadCtx))
		if err != nil {
			return nil, err
		}
		if err := r.cache.Set(loadCtx, key, rows); err != nil {
			r.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

func nonNil[T any](rows []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}
