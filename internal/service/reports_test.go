package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturapos/backend/internal/cache"
	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
	"facturapos/backend/internal/store/memory"
)

// countingRepo counts report queries reaching the store.
type countingRepo struct {
	store.Repository
	salesCalls atomic.Int32
	topCalls   atomic.Int32
	gate       chan struct{}
}

func (r *countingRepo) SalesByDate(ctx context.Context, dates store.DateRange) ([]domain.DailySales, error) {
	r.salesCalls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Repository.SalesByDate(ctx, dates)
}

func (r *countingRepo) TopProducts(ctx context.Context, limit int) ([]domain.ProductSales, error) {
	r.topCalls.Add(1)
	return r.Repository.TopProducts(ctx, limit)
}

func newRedisCache(t *testing.T) *cache.RedisReportCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewRedisReportCache(mr.Addr(), "", 0, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSalesByDateEmpty(t *testing.T) {
	svc := NewReports(memory.NewSeeded(), nil, discardLogger())

	rows, err := svc.SalesByDate(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSalesByDateRejectsMalformedDates(t *testing.T) {
	svc := NewReports(memory.NewSeeded(), nil, discardLogger())
	ctx := context.Background()

	_, err := svc.SalesByDate(ctx, "2024/01/01", "")
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.SalesByDate(ctx, "", "2024-13-01")
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestReportsReflectSales(t *testing.T) {
	repo := memory.NewSeeded()
	reportCache := newRedisCache(t)
	sales := NewSales(repo, reportCache, fixedNumbers(1111, 2222, 3333), 5, discardLogger())
	reports := NewReports(repo, reportCache, discardLogger())
	ctx := context.Background()

	top, err := reports.TopProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = sales.CreateInvoice(ctx, domain.CreateInvoiceRequest{
		Items: []domain.InvoiceItem{
			{ProductID: 1, Quantity: 2, UnitPrice: dec("5")},
			{ProductID: 2, Quantity: 5, UnitPrice: dec("2")},
		},
	})
	require.NoError(t, err)

	top, err = reports.TopProducts(ctx)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, domain.ProductSales{ProductID: 2, Name: "Azúcar 1kg", TotalSold: 5}, top[0])
	assert.Equal(t, int64(2), top[1].TotalSold)

	daily, err := reports.SalesByDate(ctx, "2024-05-17", "2024-05-17")
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.True(t, dec("20").Equal(daily[0].Total))

	daily, err = reports.SalesByDate(ctx, "2024-05-18", "")
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestReportsServedFromCacheUntilBump(t *testing.T) {
	repo := &countingRepo{Repository: memory.NewSeeded()}
	reportCache := newRedisCache(t)
	reports := NewReports(repo, reportCache, discardLogger())
	catalog := NewCatalog(repo, reportCache, discardLogger())
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		_, err := reports.TopProducts(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), repo.topCalls.Load())

	require.NoError(t, catalog.DeleteProduct(ctx, 3))
	_, err := reports.TopProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.topCalls.Load())
}

func TestConcurrentReportLoadsCollapse(t *testing.T) {
	repo := &countingRepo{Repository: memory.NewSeeded(), gate: make(chan struct{})}
	reports := NewReports(repo, nil, discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reports.SalesByDate(ctx, "", "")
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return repo.salesCalls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.salesCalls.Load())
}

func TestCancelledCallerDoesNotFailJoinedLoad(t *testing.T) {
	repo := &countingRepo{Repository: memory.NewSeeded(), gate: make(chan struct{})}
	reports := NewReports(repo, nil, discardLogger())

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := reports.SalesByDate(firstCtx, "", "")
		first <- err
	}()
	require.Eventually(t, func() bool { return repo.salesCalls.Load() >= 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := reports.SalesByDate(context.Background(), "", "")
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(repo.gate)

	require.NoError(t, <-second)
	<-first
	assert.Equal(t, int32(1), repo.salesCalls.Load())
}
