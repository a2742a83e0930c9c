package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate())
	require.NoError(t, s.Migrate(), "second migrate must be a no-op")
	require.NoError(t, s.Seed(ctx))
	return s
}

func TestCreateInvoiceDecrementsStockAtomically(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID, err := s.CreateProduct(ctx, domain.Product{
		Code:  fmt.Sprintf("IT-%d", stamp),
		Name:  "Producto IT",
		Price: decimal.RequireFromString("2.50"),
		Stock: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE number LIKE $1`, fmt.Sprintf("IT%d-%%", stamp))
		_ = s.DeleteProduct(ctx, productID)
	})

	inv, err := s.CreateInvoice(ctx, domain.Invoice{
		Number: fmt.Sprintf("IT%d-1", stamp),
		Lines:  []domain.InvoiceLine{{ProductID: &productID, Quantity: 2, UnitPrice: decimal.RequireFromString("2.50")}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(inv.Total))

	_, err = s.CreateInvoice(ctx, domain.Invoice{
		Number: fmt.Sprintf("IT%d-2", stamp),
		Lines: []domain.InvoiceLine{
			{ProductID: &productID, Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
			{ProductID: &productID, Quantity: 3, UnitPrice: decimal.NewFromInt(1)},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	product, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	_, err = s.CreateInvoice(ctx, domain.Invoice{
		Number: fmt.Sprintf("IT%d-1", stamp),
		Lines:  []domain.InvoiceLine{{ProductID: &productID, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, store.ErrDuplicateNumber)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.NotNil(t, got.Lines[0].ProductName)
	assert.Equal(t, "Producto IT", *got.Lines[0].ProductName)
}

func TestConcurrentInvoicesNeverOversell(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID, err := s.CreateProduct(ctx, domain.Product{
		Code:  fmt.Sprintf("IT-RACE-%d", stamp),
		Name:  "Producto carrera",
		Price: decimal.NewFromInt(1),
		Stock: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE number LIKE $1`, fmt.Sprintf("RC%d-%%", stamp))
		_ = s.DeleteProduct(ctx, productID)
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateInvoice(ctx, domain.Invoice{
				Number: fmt.Sprintf("RC%d-%d", stamp, i),
				Lines:  []domain.InvoiceLine{{ProductID: &productID, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	product, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, product.Stock, 0)
	assert.Equal(t, 5-succeeded, product.Stock)
}

func TestSubCentPricesStoredExactly(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID, err := s.CreateProduct(ctx, domain.Product{
		Code:  fmt.Sprintf("IT-CENT-%d", stamp),
		Name:  "Tornillo",
		Price: decimal.RequireFromString("0.125"),
		Stock: 10,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE number LIKE $1`, fmt.Sprintf("SC%d-%%", stamp))
		_ = s.DeleteProduct(ctx, productID)
	})

	inv, err := s.CreateInvoice(ctx, domain.Invoice{
		Number: fmt.Sprintf("SC%d-1", stamp),
		Lines:  []domain.InvoiceLine{{ProductID: &productID, Quantity: 3, UnitPrice: decimal.RequireFromString("1.005")}},
	})
	require.NoError(t, err)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.015").Equal(got.Total), got.Total.String())
	require.Len(t, got.Lines, 1)
	assert.True(t, decimal.RequireFromString("1.005").Equal(got.Lines[0].UnitPrice))

	product, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.125").Equal(product.Price))
}
