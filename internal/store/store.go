package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"facturapos/backend/internal/domain"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateNumber and ErrConflict are retryable: the caller may try
	// again with a fresh invoice number.
	ErrDuplicateNumber = errors.New("invoice number already used")
	ErrConflict        = errors.New("concurrent update conflict")
)

// DateRange bounds are inclusive calendar dates formatted as YYYY-MM-DD.
type DateRange struct {
	From string
	To   string
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (int64, error)
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (int64, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) error
	DeleteCustomer(ctx context.Context, id int64) error

	// CreateInvoice persists the header, its lines and the stock decrements
	// as one unit. Lines are processed in order; the first missing product or
	// short stock aborts the whole invoice.
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	ListInvoices(ctx context.Context) ([]domain.Invoice, error)

	SalesByDate(ctx context.Context, dates DateRange) ([]domain.DailySales, error)
	TopProducts(ctx context.Context, limit int) ([]domain.ProductSales, error)

	Close() error
}

// SeedProducts and SeedCustomers are inserted on first start when the
// corresponding table is empty.
var SeedProducts = []domain.Product{
	{Code: "P001", Name: "Café Molido 250g", Description: "Café de origen", Price: decimal.NewFromInt(5), Stock: 100},
	{Code: "P002", Name: "Azúcar 1kg", Description: "Azúcar blanca", Price: decimal.NewFromInt(2), Stock: 200},
	{Code: "P003", Name: "Galletas", Description: "Pack galletas", Price: decimal.RequireFromString("3.5"), Stock: 150},
}

var SeedCustomers = []domain.Customer{
	{Name: "Comercial S.R.L.", TaxID: "80012345", Phone: "70000001", Email: "ventas@comercial.com", Address: "Av. Principal 123"},
	{Name: "Cliente Final", TaxID: "", Phone: "70123456", Email: "cliente@correo.com", Address: "Calle 45 #12"},
}

// LineSubtotal is quantity × unit price, exact.
func LineSubtotal(qty int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}
