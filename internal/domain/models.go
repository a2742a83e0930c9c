package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices and totals go over the wire as JSON numbers, like the frontend expects.
	decimal.MarshalJSONWithoutQuotes = true
}

type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"codigo"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Price       decimal.Decimal `json:"precio"`
	Stock       int             `json:"stock"`
}

type ProductRequest struct {
	Code        string          `json:"codigo" validate:"required,max=64"`
	Name        string          `json:"nombre" validate:"required,max=200"`
	Description string          `json:"descripcion" validate:"max=1000"`
	Price       decimal.Decimal `json:"precio" validate:"gte=0"`
	Stock       Int             `json:"stock" validate:"gte=0,lte=2147483647"`
}

type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"nombre"`
	TaxID   string `json:"ruc"`
	Phone   string `json:"telefono"`
	Email   string `json:"email"`
	Address string `json:"direccion"`
}

type CustomerRequest struct {
	Name    string `json:"nombre" validate:"required,max=200"`
	TaxID   string `json:"ruc" validate:"max=32"`
	Phone   string `json:"telefono" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"direccion" validate:"max=300"`
}

type CreatedResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// Invoice is the sale header. CustomerName is only populated on reads.
type Invoice struct {
	ID           int64           `json:"id"`
	CustomerID   *int64          `json:"cliente_id"`
	Number       string          `json:"numero"`
	IssuedAt     time.Time       `json:"fecha"`
	Total        decimal.Decimal `json:"total"`
	CustomerName *string         `json:"cliente"`
	Lines        []InvoiceLine   `json:"-"`
}

// InvoiceLine keeps the unit price captured at sale time; it is never re-read
// from the catalog.
type InvoiceLine struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"factura_id"`
	ProductID   *int64          `json:"producto_id"`
	Quantity    int             `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precio_unitario"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductName *string         `json:"producto"`
}

type InvoiceItem struct {
	ProductID Int             `json:"producto_id" validate:"required,gt=0"`
	Quantity  Int             `json:"cantidad" validate:"gt=0,lte=2147483647"`
	UnitPrice decimal.Decimal `json:"precio_unitario" validate:"gte=0"`
}

// CreateInvoiceRequest treats a missing, null, empty or zero cliente_id as a
// walk-in sale.
type CreateInvoiceRequest struct {
	CustomerID *Int          `json:"cliente_id"`
	Items      []InvoiceItem `json:"items" validate:"required,min=1,dive"`
}

type CreateInvoiceResponse struct {
	Success   bool            `json:"success"`
	InvoiceID int64           `json:"facturaId"`
	Number    string          `json:"numero"`
	Total     decimal.Decimal `json:"total"`
}

type InvoiceDetailResponse struct {
	Invoice Invoice       `json:"factura"`
	Lines   []InvoiceLine `json:"detalles"`
}

type DailySales struct {
	Date  string          `json:"fecha"`
	Total decimal.Decimal `json:"total"`
}

type ProductSales struct {
	ProductID int64  `json:"id"`
	Name      string `json:"nombre"`
	TotalSold int64  `json:"total_vendidos"`
}
