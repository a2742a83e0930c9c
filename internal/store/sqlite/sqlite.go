// Package sqlite is the embedded single-file store. All writes go through one
// connection and BEGIN IMMEDIATE transactions, so an invoice holds the
// database write lock from its first statement.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		code        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       NUMERIC NOT NULL CHECK (price >= 0),
		stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		name    TEXT NOT NULL,
		tax_id  TEXT NOT NULL DEFAULT '',
		phone   TEXT NOT NULL DEFAULT '',
		email   TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER REFERENCES customers(id) ON DELETE SET NULL,
		number      TEXT NOT NULL UNIQUE,
		issued_at   DATETIME NOT NULL,
		total       NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_issued_at ON invoices (issued_at)`,
	`CREATE TABLE IF NOT EXISTS invoice_lines (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC NOT NULL CHECK (unit_price >= 0),
		subtotal   NUMERIC NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice ON invoice_lines (invoice_id)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_lines_product ON invoice_lines (product_id)`,
}

type productRow struct {
	ID          int64           `gorm:"column:id;primaryKey"`
	Code        string          `gorm:"column:code"`
	Name        string          `gorm:"column:name"`
	Description string          `gorm:"column:description"`
	Price       decimal.Decimal `gorm:"column:price"`
	Stock       int             `gorm:"column:stock"`
}

func (productRow) TableName() string { return "products" }

type customerRow struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	Name    string `gorm:"column:name"`
	TaxID   string `gorm:"column:tax_id"`
	Phone   string `gorm:"column:phone"`
	Email   string `gorm:"column:email"`
	Address string `gorm:"column:address"`
}

func (customerRow) TableName() string { return "customers" }

type invoiceRow struct {
	ID         int64           `gorm:"column:id;primaryKey"`
	CustomerID *int64          `gorm:"column:customer_id"`
	Number     string          `gorm:"column:number"`
	IssuedAt   time.Time       `gorm:"column:issued_at"`
	Total      decimal.Decimal `gorm:"column:total"`
}

func (invoiceRow) TableName() string { return "invoices" }

type lineRow struct {
	ID        int64           `gorm:"column:id;primaryKey"`
	InvoiceID int64           `gorm:"column:invoice_id"`
	ProductID *int64          `gorm:"column:product_id"`
	Quantity  int             `gorm:"column:quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal"`
}

func (lineRow) TableName() string { return "invoice_lines" }

type invoiceView struct {
	invoiceRow
	CustomerName *string `gorm:"column:customer_name"`
}

type lineView struct {
	lineRow
	ProductName *string `gorm:"column:product_name"`
}

type Store struct {
	db *gorm.DB
}

// DSN appends the pragmas the store depends on to a file path or URI.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"
}

// Open connects to the database at dsn (see DSN) and creates the schema.
func Open(ctx context.Context, dsn string, debug bool) (*Store, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(sqlitedriver.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range schema {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Seed inserts the demo catalog and customers into whichever of the two
// tables is still empty.
func (s *Store) Seed(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&productRow{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			rows := make([]productRow, 0, len(store.SeedProducts))
			for _, p := range store.SeedProducts {
				rows = append(rows, toProductRow(p))
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&customerRow{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			rows := make([]customerRow, 0, len(store.SeedCustomers))
			for _, c := range store.SeedCustomers {
				rows = append(rows, customerRow(c))
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, domain.Product(r))
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
		}
		return nil, mapError(err)
	}
	p := domain.Product(row)
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (int64, error) {
	row := toProductRow(product)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, fmt.Errorf("%w: product code %q already exists", store.ErrValidation, product.Code)
		}
		return 0, mapError(err)
	}
	return row.ID, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) error {
	err := s.db.WithContext(ctx).Model(&productRow{}).Where("id = ?", product.ID).Updates(map[string]any{
		"code":        product.Code,
		"name":        product.Name,
		"description": product.Description,
		"price":       product.Price,
		"stock":       product.Stock,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: product code %q already exists", store.ErrValidation, product.Code)
	}
	return mapError(err)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return mapError(s.db.WithContext(ctx).Where("id = ?", id).Delete(&productRow{}).Error)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var rows []customerRow
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	customers := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		customers = append(customers, domain.Customer(r))
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var row customerRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
		}
		return nil, mapError(err)
	}
	c := domain.Customer(row)
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (int64, error) {
	row := customerRow(customer)
	row.ID = 0
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, mapError(err)
	}
	return row.ID, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) error {
	return mapError(s.db.WithContext(ctx).Model(&customerRow{}).Where("id = ?", customer.ID).Updates(map[string]any{
		"name":    customer.Name,
		"tax_id":  customer.TaxID,
		"phone":   customer.Phone,
		"email":   customer.Email,
		"address": customer.Address,
	}).Error)
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	return mapError(s.db.WithContext(ctx).Where("id = ?", id).Delete(&customerRow{}).Error)
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Lines) == 0 {
		return nil, fmt.Errorf("%w: invoice has no lines", store.ErrValidation)
	}

	lines := make([]lineRow, len(invoice.Lines))
	total := decimal.Zero
	for i, line := range invoice.Lines {
		if line.ProductID == nil {
			return nil, fmt.Errorf("%w: line without product", store.ErrValidation)
		}
		subtotal := store.LineSubtotal(line.Quantity, line.UnitPrice)
		total = total.Add(subtotal)
		lines[i] = lineRow{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Subtotal: subtotal}
	}
	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = time.Now()
	}
	header := invoiceRow{
		CustomerID: invoice.CustomerID,
		Number:     invoice.Number,
		IssuedAt:   invoice.IssuedAt.UTC(),
		Total:      total,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if header.CustomerID != nil {
			var count int64
			if err := tx.Model(&customerRow{}).Where("id = ?", *header.CustomerID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: customer %d", store.ErrNotFound, *header.CustomerID)
			}
		}

		if err := tx.Create(&header).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", store.ErrDuplicateNumber, header.Number)
			}
			return err
		}

		for i := range lines {
			line := &lines[i]
			var product productRow
			if err := tx.Select("id", "name", "stock").First(&product, *line.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", store.ErrNotFound, *line.ProductID)
				}
				return err
			}
			if product.Stock < line.Quantity {
				return fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
			}

			line.InvoiceID = header.ID
			if err := tx.Create(line).Error; err != nil {
				return err
			}

			res := tx.Model(&productRow{}).
				Where("id = ? AND stock >= ?", product.ID, line.Quantity).
				Update("stock", gorm.Expr("stock - ?", line.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	invoice.ID = header.ID
	invoice.IssuedAt = header.IssuedAt
	invoice.Total = total
	invoice.CustomerName = nil
	invoice.Lines = make([]domain.InvoiceLine, len(lines))
	for i, l := range lines {
		invoice.Lines[i] = toLine(lineView{lineRow: l})
	}
	return &invoice, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	db := s.db.WithContext(ctx)

	var views []invoiceView
	err := db.Raw(`
		SELECT f.id, f.customer_id, f.number, f.issued_at, f.total, c.name AS customer_name
		FROM invoices f
		LEFT JOIN customers c ON c.id = f.customer_id
		WHERE f.id = ?
	`, id).Scan(&views).Error
	if err != nil {
		return nil, mapError(err)
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: invoice %d", store.ErrNotFound, id)
	}
	inv := toInvoice(views[0])

	var lines []lineView
	err = db.Raw(`
		SELECT d.id, d.invoice_id, d.product_id, d.quantity, d.unit_price, d.subtotal, p.name AS product_name
		FROM invoice_lines d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.invoice_id = ?
		ORDER BY d.id
	`, id).Scan(&lines).Error
	if err != nil {
		return nil, mapError(err)
	}
	inv.Lines = make([]domain.InvoiceLine, 0, len(lines))
	for _, l := range lines {
		inv.Lines = append(inv.Lines, toLine(l))
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	var views []invoiceView
	err := s.db.WithContext(ctx).Raw(`
		SELECT f.id, f.customer_id, f.number, f.issued_at, f.total, c.name AS customer_name
		FROM invoices f
		LEFT JOIN customers c ON c.id = f.customer_id
		ORDER BY f.issued_at DESC, f.id DESC
	`).Scan(&views).Error
	if err != nil {
		return nil, mapError(err)
	}
	invoices := make([]domain.Invoice, 0, len(views))
	for _, v := range views {
		invoices = append(invoices, toInvoice(v))
	}
	return invoices, nil
}

// SalesByDate groups on the stored UTC timestamp's date prefix. Totals are
// summed as decimals; SQLite would add them as floats.
func (s *Store) SalesByDate(ctx context.Context, dates store.DateRange) ([]domain.DailySales, error) {
	var rows []struct {
		Day   string          `gorm:"column:day"`
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT substr(issued_at, 1, 10) AS day, total
		FROM invoices
		WHERE substr(issued_at, 1, 10) BETWEEN ? AND ?
		ORDER BY day DESC
	`, dates.From, dates.To).Scan(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.DailySales, 0, len(rows))
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Date == r.Day {
			out[n-1].Total = out[n-1].Total.Add(r.Total)
			continue
		}
		out = append(out, domain.DailySales{Date: r.Day, Total: r.Total})
	}
	return out, nil
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.ProductSales, error) {
	var rows []struct {
		ID   int64  `gorm:"column:id"`
		Name string `gorm:"column:name"`
		Sold int64  `gorm:"column:sold"`
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT p.id, p.name, SUM(d.quantity) AS sold
		FROM invoice_lines d
		JOIN products p ON p.id = d.product_id
		GROUP BY p.id, p.name
		ORDER BY sold DESC, p.id
		LIMIT ?
	`, limit).Scan(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.ProductSales, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ProductSales{ProductID: r.ID, Name: r.Name, TotalSold: r.Sold})
	}
	return out, nil
}

// mapError reports a busy or locked database as store.ErrConflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func toProductRow(p domain.Product) productRow {
	row := productRow(p)
	row.ID = 0
	return row
}

func toInvoice(v invoiceView) domain.Invoice {
	return domain.Invoice{
		ID:           v.ID,
		CustomerID:   v.CustomerID,
		Number:       v.Number,
		IssuedAt:     v.IssuedAt.UTC(),
		Total:        v.Total,
		CustomerName: v.CustomerName,
	}
}

func toLine(v lineView) domain.InvoiceLine {
	return domain.InvoiceLine{
		ID:          v.ID,
		InvoiceID:   v.InvoiceID,
		ProductID:   v.ProductID,
		Quantity:    v.Quantity,
		UnitPrice:   v.UnitPrice,
		Subtotal:    v.Subtotal,
		ProductName: v.ProductName,
	}
}
