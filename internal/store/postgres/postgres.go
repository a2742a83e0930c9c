package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Store struct {
	db          *sql.DB
	databaseURL string
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, databaseURL: databaseURL}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations. It is a no-op when the
// schema is already current.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, s.databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Seed inserts the demo catalog and customers into whichever of the two
// tables is still empty.
func (s *Store) Seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var products int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&products); err != nil {
		return err
	}
	if products == 0 {
		for _, p := range store.SeedProducts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO products (code, name, description, price, stock)
				VALUES ($1,$2,$3,$4,$5)
			`, p.Code, p.Name, p.Description, p.Price, p.Stock); err != nil {
				return err
			}
		}
	}

	var customers int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&customers); err != nil {
		return err
	}
	if customers == 0 {
		for _, c := range store.SeedCustomers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO customers (name, tax_id, phone, email, address)
				VALUES ($1,$2,$3,$4,$5)
			`, c.Name, c.TaxID, c.Phone, c.Email, c.Address); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, description, price, stock
		FROM products
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, price, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (code, name, description, price, stock)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, product.Code, product.Name, product.Description, product.Price, product.Stock).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: product code %q already exists", store.ErrValidation, product.Code)
		}
		return 0, err
	}
	return id, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET code = $2, name = $3, description = $4, price = $5, stock = $6
		WHERE id = $1
	`, product.ID, product.Code, product.Name, product.Description, product.Price, product.Stock)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: product code %q already exists", store.ErrValidation, product.Code)
	}
	return err
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	return err
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tax_id, phone, email, address
		FROM customers
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.TaxID, &c.Phone, &c.Email, &c.Address); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tax_id, phone, email, address
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TaxID, &c.Phone, &c.Email, &c.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, tax_id, phone, email, address)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, customer.Name, customer.TaxID, customer.Phone, customer.Email, customer.Address).Scan(&id)
	return id, err
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, tax_id = $3, phone = $4, email = $5, address = $6
		WHERE id = $1
	`, customer.ID, customer.Name, customer.TaxID, customer.Phone, customer.Email, customer.Address)
	return err
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	return err
}

// CreateInvoice runs under SERIALIZABLE and locks each product row before
// checking its stock. The decrement is additionally guarded by the stock
// predicate, so a lost lock can never drive stock negative.
func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Lines) == 0 {
		return nil, fmt.Errorf("%w: invoice has no lines", store.ErrValidation)
	}

	total := decimal.Zero
	lines := make([]domain.InvoiceLine, len(invoice.Lines))
	for i, line := range invoice.Lines {
		if line.ProductID == nil {
			return nil, fmt.Errorf("%w: line without product", store.ErrValidation)
		}
		line.Subtotal = store.LineSubtotal(line.Quantity, line.UnitPrice)
		total = total.Add(line.Subtotal)
		lines[i] = line
	}
	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = time.Now().UTC()
	}
	invoice.Total = total

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if invoice.CustomerID != nil {
		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, *invoice.CustomerID).Scan(&exists); err != nil {
			return nil, mapTxError(err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *invoice.CustomerID)
		}
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO invoices (customer_id, number, issued_at, total)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, nullInt64(invoice.CustomerID), invoice.Number, invoice.IssuedAt, invoice.Total).Scan(&invoice.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateNumber, invoice.Number)
		}
		return nil, mapTxError(err)
	}

	for i := range lines {
		line := &lines[i]
		productID := *line.ProductID

		var name string
		var stock int
		err := pgTx.QueryRowContext(ctx, `
			SELECT name, stock
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, productID).Scan(&name, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
			}
			return nil, mapTxError(err)
		}
		if stock < line.Quantity {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, name)
		}

		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO invoice_lines (invoice_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, invoice.ID, productID, line.Quantity, line.UnitPrice, line.Subtotal).Scan(&line.ID)
		if err != nil {
			return nil, mapTxError(err)
		}
		line.InvoiceID = invoice.ID

		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2
			WHERE id = $1 AND stock >= $2
		`, productID, line.Quantity)
		if err != nil {
			return nil, mapTxError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, name)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	invoice.Lines = lines
	invoice.CustomerName = nil
	return &invoice, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	var (
		inv          domain.Invoice
		customerID   sql.NullInt64
		customerName sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.customer_id, f.number, f.issued_at, f.total, c.name
		FROM invoices f
		LEFT JOIN customers c ON c.id = f.customer_id
		WHERE f.id = $1
	`, id).Scan(&inv.ID, &customerID, &inv.Number, &inv.IssuedAt, &inv.Total, &customerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d", store.ErrNotFound, id)
		}
		return nil, err
	}
	inv.IssuedAt = inv.IssuedAt.UTC()
	inv.CustomerID = int64Ptr(customerID)
	inv.CustomerName = stringPtr(customerName)

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.invoice_id, d.product_id, d.quantity, d.unit_price, d.subtotal, p.name
		FROM invoice_lines d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.invoice_id = $1
		ORDER BY d.id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inv.Lines = make([]domain.InvoiceLine, 0, 8)
	for rows.Next() {
		var (
			line        domain.InvoiceLine
			productID   sql.NullInt64
			productName sql.NullString
		)
		if err := rows.Scan(&line.ID, &line.InvoiceID, &productID, &line.Quantity, &line.UnitPrice, &line.Subtotal, &productName); err != nil {
			return nil, err
		}
		line.ProductID = int64Ptr(productID)
		line.ProductName = stringPtr(productName)
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.customer_id, f.number, f.issued_at, f.total, c.name
		FROM invoices f
		LEFT JOIN customers c ON c.id = f.customer_id
		ORDER BY f.issued_at DESC, f.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		var (
			inv          domain.Invoice
			customerID   sql.NullInt64
			customerName sql.NullString
		)
		if err := rows.Scan(&inv.ID, &customerID, &inv.Number, &inv.IssuedAt, &inv.Total, &customerName); err != nil {
			return nil, err
		}
		inv.IssuedAt = inv.IssuedAt.UTC()
		inv.CustomerID = int64Ptr(customerID)
		inv.CustomerName = stringPtr(customerName)
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) SalesByDate(ctx context.Context, dates store.DateRange) ([]domain.DailySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char((issued_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day, SUM(total)
		FROM invoices
		WHERE (issued_at AT TIME ZONE 'UTC')::date BETWEEN $1::date AND $2::date
		GROUP BY day
		ORDER BY day DESC
	`, dates.From, dates.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DailySales, 0, 32)
	for rows.Next() {
		var row domain.DailySales
		if err := rows.Scan(&row.Date, &row.Total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.ProductSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, SUM(d.quantity) AS sold
		FROM invoice_lines d
		JOIN products p ON p.id = d.product_id
		GROUP BY p.id, p.name
		ORDER BY sold DESC, p.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var row domain.ProductSales
		if err := rows.Scan(&row.ProductID, &row.Name, &row.TotalSold); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapTxError turns serialization failures and deadlocks into store.ErrConflict
// so the caller can retry the whole invoice.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	}
	return err
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
