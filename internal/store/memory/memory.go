package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	products     map[int64]domain.Product
	customers    map[int64]domain.Customer
	invoicesByID map[int64]*domain.Invoice
	invoiceByNum map[string]int64
	nextProduct  int64
	nextCustomer int64
	nextInvoice  int64
	nextLine     int64
}

func New() *Store {
	return &Store{
		products:     make(map[int64]domain.Product),
		customers:    make(map[int64]domain.Customer),
		invoicesByID: make(map[int64]*domain.Invoice),
		invoiceByNum: make(map[string]int64),
	}
}

// NewSeeded returns a store holding the demo catalog and customers.
func NewSeeded() *Store {
	s := New()
	for _, p := range store.SeedProducts {
		s.nextProduct++
		p.ID = s.nextProduct
		s.products[p.ID] = p
	}
	for _, c := range store.SeedCustomers {
		s.nextCustomer++
		c.ID = s.nextCustomer
		s.customers[c.ID] = c
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmp.Compare(b.ID, a.ID) })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(product.Code, 0) {
		return 0, fmt.Errorf("%w: product code %q already exists", store.ErrValidation, product.Code)
	}
	s.nextProduct++
	product.ID = s.nextProduct
	s.products[product.ID] = product
	return product.ID, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil
	}
	if s.codeTaken(product.Code, product.ID) {
		return fmt.Errorf("%w: product code %q already exists", store.ErrValidation, product.Code)
	}
	s.products[product.ID] = product
	return nil
}

// DeleteProduct detaches historical lines from the product, mirroring the
// SET NULL foreign key of the SQL stores.
func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return nil
	}
	delete(s.products, id)
	for _, inv := range s.invoicesByID {
		for i := range inv.Lines {
			if inv.Lines[i].ProductID != nil && *inv.Lines[i].ProductID == id {
				inv.Lines[i].ProductID = nil
			}
		}
	}
	return nil
}

func (s *Store) codeTaken(code string, exceptID int64) bool {
	for id, p := range s.products {
		if id != exceptID && p.Code == code {
			return true
		}
	}
	return false
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return cmp.Compare(b.ID, a.ID) })
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomer++
	customer.ID = s.nextCustomer
	s.customers[customer.ID] = customer
	return customer.ID, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customer.ID]; ok {
		s.customers[customer.ID] = customer
	}
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return nil
	}
	delete(s.customers, id)
	for _, inv := range s.invoicesByID {
		if inv.CustomerID != nil && *inv.CustomerID == id {
			inv.CustomerID = nil
		}
	}
	return nil
}

// CreateInvoice validates every line against a staged copy of the stock
// levels and only applies the decrements once all lines pass.
func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(invoice.Lines) == 0 {
		return nil, fmt.Errorf("%w: invoice has no lines", store.ErrValidation)
	}
	if _, taken := s.invoiceByNum[invoice.Number]; taken {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateNumber, invoice.Number)
	}
	if invoice.CustomerID != nil {
		if _, ok := s.customers[*invoice.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *invoice.CustomerID)
		}
	}

	staged := make(map[int64]int, len(invoice.Lines))
	total := decimal.Zero
	lines := make([]domain.InvoiceLine, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		if line.ProductID == nil {
			return nil, fmt.Errorf("%w: line without product", store.ErrValidation)
		}
		product, ok := s.products[*line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, *line.ProductID)
		}
		stock, seen := staged[product.ID]
		if !seen {
			stock = product.Stock
		}
		if stock < line.Quantity {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
		}
		staged[product.ID] = stock - line.Quantity

		line.Subtotal = store.LineSubtotal(line.Quantity, line.UnitPrice)
		total = total.Add(line.Subtotal)
		lines = append(lines, line)
	}

	s.nextInvoice++
	invoice.ID = s.nextInvoice
	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = time.Now().UTC()
	}
	invoice.Total = total
	for i := range lines {
		s.nextLine++
		lines[i].ID = s.nextLine
		lines[i].InvoiceID = invoice.ID
	}
	invoice.Lines = lines
	invoice.CustomerName = nil

	for id, stock := range staged {
		p := s.products[id]
		p.Stock = stock
		s.products[id] = p
	}
	stored := cloneInvoice(&invoice)
	s.invoicesByID[invoice.ID] = stored
	s.invoiceByNum[invoice.Number] = invoice.ID

	return cloneInvoice(stored), nil
}

func (s *Store) GetInvoice(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoicesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %d", store.ErrNotFound, id)
	}
	out := s.withNames(inv)
	return &out, nil
}

func (s *Store) ListInvoices(_ context.Context) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, inv := range s.invoicesByID {
		out := s.withNames(inv)
		out.Lines = nil
		invoices = append(invoices, out)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return invoices, nil
}

func (s *Store) SalesByDate(_ context.Context, dates store.DateRange) ([]domain.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]decimal.Decimal{}
	for _, inv := range s.invoicesByID {
		day := inv.IssuedAt.UTC().Format(time.DateOnly)
		if day < dates.From || day > dates.To {
			continue
		}
		totals[day] = totals[day].Add(inv.Total)
	}

	out := make([]domain.DailySales, 0, len(totals))
	for day, total := range totals {
		out = append(out, domain.DailySales{Date: day, Total: total})
	}
	slices.SortFunc(out, func(a, b domain.DailySales) int { return cmp.Compare(b.Date, a.Date) })
	return out, nil
}

// TopProducts only counts lines that still reference an existing product.
func (s *Store) TopProducts(_ context.Context, limit int) ([]domain.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sold := map[int64]int64{}
	for _, inv := range s.invoicesByID {
		for _, line := range inv.Lines {
			if line.ProductID == nil {
				continue
			}
			if _, ok := s.products[*line.ProductID]; !ok {
				continue
			}
			sold[*line.ProductID] += int64(line.Quantity)
		}
	}

	out := make([]domain.ProductSales, 0, len(sold))
	for id, qty := range sold {
		out = append(out, domain.ProductSales{ProductID: id, Name: s.products[id].Name, TotalSold: qty})
	}
	slices.SortFunc(out, func(a, b domain.ProductSales) int {
		if c := cmp.Compare(b.TotalSold, a.TotalSold); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// withNames resolves customer and product names at read time, the way the SQL
// stores join them.
func (s *Store) withNames(inv *domain.Invoice) domain.Invoice {
	out := *cloneInvoice(inv)
	if out.CustomerID != nil {
		if c, ok := s.customers[*out.CustomerID]; ok {
			name := c.Name
			out.CustomerName = &name
		}
	}
	for i := range out.Lines {
		if out.Lines[i].ProductID == nil {
			continue
		}
		if p, ok := s.products[*out.Lines[i].ProductID]; ok {
			name := p.Name
			out.Lines[i].ProductName = &name
		}
	}
	return out
}

func cloneInvoice(src *domain.Invoice) *domain.Invoice {
	if src == nil {
		return nil
	}
	dup := *src
	if src.CustomerID != nil {
		id := *src.CustomerID
		dup.CustomerID = &id
	}
	dup.Lines = make([]domain.InvoiceLine, len(src.Lines))
	for i, line := range src.Lines {
		if line.ProductID != nil {
			id := *line.ProductID
			line.ProductID = &id
		}
		dup.Lines[i] = line
	}
	return &dup
}
