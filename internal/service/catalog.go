package service

import (
	"context"
	"log/slog"

	"facturapos/backend/internal/cache"
	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

// Catalog manages products and customers. Update and delete of an unknown id
// succeed without effect.
type Catalog struct {
	repo    store.Repository
	reports cache.ReportCache
	logger  *slog.Logger
}

func NewCatalog(repo store.Repository, reports cache.ReportCache, logger *slog.Logger) *Catalog {
	if reports == nil {
		reports = cache.NewNoopReportCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, reports: reports, logger: logger}
}

func (c *Catalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return c.repo.ListProducts(ctx)
}

func (c *Catalog) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := c.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (c *Catalog) CreateProduct(ctx context.Context, req domain.ProductRequest) (int64, error) {
	product, err := normalizeProduct(req)
	if err != nil {
		return 0, err
	}
	id, err := c.repo.CreateProduct(ctx, product)
	if err != nil {
		return 0, err
	}
	c.logger.Info("product created", slog.Int64("id", id), slog.String("code", product.Code))
	return id, nil
}

// UpdateProduct replaces every field, stock included. Top-product reports
// carry product names, so the report cache is invalidated.
func (c *Catalog) UpdateProduct(ctx context.Context, id int64, req domain.ProductRequest) error {
	product, err := normalizeProduct(req)
	if err != nil {
		return err
	}
	product.ID = id
	if err := c.repo.UpdateProduct(ctx, product); err != nil {
		return err
	}
	c.invalidateReports(ctx)
	return nil
}

func (c *Catalog) DeleteProduct(ctx context.Context, id int64) error {
	if err := c.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	c.invalidateReports(ctx)
	return nil
}

func (c *Catalog) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return c.repo.ListCustomers(ctx)
}

func (c *Catalog) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := c.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (c *Catalog) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (int64, error) {
	customer, err := normalizeCustomer(req)
	if err != nil {
		return 0, err
	}
	id, err := c.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return 0, err
	}
	c.logger.Info("customer created", slog.Int64("id", id))
	return id, nil
}

func (c *Catalog) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerRequest) error {
	customer, err := normalizeCustomer(req)
	if err != nil {
		return err
	}
	customer.ID = id
	return c.repo.UpdateCustomer(ctx, customer)
}

func (c *Catalog) DeleteCustomer(ctx context.Context, id int64) error {
	return c.repo.DeleteCustomer(ctx, id)
}

func (c *Catalog) invalidateReports(ctx context.Context) {
	if err := c.reports.Bump(ctx); err != nil {
		c.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}
