package service

import (
	"context"
	"errors"
	"log/slog"

	"facturapos/backend/internal/cache"
	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
	"facturapos/backend/internal/xid"
)

const defaultMaxAttempts = 5

type Sales struct {
	repo        store.Repository
	reports     cache.ReportCache
	numbers     *xid.Generator
	maxAttempts int
	logger      *slog.Logger
}

func NewSales(repo store.Repository, reports cache.ReportCache, numbers *xid.Generator, maxAttempts int, logger *slog.Logger) *Sales {
	if reports == nil {
		reports = cache.NewNoopReportCache()
	}
	if numbers == nil {
		numbers = xid.NewGenerator()
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sales{
		repo:        repo,
		reports:     reports,
		numbers:     numbers,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// CreateInvoice records a sale at the caller's unit prices. A number
// collision or a store serialization conflict is retried with a fresh
// number; any other failure is returned as is and nothing is persisted.
func (s *Sales) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (domain.CreateInvoiceResponse, error) {
	if err := validateItems(req.Items); err != nil {
		return domain.CreateInvoiceResponse{}, err
	}

	var customerID *int64
	if req.CustomerID != nil && *req.CustomerID != 0 {
		id := int64(*req.CustomerID)
		customerID = &id
	}

	lines := make([]domain.InvoiceLine, 0, len(req.Items))
	for _, item := range req.Items {
		productID := int64(item.ProductID)
		quantity := int(item.Quantity)
		lines = append(lines, domain.InvoiceLine{
			ProductID: &productID,
			Quantity:  quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  store.LineSubtotal(quantity, item.UnitPrice),
		})
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, issuedAt := s.numbers.Next()
		created, err := s.repo.CreateInvoice(ctx, domain.Invoice{
			CustomerID: customerID,
			Number:     number,
			IssuedAt:   issuedAt,
			Lines:      lines,
		})
		if err == nil {
			if err := s.reports.Bump(ctx); err != nil {
				s.logger.Warn("report cache bump failed", slog.Any("error", err))
			}
			s.logger.Info("invoice created",
				slog.Int64("id", created.ID),
				slog.String("number", created.Number),
				slog.String("total", created.Total.StringFixed(2)),
				slog.Int("lines", len(created.Lines)),
			)
			return domain.CreateInvoiceResponse{
				Success:   true,
				InvoiceID: created.ID,
				Number:    created.Number,
				Total:     created.Total,
			}, nil
		}
		if !errors.Is(err, store.ErrDuplicateNumber) && !errors.Is(err, store.ErrConflict) {
			return domain.CreateInvoiceResponse{}, err
		}
		lastErr = err
		s.logger.Warn("invoice attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("number", number),
			slog.Any("error", err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CreateInvoiceResponse{}, ctxErr
		}
	}
	return domain.CreateInvoiceResponse{}, lastErr
}

func (s *Sales) GetInvoice(ctx context.Context, id int64) (domain.InvoiceDetailResponse, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.InvoiceDetailResponse{}, err
	}
	lines := invoice.Lines
	if lines == nil {
		lines = []domain.InvoiceLine{}
	}
	invoice.Lines = nil
	return domain.InvoiceDetailResponse{Invoice: *invoice, Lines: lines}, nil
}

func (s *Sales) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx)
}
