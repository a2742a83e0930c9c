package service

import (
	"fmt"
	"math"
	"strings"

	"facturapos/backend/internal/domain"
	"facturapos/backend/internal/store"
)

// Quantities and stock are INTEGER columns in postgres.
const maxQuantity = math.MaxInt32

func normalizeProduct(req domain.ProductRequest) (domain.Product, error) {
	product := domain.Product{
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
	}
	switch {
	case product.Code == "":
		return domain.Product{}, fmt.Errorf("%w: codigo is required", store.ErrValidation)
	case product.Name == "":
		return domain.Product{}, fmt.Errorf("%w: nombre is required", store.ErrValidation)
	case product.Price.IsNegative():
		return domain.Product{}, fmt.Errorf("%w: precio must not be negative", store.ErrValidation)
	case req.Stock < 0:
		return domain.Product{}, fmt.Errorf("%w: stock must not be negative", store.ErrValidation)
	case req.Stock > maxQuantity:
		return domain.Product{}, fmt.Errorf("%w: stock must be at most %d", store.ErrValidation, maxQuantity)
	}
	product.Stock = int(req.Stock)
	return product, nil
}

func normalizeCustomer(req domain.CustomerRequest) (domain.Customer, error) {
	customer := domain.Customer{
		Name:    strings.TrimSpace(req.Name),
		TaxID:   strings.TrimSpace(req.TaxID),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	}
	if customer.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: nombre is required", store.ErrValidation)
	}
	return customer, nil
}

func validateItems(items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no hay items", store.ErrValidation)
	}
	for i, item := range items {
		switch {
		case item.ProductID <= 0:
			return fmt.Errorf("%w: item %d: producto_id must be positive", store.ErrValidation, i+1)
		case item.Quantity <= 0:
			return fmt.Errorf("%w: item %d: cantidad must be positive", store.ErrValidation, i+1)
		case item.Quantity > maxQuantity:
			return fmt.Errorf("%w: item %d: cantidad must be at most %d", store.ErrValidation, i+1, maxQuantity)
		case item.UnitPrice.IsNegative():
			return fmt.Errorf("%w: item %d: precio_unitario must not be negative", store.ErrValidation, i+1)
		}
	}
	return nil
}
