package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/pagination"
)

// Service exposes catalog lookups used by the cart and checkout pipeline.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ListVendorProducts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Product, string, error)
}

type service struct {
	repo Repository
}

// NewService wires a products service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is no longer available")
	}
	return product, nil
}

// GetProducts resolves a batch of catalog rows keyed by product id. Missing
// or inactive products are reported as a single validation error naming them.
func (s *service) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		byID[row.ID] = row
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more products are unavailable").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return byID, nil
}

func (s *service) ListVendorProducts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Product, string, error) {
	if vendorID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	return s.repo.ListByVendor(ctx, vendorID, params)
}
