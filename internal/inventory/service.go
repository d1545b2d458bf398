package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

// StockRequest asks for qty units of one product.
type StockRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// Availability reports whether a request can currently be satisfied.
type Availability struct {
	ProductID uuid.UUID
	Requested int
	Available int
	Tracked   bool
	InStock   bool
}

// Service exposes the stock ledger operations used by reservations, checkout,
// and cancellation. Mutations run against the caller's transaction so they
// commit atomically with order state.
type Service interface {
	CheckAvailability(ctx context.Context, requests []StockRequest) ([]Availability, error)
	Reserve(ctx context.Context, tx *gorm.DB, requests []StockRequest) error
	Release(ctx context.Context, tx *gorm.DB, requests []StockRequest) error
	Commit(ctx context.Context, tx *gorm.DB, requests []StockRequest) error
	Restore(ctx context.Context, tx *gorm.DB, requests []StockRequest) error
	SetStock(ctx context.Context, productID uuid.UUID, totalQty int, trackingEnabled bool, lowStockThreshold int) error
	GetRecord(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the inventory service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) CheckAvailability(ctx context.Context, requests []StockRequest) ([]Availability, error) {
	if err := validateRequests(requests); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(requests))
	for i, req := range requests {
		ids[i] = req.ProductID
	}
	records, err := s.repo.FindForProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.InventoryRecord, len(records))
	for _, rec := range records {
		byID[rec.ProductID] = rec
	}

	results := make([]Availability, len(requests))
	for i, req := range requests {
		rec, ok := byID[req.ProductID]
		if !ok {
			// No ledger row means the product is not stock-tracked.
			results[i] = Availability{ProductID: req.ProductID, Requested: req.Qty, Tracked: false, InStock: true}
			continue
		}
		if !rec.TrackingEnabled {
			results[i] = Availability{ProductID: req.ProductID, Requested: req.Qty, Tracked: false, InStock: true}
			continue
		}
		available := rec.AvailableQty()
		results[i] = Availability{
			ProductID: req.ProductID,
			Requested: req.Qty,
			Available: available,
			Tracked:   true,
			InStock:   available >= req.Qty,
		}
	}
	return results, nil
}

// Reserve takes holds for every request or none. The first product that
// cannot satisfy its quantity aborts the loop; the caller's transaction
// rollback undoes any holds already taken.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if err := validateRequests(requests); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, req := range requests {
		tracked, err := s.isTracked(ctx, repo, req.ProductID)
		if err != nil {
			return err
		}
		if !tracked {
			continue
		}
		ok, err := repo.Reserve(ctx, req.ProductID, req.Qty)
		if err != nil {
			return err
		}
		if !ok {
			record, ferr := repo.Find(ctx, req.ProductID)
			available := 0
			if ferr == nil {
				available = record.AvailableQty()
			}
			return pkgerrors.InsufficientStock(req.ProductID.String(), req.Qty, available)
		}
	}
	return nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	return s.applyAll(ctx, tx, requests, "release", func(repo Repository, req StockRequest) (bool, error) {
		return repo.ReleaseReserved(ctx, req.ProductID, req.Qty)
	})
}

func (s *service) Commit(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	return s.applyAll(ctx, tx, requests, "commit", func(repo Repository, req StockRequest) (bool, error) {
		return repo.CommitReserved(ctx, req.ProductID, req.Qty)
	})
}

func (s *service) Restore(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	return s.applyAll(ctx, tx, requests, "restore", func(repo Repository, req StockRequest) (bool, error) {
		return repo.RestoreCommitted(ctx, req.ProductID, req.Qty)
	})
}

func (s *service) applyAll(ctx context.Context, tx *gorm.DB, requests []StockRequest, op string, apply func(Repository, StockRequest) (bool, error)) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if err := validateRequests(requests); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, req := range requests {
		tracked, err := s.isTracked(ctx, repo, req.ProductID)
		if err != nil {
			return err
		}
		if !tracked {
			continue
		}
		ok, err := apply(repo, req)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("inventory %s rejected for product %s", op, req.ProductID)).
				WithDetails(map[string]any{"product_id": req.ProductID.String(), "qty": req.Qty})
		}
		s.maybeWarnLowStock(ctx, repo, req.ProductID)
	}
	return nil
}

func (s *service) SetStock(ctx context.Context, productID uuid.UUID, totalQty int, trackingEnabled bool, lowStockThreshold int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if totalQty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total quantity cannot be negative")
	}
	existing, err := s.repo.Find(ctx, productID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	record := &models.InventoryRecord{
		ProductID:         productID,
		TotalQty:          totalQty,
		TrackingEnabled:   trackingEnabled,
		LowStockThreshold: lowStockThreshold,
	}
	if existing != nil {
		if totalQty < existing.ReservedQty+existing.CommittedQty {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "total quantity cannot drop below outstanding holds")
		}
		record.ReservedQty = existing.ReservedQty
		record.CommittedQty = existing.CommittedQty
	}
	return s.repo.Upsert(ctx, record)
}

func (s *service) GetRecord(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	return s.repo.Find(ctx, productID)
}

func (s *service) isTracked(ctx context.Context, repo Repository, productID uuid.UUID) (bool, error) {
	record, err := repo.Find(ctx, productID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.TrackingEnabled, nil
}

func (s *service) maybeWarnLowStock(ctx context.Context, repo Repository, productID uuid.UUID) {
	record, err := repo.Find(ctx, productID)
	if err != nil || record.LowStockThreshold <= 0 {
		return
	}
	if available := record.AvailableQty(); available <= record.LowStockThreshold {
		fields := map[string]any{
			"product_id": productID.String(),
			"available":  available,
			"threshold":  record.LowStockThreshold,
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "product stock below threshold")
	}
}

func validateRequests(requests []StockRequest) error {
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one stock request required")
	}
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	return nil
}
