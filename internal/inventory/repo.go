package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

// Repository manages persistence for per-product stock counters. All counter
// mutations are single conditional UPDATEs so concurrent callers cannot
// oversell: a guard that matches zero rows means the transition was not legal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, record *models.InventoryRecord) error
	Find(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error)
	FindForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.InventoryRecord, error)
	Reserve(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	ReleaseReserved(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	CommitReserved(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	RestoreCommitted(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	AdjustTotal(ctx context.Context, productID uuid.UUID, delta int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, record *models.InventoryRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *repository) Find(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.InventoryRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var rows []models.InventoryRecord
	err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&rows).Error
	return rows, err
}

// Reserve moves qty from available into reserved. Returns false when the
// product has fewer than qty units available.
func (r *repository) Reserve(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive")
	}
	res := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND (total_qty - reserved_qty - committed_qty) >= ?", productID, qty).
		UpdateColumn("reserved_qty", gorm.Expr("reserved_qty + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseReserved returns qty from reserved back to available.
func (r *repository) ReleaseReserved(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
	}
	res := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND reserved_qty >= ?", productID, qty).
		UpdateColumn("reserved_qty", gorm.Expr("reserved_qty - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CommitReserved converts a hold into a committed sale.
func (r *repository) CommitReserved(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "commit quantity must be positive")
	}
	res := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND reserved_qty >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"reserved_qty":  gorm.Expr("reserved_qty - ?", qty),
			"committed_qty": gorm.Expr("committed_qty + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RestoreCommitted returns committed units to available after a cancellation.
func (r *repository) RestoreCommitted(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "restore quantity must be positive")
	}
	res := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND committed_qty >= ?", productID, qty).
		UpdateColumn("committed_qty", gorm.Expr("committed_qty - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdjustTotal applies a vendor restock or shrinkage correction. Negative
// deltas may not take total below what is already reserved or committed.
func (r *repository) AdjustTotal(ctx context.Context, productID uuid.UUID, delta int) (bool, error) {
	if delta == 0 {
		return true, nil
	}
	res := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND total_qty + ? >= reserved_qty + committed_qty", productID, delta).
		UpdateColumn("total_qty", gorm.Expr("total_qty + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
