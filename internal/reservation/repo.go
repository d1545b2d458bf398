package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/vendorhub/vendorhub-backend/pkg/db"
	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

// Repository manages persistence for reservations and their holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Reservation, error)
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	err := r.db.WithContext(ctx).Create(reservation).Error
	// The partial unique index on active reservations catches the insert that
	// lost a concurrent create for the same customer.
	if pkgdb.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "customer already holds an active reservation")
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).Preload("Holds").Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).Preload("Holds").
		Where("customer_id = ? AND status = ?", customerID, enums.ReservationStatusActive).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Reservation
	err := r.db.WithContext(ctx).Preload("Holds").
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TransitionStatus flips a reservation between statuses only when it still
// holds the expected current status. Zero rows means someone else got there
// first, which callers treat as an idempotent no-op or a conflict.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
