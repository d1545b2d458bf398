package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages short-lived inventory holds for checkout.
type Service interface {
	Create(ctx context.Context, customerID uuid.UUID, requests []inventory.StockRequest) (*models.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
	CommitTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*models.Reservation, error)
	FindActive(ctx context.Context, customerID uuid.UUID) (*models.Reservation, error)
	SweepExpired(ctx context.Context) (int, error)
}

type service struct {
	tx        txRunner
	repo      Repository
	inventory inventory.Service
	outbox    outboxEmitter
	cfg       config.ReservationConfig
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the reservation manager.
func NewService(tx txRunner, repo Repository, inv inventory.Service, emitter outboxEmitter, cfg config.ReservationConfig, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:        tx,
		repo:      repo,
		inventory: inv,
		outbox:    emitter,
		cfg:       cfg,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Create takes holds for every requested product or none of them. A customer
// may hold at most one active reservation at a time.
func (s *service) Create(ctx context.Context, customerID uuid.UUID, requests []inventory.StockRequest) (*models.Reservation, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one hold required")
	}

	var created *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindActiveByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		if existing != nil && !existing.ExpiredAt(s.now()) {
			return pkgerrors.New(pkgerrors.CodeConflict, "customer already holds an active reservation").
				WithDetails(map[string]any{"reservation_id": existing.ID.String()})
		}
		if existing != nil {
			// Lapsed but not yet swept: fold it back before taking new holds.
			if err := s.expireTx(ctx, tx, existing); err != nil {
				return err
			}
		}

		if err := s.inventory.Reserve(ctx, tx, requests); err != nil {
			return err
		}

		holds := make([]models.ReservationHold, len(requests))
		for i, req := range requests {
			holds[i] = models.ReservationHold{ID: uuid.New(), ProductID: req.ProductID, Qty: req.Qty}
		}
		row := &models.Reservation{
			ID:         uuid.New(),
			CustomerID: customerID,
			Status:     enums.ReservationStatusActive,
			ExpiresAt:  s.now().Add(s.cfg.TTL),
			Holds:      holds,
		}
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Release returns held stock. Releasing an already released or expired
// reservation is a no-op; releasing a committed one is a conflict.
func (s *service) Release(ctx context.Context, reservationID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByID(ctx, reservationID)
		if err != nil {
			return err
		}
		switch row.Status {
		case enums.ReservationStatusReleased, enums.ReservationStatusExpired:
			return nil
		case enums.ReservationStatusCommitted:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation already committed")
		}

		moved, err := repo.TransitionStatus(ctx, row.ID, enums.ReservationStatusActive, enums.ReservationStatusReleased)
		if err != nil {
			return err
		}
		if !moved {
			// Lost the race to another release or the sweeper. Holds are
			// already returned by whoever won.
			return nil
		}
		return s.inventory.Release(ctx, tx, holdRequests(row.Holds))
	})
}

// CommitTx converts an active reservation's holds into committed stock inside
// the caller's transaction. The checkout orchestrator calls this right before
// writing the order rows.
func (s *service) CommitTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*models.Reservation, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	row, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if row.Status != enums.ReservationStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("reservation is %s, not active", row.Status))
	}
	if row.ExpiredAt(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation has expired")
	}

	moved, err := repo.TransitionStatus(ctx, row.ID, enums.ReservationStatusActive, enums.ReservationStatusCommitted)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation state changed concurrently")
	}
	if err := s.inventory.Commit(ctx, tx, holdRequests(row.Holds)); err != nil {
		return nil, err
	}
	row.Status = enums.ReservationStatusCommitted
	return row, nil
}

func (s *service) FindActive(ctx context.Context, customerID uuid.UUID) (*models.Reservation, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	row, err := s.repo.FindActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.ExpiredAt(s.now()) {
		return nil, nil
	}
	return row, nil
}

// SweepExpired releases holds for reservations whose TTL lapsed. Each
// reservation is swept in its own transaction so one bad row cannot wedge
// the batch; row failures are aggregated and returned with the count.
func (s *service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.FindExpired(ctx, s.now(), s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	swept := 0
	var sweepErr error
	for _, row := range expired {
		row := row
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.expireTx(ctx, tx, &row)
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "reservation_id", row.ID.String()), "sweeping expired reservation", err)
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("reservation %s: %w", row.ID, err))
			continue
		}
		swept++
	}
	return swept, sweepErr
}

func (s *service) expireTx(ctx context.Context, tx *gorm.DB, row *models.Reservation) error {
	repo := s.repo.WithTx(tx)
	moved, err := repo.TransitionStatus(ctx, row.ID, enums.ReservationStatusActive, enums.ReservationStatusExpired)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	if err := s.inventory.Release(ctx, tx, holdRequests(row.Holds)); err != nil {
		return err
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventReservationExpired,
		AggregateType: enums.AggregateReservation,
		AggregateID:   row.ID,
		Data: payloads.ReservationExpiredEvent{
			ReservationID: row.ID,
			CustomerID:    row.CustomerID,
			ExpiredAt:     s.now(),
			HoldCount:     len(row.Holds),
		},
		Version: 1,
	}
	return s.outbox.EmitIfNotExists(ctx, tx, event)
}

func holdRequests(holds []models.ReservationHold) []inventory.StockRequest {
	requests := make([]inventory.StockRequest, len(holds))
	for i, hold := range holds {
		requests[i] = inventory.StockRequest{ProductID: hold.ProductID, Qty: hold.Qty}
	}
	return requests
}
