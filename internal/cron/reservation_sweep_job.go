package cron

import (
	"context"
	"fmt"

	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

type reservationSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ReservationSweepJobParams configure the reservation sweep job.
type ReservationSweepJobParams struct {
	Logger       *logger.Logger
	Reservations reservationSweeper
}

type reservationSweepJob struct {
	logg         *logger.Logger
	reservations reservationSweeper
}

// NewReservationSweepJob returns the job that releases expired reservation
// holds back to available stock.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	return &reservationSweepJob{
		logg:         params.Logger,
		reservations: params.Reservations,
	}, nil
}

func (j *reservationSweepJob) Name() string {
	return "reservation_sweep"
}

func (j *reservationSweepJob) Run(ctx context.Context) error {
	swept, err := j.reservations.SweepExpired(ctx)
	if swept > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", swept), "expired reservations released")
	}
	if err != nil {
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	return nil
}
