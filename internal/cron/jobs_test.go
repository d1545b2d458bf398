package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	swept int
	err   error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context) (int, error) {
	return f.swept, f.err
}

type fakePruner struct {
	cutoff  time.Time
	deleted int64
}

func (f *fakePruner) DeletePublishedBefore(cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

func TestReservationSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{swept: 3}
	job, err := NewReservationSweepJob(ReservationSweepJobParams{
		Logger:       testLogger(),
		Reservations: sweeper,
	})
	require.NoError(t, err)
	require.Equal(t, "reservation_sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobCutoff(t *testing.T) {
	pruner := &fakePruner{deleted: 12}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        testLogger(),
		Repository:    pruner,
		RetentionDays: 7,
	})
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetentionJob).now = func() time.Time { return fixed }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, fixed.AddDate(0, 0, -7), pruner.cutoff)
}
