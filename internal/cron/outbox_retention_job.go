package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

const defaultRetentionDays = 30

type outboxPruner interface {
	DeletePublishedBefore(cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox retention job.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	Repository    outboxPruner
	RetentionDays int
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxPruner
	retention int
	now       func() time.Time
}

// NewOutboxRetentionJob returns the job that prunes published outbox events
// older than the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string {
	return "outbox_retention"
}

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().AddDate(0, 0, -j.retention)
	deleted, err := j.repo.DeletePublishedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("prune outbox events: %w", err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", deleted), "published outbox events pruned")
	}
	return nil
}
