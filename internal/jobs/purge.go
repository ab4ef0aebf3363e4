// Package jobs runs the periodic maintenance tasks of the service.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const purgeTimeout = 30 * time.Second

// TokenPurger deletes refresh tokens that expired or were revoked before
// a cutoff.
type TokenPurger interface {
	PurgeTokens(ctx context.Context, before time.Time) (int64, error)
}

// PurgeJob removes dead refresh tokens. It implements cron.Job.
type PurgeJob struct {
	Store TokenPurger
	Now   func() time.Time
	Log   logrus.FieldLogger
}

// Run purges every token that stopped being valid before now.
func (j *PurgeJob) Run() {
	now := time.Now().UTC()
	if j.Now != nil {
		now = j.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := j.Store.PurgeTokens(ctx, now)
	if err != nil {
		j.Log.WithError(err).Error("purge refresh tokens")
		return
	}
	if n > 0 {
		j.Log.WithField("count", n).Info("refresh tokens purged")
	}
}

// Schedule starts a cron scheduler running job on expr, e.g. "@every 1h"
// or "0 3 * * *". An overlapping run is skipped. The caller stops the
// returned scheduler on shutdown.
func Schedule(expr string, job cron.Job, log logrus.FieldLogger) (*cron.Cron, error) {
	logger := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddJob(expr, job); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}
	c.Start()
	return c, nil
}
