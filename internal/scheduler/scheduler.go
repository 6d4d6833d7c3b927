package scheduler

import (
	"context"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/upload"
	"github.com/robfig/cron/v3"
)

// A Controller is an Iversion Of Control pattern used to init the scheduler package.
type Controller struct {
	Logger  logger.Logger
	Service *upload.Service
	Staging *storage.Staging
	// StaleAfter is the idle duration after which an unmerged session is purged.
	StaleAfter    time.Duration
	Specification string
}

// Start lauches the scheduler asynchronously.
// The returned function stops it.
func Start(c Controller) (func(), error) {
	cron := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	log := c.Logger.WithPrefix("[scheduler]")

	_, err := cron.AddFunc(c.Specification, func() {
		Purge(context.Background(), c)
	})
	if err != nil {
		return nil, err
	}
	log.Info("Stale session task registred")

	cron.Start()
	log.Info("Scheduler is running")

	return func() {
		<-cron.Stop().Done()
	}, nil
}

// Purge removes stale sessions and staged files left by cancelled requests.
func Purge(ctx context.Context, c Controller) {
	log := c.Logger.WithPrefix("[purge]")

	count, err := c.Service.Purge(ctx, c.StaleAfter)
	if err != nil {
		log.Error(err)
	}
	if count > 0 {
		log.Infof("Removed %d stale session(s)", count)
	}

	count, err = c.Staging.Cleanup(c.StaleAfter)
	if err != nil {
		log.Error(err)
		return
	}
	if count > 0 {
		log.Infof("Removed %d staged file(s)", count)
	}
}
