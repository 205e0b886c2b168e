package trends

import (
	"context"
	"time"

	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"go.uber.org/zap"
)

// Refresher runs the refresh job on a fixed interval. Every instance of
// the service runs one; the advisory lock inside the job keeps the
// cluster to a single effective pass per tick.
type Refresher struct {
	job      *Job
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewRefresher creates a refresher that triggers job every interval.
func NewRefresher(job *Job, interval time.Duration) *Refresher {
	return &Refresher{
		job:      job,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the background refresh loop. It runs one pass
// immediately so a fresh deploy publishes snapshots without waiting a
// full interval.
func (r *Refresher) Start() {
	logger.Log.Info("starting trend refresher",
		zap.Duration("interval", r.interval),
	)

	go func() {
		defer close(r.doneChan)

		r.runOnce()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.runOnce()
			case <-r.stopChan:
				logger.Log.Info("trend refresher stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the in-flight pass, if
// any, to finish.
func (r *Refresher) Stop() {
	close(r.stopChan)
	<-r.doneChan
}

func (r *Refresher) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	if _, err := r.job.Refresh(ctx); err != nil {
		logger.ErrorWithFields("scheduled trend refresh failed", err)
	}
}
