package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	applogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/metrics"
)

// Reaper defaults, matching what deployed terminals expect: heartbeats come
// every few seconds, so five minutes of silence means the terminal is gone.
const (
	DefaultReapInterval = 60 * time.Second
	DefaultStaleAfter   = 300 * time.Second
)

// Reaper is the background sweep that evicts accounts whose heartbeats went
// stale. It runs for the life of the process; a failing cycle is logged and
// the loop continues.
type Reaper struct {
	registry   *Registry
	interval   time.Duration
	staleAfter time.Duration
	logger     *applogger.Logger
	metrics    *metrics.Recorder
}

func NewReaper(registry *Registry, interval, staleAfter time.Duration, logger *applogger.Logger, rec *metrics.Recorder) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reaper{
		registry:   registry,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		metrics:    rec,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		applogger.Duration("interval_ms", r.interval),
		applogger.Duration("stale_after_ms", r.staleAfter),
	)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if err := r.cycle(); err != nil {
				r.logger.Error("reaper cycle failed", applogger.Error(err))
			}
		}
	}
}

// cycle performs one sweep. The recover boundary keeps the loop alive no
// matter what a cycle does.
func (r *Reaper) cycle() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reaper panic: %v", rec)
		}
	}()

	evicted := r.registry.EvictStale(r.staleAfter)
	if len(evicted) == 0 {
		return nil
	}

	r.logger.Info("cleaned up stale connections",
		applogger.Int("count", len(evicted)),
		applogger.String("account_ids", strings.Join(evicted, ", ")),
	)
	if r.metrics != nil {
		r.metrics.RecordEvictions(len(evicted))
		total, _, _ := r.registry.Counts()
		r.metrics.SetConnectedAccounts(total)
	}
	return nil
}
