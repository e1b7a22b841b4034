// Package reaper periodically closes editing sessions nobody is using.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper closes sessions idle for longer than idle. *httpapi.Handler
// satisfies this.
type Sweeper interface {
	ReapIdle(ctx context.Context, idle time.Duration) (int, error)
}

type Worker struct {
	log      zerolog.Logger
	s        Sweeper
	interval time.Duration
	idle     time.Duration
}

type Options struct {
	Interval time.Duration
	Idle     time.Duration
}

func New(log zerolog.Logger, s Sweeper, opts Options) *Worker {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	idle := opts.Idle
	if idle <= 0 {
		idle = 2 * time.Hour
	}
	return &Worker{log: log, s: s, interval: interval, idle: idle}
}

// Run sweeps until ctx is done. Failed sweeps back off.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.s == nil {
		return
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := w.runOnce(ctx); err != nil {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.interval, consecutiveFailures))
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	n, err := w.s.ReapIdle(ctx, w.idle)
	if err != nil {
		w.log.Error().Err(err).Msg("session sweep failed")
		return err
	}
	if n > 0 {
		w.log.Info().Int("closed", n).Dur("idle", w.idle).Msg("idle sessions closed")
	}
	return nil
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if failures <= 0 {
		return base
	}

	// base * 2^failures, capped.
	if failures > 4 {
		failures = 4
	}
	d := base * time.Duration(1<<failures)
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}
