package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/infra/metrics"
	red "telegram-channel-paywall/internal/infra/redis"
	"telegram-channel-paywall/internal/usecase"
)

const sweepLockKey = "lock:sweep"

// ErrSweepBusy is returned by RunOnce when another process holds the sweep lock.
var ErrSweepBusy = errors.New("sweep already running")

// SweepWorker runs the expiration sweep on a ticker. A Redis lock keeps
// concurrent instances from sweeping at the same time.
type SweepWorker struct {
	interval time.Duration
	timeout  time.Duration
	sweep    usecase.SweepUseCase
	locker   red.Locker
	log      *zerolog.Logger
}

// NewSweepWorker builds the runner. locker may be nil for single-instance runs.
func NewSweepWorker(interval, timeout time.Duration, sweep usecase.SweepUseCase, locker red.Locker, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	l := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{
		interval: interval,
		timeout:  timeout,
		sweep:    sweep,
		locker:   locker,
		log:      &l,
	}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sweep worker")
	w.runTick(ctx, "startup")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.runTick(ctx, "ticker")
		}
	}
}

func (w *SweepWorker) runTick(ctx context.Context, trigger string) {
	if _, err := w.RunOnce(ctx, trigger); err != nil && !errors.Is(err, ErrSweepBusy) && ctx.Err() == nil {
		w.log.Error().Err(err).Str("trigger", trigger).Msg("sweep failed")
	}
}

// RunOnce performs one sweep under the lock and records its metrics.
func (w *SweepWorker) RunOnce(ctx context.Context, trigger string) (usecase.SweepReport, error) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, sweepLockKey, w.timeout+30*time.Second)
		if errors.Is(err, red.ErrLockHeld) {
			w.log.Debug().Str("trigger", trigger).Msg("sweep skipped: lock held")
			return usecase.SweepReport{}, ErrSweepBusy
		}
		if err != nil {
			return usecase.SweepReport{}, err
		}
		defer func() {
			// the run context may already be cancelled
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.locker.Unlock(uctx, sweepLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("sweep unlock failed")
			}
		}()
	}

	rctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	rep, err := w.sweep.Run(rctx)
	d := rep.Duration
	if d == 0 {
		d = time.Since(start)
	}
	metrics.ObserveSweep(trigger, d, err)
	metrics.AddSweepItemErrors("previews", rep.Previews.Errors)
	metrics.AddSweepItemErrors("expire", rep.ExpireErrors)
	metrics.AddSweepItemErrors("reminders", rep.Reminders3d.Failed+rep.Reminders1d.Failed)
	metrics.AddPreviews("expired", rep.Previews.Expired)
	metrics.AddPreviews("converted", rep.Previews.Converted)
	metrics.AddExpirations("subscription", rep.Expired)
	metrics.AddExpirations("bundle", rep.ExpiredBundles)
	for horizon, r := range map[string]usecase.ReminderReport{"3d": rep.Reminders3d, "1d": rep.Reminders1d} {
		metrics.AddReminders(horizon, "sent", r.Sent)
		metrics.AddReminders(horizon, "blocked", r.Blocked)
		metrics.AddReminders(horizon, "error", r.Failed)
	}
	return rep, err
}
