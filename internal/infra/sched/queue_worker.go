package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Queue is the consumer side of the sweep trigger list.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (payload string, ok bool, err error)
}

// QueueWorker turns every job pushed to the queue into a sweep run. The job
// payload names the trigger for metrics.
type QueueWorker struct {
	queue   Queue
	sweeper *SweepWorker
	wait    time.Duration
	backoff time.Duration
	log     *zerolog.Logger
}

func NewQueueWorker(queue Queue, sweeper *SweepWorker, logger *zerolog.Logger) *QueueWorker {
	l := logger.With().Str("component", "QueueWorker").Logger()
	return &QueueWorker{
		queue:   queue,
		sweeper: sweeper,
		wait:    5 * time.Second,
		backoff: time.Second,
		log:     &l,
	}
}

func (w *QueueWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting sweep queue worker")
	for {
		if ctx.Err() != nil {
			w.log.Info().Msg("Stopping sweep queue worker")
			return ctx.Err()
		}
		payload, ok, err := w.queue.Pop(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("queue pop failed")
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
			continue
		}
		if !ok {
			continue
		}
		trigger := payload
		if trigger == "" {
			trigger = "queue"
		}
		if _, err := w.sweeper.RunOnce(ctx, trigger); err != nil && !errors.Is(err, ErrSweepBusy) {
			w.log.Error().Err(err).Str("trigger", trigger).Msg("queued sweep failed")
		}
	}
}
