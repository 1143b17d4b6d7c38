package sched

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/infra/metrics"
)

// Dedup claims a key once across instances (Redis SETNX).
type Dedup interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// Reporter publishes the platform report for a window.
type Reporter interface {
	PublishReport(ctx context.Context, since, now time.Time) error
}

// ReportWorker publishes the platform report at fixed local hours. Each
// slot is claimed through Dedup so only one instance reports it.
type ReportWorker struct {
	hours    []int
	loc      *time.Location
	window   time.Duration
	reporter Reporter
	dedup    Dedup
	tick     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSlot string
	log      *zerolog.Logger
}

func NewReportWorker(hours []int, tz string, reporter Reporter, dedup Dedup, logger *zerolog.Logger) *ReportWorker {
	l := logger.With().Str("component", "ReportWorker").Logger()
	return &ReportWorker{
		hours:    hours,
		loc:      LoadLocation(tz, &l),
		window:   12 * time.Hour,
		reporter: reporter,
		dedup:    dedup,
		tick:     time.Minute,
		now:      time.Now,
		log:      &l,
	}
}

// LoadLocation falls back to UTC+5 when the zone database is unavailable.
func LoadLocation(tz string, log *zerolog.Logger) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Err(err).Str("tz", tz).Msg("time zone not found, using UTC+05:00")
		return time.FixedZone("UTC+5", 5*3600)
	}
	return loc
}

func (w *ReportWorker) Run(ctx context.Context) error {
	w.log.Info().Ints("hours", w.hours).Str("tz", w.loc.String()).Msg("Starting report worker")
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping report worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil {
				w.log.Error().Err(err).Msg("report failed")
			}
		}
	}
}

// Tick publishes the report when now falls in a configured hour whose slot
// has not been claimed yet. It reports whether a report was sent.
func (w *ReportWorker) Tick(ctx context.Context) (bool, error) {
	now := w.now().In(w.loc)
	if !slices.Contains(w.hours, now.Hour()) {
		return false, nil
	}
	slot := fmt.Sprintf("report:%s", now.Format("2006-01-02T15"))

	w.mu.Lock()
	seen := w.lastSlot == slot
	w.mu.Unlock()
	if seen {
		return false, nil
	}

	if w.dedup != nil {
		ok, err := w.dedup.SetNX(ctx, slot, now.Unix(), w.window+time.Hour)
		if err != nil {
			return false, fmt.Errorf("claim %s: %w", slot, err)
		}
		if !ok {
			w.markSlot(slot)
			return false, nil
		}
	}
	w.markSlot(slot)

	err := w.reporter.PublishReport(ctx, now.Add(-w.window), now)
	metrics.IncReport(err)
	if err != nil {
		return false, err
	}
	w.log.Info().Str("slot", slot).Msg("report published")
	return true, nil
}

func (w *ReportWorker) markSlot(slot string) {
	w.mu.Lock()
	w.lastSlot = slot
	w.mu.Unlock()
}
