package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/metrics"
	red "telegram-channel-paywall/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

// cachedPlan is the JSON form of a plan; model.Duration has no exported fields.
type cachedPlan struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Days      *int      `json:"duration_day,omitempty"`
	Minutes   *int      `json:"duration_min,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toCachedPlan(p *model.SubscriptionPlan) cachedPlan {
	days, mins := p.Duration.Columns()
	return cachedPlan{ID: p.ID, ChannelID: p.ChannelID, Name: p.Name, Price: p.Price,
		Days: days, Minutes: mins, IsActive: p.IsActive, CreatedAt: p.CreatedAt}
}

func (c cachedPlan) toModel() (*model.SubscriptionPlan, error) {
	d, err := model.DurationFromColumns(c.Days, c.Minutes)
	if err != nil {
		return nil, err
	}
	return &model.SubscriptionPlan{ID: c.ID, ChannelID: c.ChannelID, Name: c.Name, Price: c.Price,
		Duration: d, IsActive: c.IsActive, CreatedAt: c.CreatedAt}, nil
}

// planRepoCacheDecorator caches single plans by id. Reads inside a
// transaction bypass the cache; writes invalidate it.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "plan_cache").Logger()
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func planKey(id int64) string { return fmt.Sprintf("plan:%d", id) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error) {
	if inTx(tx) {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := planKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var cp cachedPlan
		if json.Unmarshal([]byte(val), &cp) == nil {
			if p, err := cp.toModel(); err == nil {
				metrics.IncCacheRequest("plan", "hit")
				return p, nil
			}
		}
	} else if !red.IsNil(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(toCachedPlan(plan)); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	return d.inner.Create(ctx, tx, p)
}

func (d *planRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	if err := d.cache.Del(ctx, planKey(p.ID)); err != nil {
		d.log.Warn().Err(err).Int64("plan_id", p.ID).Msg("plan cache invalidation failed")
	}
	return d.inner.Update(ctx, tx, p)
}

func (d *planRepoCacheDecorator) ListByChannel(ctx context.Context, tx repository.Tx, channelID int64, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	return d.inner.ListByChannel(ctx, tx, channelID, activeOnly)
}
