//go:build !integration

package postgres

import (
	"context"
	"time"

	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
	red "telegram-channel-paywall/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerPlanRepo struct {
	CreateFunc        func(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error
	UpdateFunc        func(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error
	FindByIDFunc      func(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error)
	ListByChannelFunc func(ctx context.Context, tx repository.Tx, channelID int64, activeOnly bool) ([]*model.SubscriptionPlan, error)
}

func (m *mockInnerPlanRepo) Create(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	return m.CreateFunc(ctx, tx, p)
}
func (m *mockInnerPlanRepo) Update(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	return m.UpdateFunc(ctx, tx, p)
}
func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) ListByChannel(ctx context.Context, tx repository.Tx, channelID int64, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	return m.ListByChannelFunc(ctx, tx, channelID, activeOnly)
}

type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc   func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error {
	return nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 0, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
