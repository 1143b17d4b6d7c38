package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.StatsRepository = (*statsRepo)(nil)

type statsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *statsRepo {
	return &statsRepo{pool: pool}
}

func (r *statsRepo) CreatorAnalytics(ctx context.Context, tx repository.Tx, creatorID int64, dayStart time.Time) (*model.CreatorAnalytics, error) {
	const q = `
SELECT
  COALESCE(SUM(t.gross_amount), 0) + COALESCE((
    SELECT SUM(bt.gross_amount)
      FROM bundle_transactions bt
      JOIN bundle_subscriptions bs ON bs.id = bt.bundle_subscription_id
      JOIN bundle_plans bp ON bp.id = bs.bundle_plan_id
      JOIN bundles b ON b.id = bp.bundle_id
     WHERE b.creator_id = $1), 0),
  COUNT(DISTINCT s.user_id) FILTER (WHERE s.status = 'ACTIVE'),
  COUNT(s.id) FILTER (WHERE s.status = 'EXPIRED'),
  COUNT(s.id) FILTER (WHERE s.created_at >= $2),
  COUNT(s.id) FILTER (WHERE s.partner_id IS NOT NULL),
  COALESCE(SUM(t.partner_share), 0)
  FROM channels c
  LEFT JOIN subscription_plans p ON p.channel_id = c.id
  LEFT JOIN subscriptions s ON s.plan_id = p.id
  LEFT JOIN transactions t ON t.subscription_id = s.id
 WHERE c.creator_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, creatorID, dayStart)
	if err != nil {
		return nil, err
	}
	var a model.CreatorAnalytics
	if err := row.Scan(&a.GrossRevenue, &a.ActiveSubscribers, &a.Churned, &a.NewToday, &a.PartnerConversions, &a.PartnerPayouts); err != nil {
		return nil, scanErr(err, domain.ErrReadDatabaseRow)
	}
	return &a, nil
}

func (r *statsRepo) PartnerSummary(ctx context.Context, tx repository.Tx, userID int64, dayStart time.Time) (*model.PartnerSummary, error) {
	const perChannel = `
SELECT c.id, c.title,
       COUNT(s.id),
       COALESCE(SUM(t.partner_share), 0),
       COUNT(s.id) FILTER (WHERE s.status = 'ACTIVE'),
       COUNT(s.id) FILTER (WHERE s.created_at >= $2)
  FROM partners pa
  JOIN channels c ON c.id = pa.channel_id
  LEFT JOIN subscriptions s ON s.partner_id = pa.id
  LEFT JOIN transactions t ON t.subscription_id = s.id
 WHERE pa.user_id = $1 AND pa.status = 'APPROVED'
 GROUP BY c.id, c.title
 ORDER BY c.id;`
	rows, err := queryRows(ctx, r.pool, tx, perChannel, userID, dayStart)
	if err != nil {
		return nil, err
	}
	var sum model.PartnerSummary
	stats, err := collect(rows, func(rows pgx.Rows) (model.PartnerChannelStats, error) {
		var (
			cs       model.PartnerChannelStats
			newToday int
		)
		if err := rows.Scan(&cs.ChannelID, &cs.Title, &cs.Conversions, &cs.Earnings, &cs.Active, &newToday); err != nil {
			return cs, domain.ErrReadDatabaseRow
		}
		sum.NewToday += newToday
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	sum.Channels = stats
	for _, cs := range stats {
		sum.Earnings += cs.Earnings
		sum.Conversions += cs.Conversions
		sum.ActiveReferrals += cs.Active
	}

	const totals = `
SELECT
  COALESCE((SELECT cb.available_balance
              FROM creator_balances cb
              JOIN creators cr ON cr.id = cb.creator_id
             WHERE cr.user_id = $1), 0),
  (SELECT COUNT(*) FROM partners WHERE user_id = $1 AND status = 'PENDING');`
	row, err := pickRow(ctx, r.pool, tx, totals, userID)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&sum.Balance, &sum.Pending); err != nil {
		return nil, scanErr(err, domain.ErrReadDatabaseRow)
	}
	return &sum, nil
}

func (r *statsRepo) PlatformSnapshot(ctx context.Context, tx repository.Tx, since, now time.Time) (*model.PlatformStats, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM users WHERE created_at >= $1),
  (SELECT COUNT(*) FROM creators),
  (SELECT COUNT(*) FROM channels),
  (SELECT COUNT(*) FROM subscriptions WHERE status = 'ACTIVE' AND end_date > $2),
  (SELECT COUNT(*) FROM subscriptions WHERE created_at >= $1),
  (SELECT COUNT(*) FROM subscriptions WHERE status = 'EXPIRED' AND end_date >= $1),
  (SELECT COUNT(*) FROM preview_access WHERE status = 'ACTIVE'),
  (SELECT COALESCE(SUM(gross_amount), 0) FROM transactions WHERE created_at >= $1)
    + (SELECT COALESCE(SUM(gross_amount), 0) FROM bundle_transactions WHERE created_at >= $1),
  (SELECT COALESCE(SUM(platform_fee), 0) FROM transactions WHERE created_at >= $1)
    + (SELECT COALESCE(SUM(platform_fee), 0) FROM bundle_transactions WHERE created_at >= $1),
  (SELECT COUNT(*) FROM payouts WHERE status IN ('REQUESTED', 'PROCESSING')),
  (SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE status IN ('REQUESTED', 'PROCESSING'));`
	row, err := pickRow(ctx, r.pool, tx, q, since, now)
	if err != nil {
		return nil, err
	}
	s := model.PlatformStats{Since: since}
	if err := row.Scan(&s.Users, &s.NewUsers, &s.Creators, &s.Channels, &s.ActiveSubscriptions, &s.NewSubscriptions,
		&s.ExpiredSince, &s.ActivePreviews, &s.GrossSince, &s.PlatformFeesSince, &s.PendingPayouts, &s.PendingPayoutAmount); err != nil {
		return nil, scanErr(err, domain.ErrReadDatabaseRow)
	}
	return &s, nil
}
