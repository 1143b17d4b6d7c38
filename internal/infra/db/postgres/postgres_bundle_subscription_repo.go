package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.BundleSubscriptionRepository = (*bundleSubscriptionRepo)(nil)

const bundleSubscriptionColumns = `bs.id, bs.user_id, bs.bundle_plan_id, bs.payment_id, bs.status, bs.start_date, bs.end_date, bs.links, bs.created_at`

const bundleSubscriptionDetailSelect = `
SELECT ` + bundleSubscriptionColumns + `,
       u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.language, u.created_at, u.updated_at,
       bp.id, bp.bundle_id, bp.name, bp.price, bp.duration_day, bp.duration_min, bp.is_active, bp.created_at,
       b.id, b.creator_id, b.title, b.folder_link, b.created_at,
       COALESCE((SELECT ARRAY_AGG(bc.channel_id ORDER BY bc.channel_id) FROM bundle_channels bc WHERE bc.bundle_id = b.id), '{}')
  FROM bundle_subscriptions bs
  JOIN users u ON u.id = bs.user_id
  JOIN bundle_plans bp ON bp.id = bs.bundle_plan_id
  JOIN bundles b ON b.id = bp.bundle_id`

type bundleSubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewBundleSubscriptionRepo(pool *pgxpool.Pool) *bundleSubscriptionRepo {
	return &bundleSubscriptionRepo{pool: pool}
}

func (r *bundleSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.BundleSubscription) error {
	links, err := json.Marshal(s.Links)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO bundle_subscriptions (user_id, bundle_plan_id, payment_id, status, start_date, end_date, links, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, s.UserID, s.BundlePlanID, s.PaymentID, string(s.Status),
		s.StartDate, s.EndDate, links, s.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&s.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *bundleSubscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.BundleSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+bundleSubscriptionColumns+` FROM bundle_subscriptions bs WHERE bs.payment_id=$1;`, paymentID)
	if err != nil {
		return nil, err
	}
	var s model.BundleSubscription
	if err := scanBundleSubscriptionInto(row, &s); err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	return &s, nil
}

func (r *bundleSubscriptionRepo) FindDetail(ctx context.Context, tx repository.Tx, id int64) (*model.BundleSubscriptionDetail, error) {
	row, err := pickRow(ctx, r.pool, tx, bundleSubscriptionDetailSelect+` WHERE bs.id=$1;`, id)
	if err != nil {
		return nil, err
	}
	d, err := scanBundleSubscriptionDetail(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	return d, nil
}

func (r *bundleSubscriptionRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.BundleSubscriptionDetail, error) {
	rows, err := queryRows(ctx, r.pool, tx, bundleSubscriptionDetailSelect+`
 WHERE bs.status='ACTIVE' AND bs.end_date < $1
 ORDER BY bs.end_date ASC;`, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.BundleSubscriptionDetail, error) {
		d, err := scanBundleSubscriptionDetail(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return d, nil
	})
}

func (r *bundleSubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE bundle_subscriptions SET status='EXPIRED' WHERE id=$1 AND status='ACTIVE';`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanBundleSubscriptionInto(row pgx.Row, s *model.BundleSubscription) error {
	var (
		status string
		links  []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.BundlePlanID, &s.PaymentID, &status, &s.StartDate, &s.EndDate, &links, &s.CreatedAt); err != nil {
		return err
	}
	s.Status = model.SubscriptionStatus(status)
	if len(links) > 0 {
		if err := json.Unmarshal(links, &s.Links); err != nil {
			return err
		}
	}
	return nil
}

func scanBundleSubscriptionDetail(row pgx.Row) (*model.BundleSubscriptionDetail, error) {
	var (
		d          model.BundleSubscriptionDetail
		status     string
		links      []byte
		days, mins *int
	)
	s, u, p, b := &d.BundleSubscription, &d.User, &d.Plan, &d.Bundle
	if err := row.Scan(
		&s.ID, &s.UserID, &s.BundlePlanID, &s.PaymentID, &status, &s.StartDate, &s.EndDate, &links, &s.CreatedAt,
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Language, &u.CreatedAt, &u.UpdatedAt,
		&p.ID, &p.BundleID, &p.Name, &p.Price, &days, &mins, &p.IsActive, &p.CreatedAt,
		&b.ID, &b.CreatorID, &b.Title, &b.FolderLink, &b.CreatedAt, &b.ChannelIDs,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	if len(links) > 0 {
		if err := json.Unmarshal(links, &s.Links); err != nil {
			return nil, err
		}
	}
	dur, err := model.DurationFromColumns(days, mins)
	if err != nil {
		return nil, err
	}
	p.Duration = dur
	return &d, nil
}
