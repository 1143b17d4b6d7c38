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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `s.id, s.user_id, s.plan_id, s.payment_id, s.status, s.start_date, s.end_date,
       s.invite_link, s.partner_id, s.reminded_3d, s.reminded_1d, s.created_at`

// subscriptionDetailSelect joins everything the sweep and the ledger need
// about one subscription.
const subscriptionDetailSelect = `
SELECT ` + subscriptionColumns + `,
       u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.language, u.created_at, u.updated_at,
       p.id, p.channel_id, p.name, p.price, p.duration_day, p.duration_min, p.is_active, p.created_at,
       c.id, c.creator_id, c.telegram_channel_id, c.title, c.commission_rate, c.is_free, c.free_plan_id,
       c.preview_enabled, c.preview_duration_min, c.created_at,
       pa.id, pa.user_id, pa.channel_id, pa.status, pa.commission_rate, pa.created_at, pa.decided_at
  FROM subscriptions s
  JOIN users u ON u.id = s.user_id
  JOIN subscription_plans p ON p.id = s.plan_id
  JOIN channels c ON c.id = p.channel_id
  LEFT JOIN partners pa ON pa.id = s.partner_id`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (user_id, plan_id, payment_id, status, start_date, end_date, invite_link, partner_id,
                           reminded_3d, reminded_1d, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, s.UserID, s.PlanID, s.PaymentID, string(s.Status), s.StartDate, s.EndDate,
		s.InviteLink, s.PartnerID, s.Reminded3d, s.Reminded1d, s.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&s.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Subscription, error) {
	return r.findOne(ctx, tx, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.id=$1;`, id)
}

func (r *subscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	return r.findOne(ctx, tx, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.payment_id=$1;`, paymentID)
}

func (r *subscriptionRepo) FindDetail(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionDetail, error) {
	row, err := pickRow(ctx, r.pool, tx, subscriptionDetailSelect+` WHERE s.id=$1;`, id)
	if err != nil {
		return nil, err
	}
	d, err := scanSubscriptionDetail(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	return d, nil
}

func (r *subscriptionRepo) HasActive(ctx context.Context, tx repository.Tx, userID, channelID int64, now time.Time) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1
    FROM subscriptions s
    JOIN subscription_plans p ON p.id = s.plan_id
   WHERE s.user_id=$1 AND p.channel_id=$2 AND s.status='ACTIVE' AND s.end_date > $3
);`
	row, err := pickRow(ctx, r.pool, tx, q, userID, channelID, now)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, scanErr(err, domain.ErrReadDatabaseRow)
	}
	return ok, nil
}

func (r *subscriptionRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.SubscriptionDetail, error) {
	return r.listDetails(ctx, tx, subscriptionDetailSelect+`
 WHERE s.status='ACTIVE' AND s.end_date < $1
 ORDER BY s.end_date ASC;`, now)
}

func (r *subscriptionRepo) FindForReminder(ctx context.Context, tx repository.Tx, h model.ReminderHorizon, now time.Time) ([]*model.SubscriptionDetail, error) {
	after, until := h.Window(now)
	return r.listDetails(ctx, tx, subscriptionDetailSelect+`
 WHERE s.status='ACTIVE' AND s.end_date > $1 AND s.end_date <= $2 AND NOT s.`+reminderColumn(h)+`
 ORDER BY s.end_date ASC;`, after, until)
}

func (r *subscriptionRepo) MarkReminded(ctx context.Context, tx repository.Tx, id int64, h model.ReminderHorizon) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE subscriptions SET `+reminderColumn(h)+`=TRUE WHERE id=$1;`, id)
	return err
}

func (r *subscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE subscriptions SET status='EXPIRED' WHERE id=$1 AND status='ACTIVE';`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func reminderColumn(h model.ReminderHorizon) string {
	if h == model.Reminder3d {
		return "reminded_3d"
	}
	return "reminded_1d"
}

func (r *subscriptionRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var s model.Subscription
	if err := scanSubscriptionInto(row, &s); err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	return &s, nil
}

func (r *subscriptionRepo) listDetails(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.SubscriptionDetail, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.SubscriptionDetail, error) {
		d, err := scanSubscriptionDetail(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return d, nil
	})
}

func scanSubscriptionInto(row pgx.Row, s *model.Subscription) error {
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PaymentID, &status, &s.StartDate, &s.EndDate,
		&s.InviteLink, &s.PartnerID, &s.Reminded3d, &s.Reminded1d, &s.CreatedAt); err != nil {
		return err
	}
	s.Status = model.SubscriptionStatus(status)
	return nil
}

// nullablePartner receives the LEFT JOIN columns of partners.
type nullablePartner struct {
	ID, UserID, ChannelID *int64
	Status                *string
	Rate                  *float64
	CreatedAt, DecidedAt  *time.Time
}

func (n nullablePartner) toModel() *model.Partner {
	if n.ID == nil {
		return nil
	}
	p := &model.Partner{ID: *n.ID, DecidedAt: n.DecidedAt}
	if n.UserID != nil {
		p.UserID = *n.UserID
	}
	if n.ChannelID != nil {
		p.ChannelID = *n.ChannelID
	}
	if n.Status != nil {
		p.Status = model.PartnerStatus(*n.Status)
	}
	if n.Rate != nil {
		p.CommissionRate = *n.Rate
	}
	if n.CreatedAt != nil {
		p.CreatedAt = *n.CreatedAt
	}
	return p
}

func scanSubscriptionDetail(row pgx.Row) (*model.SubscriptionDetail, error) {
	var (
		d          model.SubscriptionDetail
		status     string
		days, mins *int
		pa         nullablePartner
	)
	s, u, p, c := &d.Subscription, &d.User, &d.Plan, &d.Channel
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.PaymentID, &status, &s.StartDate, &s.EndDate,
		&s.InviteLink, &s.PartnerID, &s.Reminded3d, &s.Reminded1d, &s.CreatedAt,
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Language, &u.CreatedAt, &u.UpdatedAt,
		&p.ID, &p.ChannelID, &p.Name, &p.Price, &days, &mins, &p.IsActive, &p.CreatedAt,
		&c.ID, &c.CreatorID, &c.TelegramChannelID, &c.Title, &c.CommissionRate, &c.IsFree, &c.FreePlanID,
		&c.PreviewEnabled, &c.PreviewDurationMin, &c.CreatedAt,
		&pa.ID, &pa.UserID, &pa.ChannelID, &pa.Status, &pa.Rate, &pa.CreatedAt, &pa.DecidedAt,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	dur, err := model.DurationFromColumns(days, mins)
	if err != nil {
		return nil, err
	}
	p.Duration = dur
	d.Partner = pa.toModel()
	return &d, nil
}
