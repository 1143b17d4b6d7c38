package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*planRepo)(nil)

const planColumns = `id, channel_id, name, price, duration_day, duration_min, is_active, created_at`

type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func (r *planRepo) Create(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	days, mins := p.Duration.Columns()
	const q = `
INSERT INTO subscription_plans (channel_id, name, price, duration_day, duration_min, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, p.ChannelID, p.Name, p.Price, days, mins, p.IsActive, p.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&p.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *planRepo) Update(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	days, mins := p.Duration.Columns()
	const q = `
UPDATE subscription_plans SET name=$2, price=$3, duration_day=$4, duration_min=$5, is_active=$6
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Price, days, mins, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM subscription_plans WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrPlanNotFound)
	}
	return p, nil
}

func (r *planRepo) ListByChannel(ctx context.Context, tx repository.Tx, channelID int64, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	const q = `SELECT ` + planColumns + `
  FROM subscription_plans
 WHERE channel_id=$1 AND (NOT $2 OR is_active)
 ORDER BY price ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, channelID, activeOnly)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.SubscriptionPlan, error) {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return p, nil
	})
}

// scanPlan converts the duration column pair back into a model.Duration.
func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	var (
		p          model.SubscriptionPlan
		days, mins *int
	)
	if err := row.Scan(&p.ID, &p.ChannelID, &p.Name, &p.Price, &days, &mins, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := model.DurationFromColumns(days, mins)
	if err != nil {
		return nil, err
	}
	p.Duration = d
	return &p, nil
}
