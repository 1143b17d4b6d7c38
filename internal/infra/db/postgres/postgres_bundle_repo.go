package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.BundleRepository = (*bundleRepo)(nil)

const bundlePlanColumns = `id, bundle_id, name, price, duration_day, duration_min, is_active, created_at`

type bundleRepo struct {
	pool *pgxpool.Pool
}

func NewBundleRepo(pool *pgxpool.Pool) *bundleRepo {
	return &bundleRepo{pool: pool}
}

func (r *bundleRepo) Create(ctx context.Context, tx repository.Tx, b *model.Bundle) error {
	const q = `INSERT INTO bundles (creator_id, title, folder_link, created_at) VALUES ($1,$2,$3,$4) RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, b.CreatorID, b.Title, b.FolderLink, b.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&b.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	for _, chID := range b.ChannelIDs {
		if err := r.AddChannel(ctx, tx, b.ID, chID); err != nil {
			return err
		}
	}
	return nil
}

func (r *bundleRepo) AddChannel(ctx context.Context, tx repository.Tx, bundleID, channelID int64) error {
	const q = `INSERT INTO bundle_channels (bundle_id, channel_id) VALUES ($1,$2) ON CONFLICT DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, bundleID, channelID)
	return err
}

func (r *bundleRepo) SetFolderLink(ctx context.Context, tx repository.Tx, bundleID int64, link string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE bundles SET folder_link=$2 WHERE id=$1;`, bundleID, link)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBundleNotFound
	}
	return nil
}

func (r *bundleRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Bundle, error) {
	const q = `
SELECT b.id, b.creator_id, b.title, b.folder_link, b.created_at,
       COALESCE(ARRAY_AGG(bc.channel_id ORDER BY bc.channel_id) FILTER (WHERE bc.channel_id IS NOT NULL), '{}')
  FROM bundles b
  LEFT JOIN bundle_channels bc ON bc.bundle_id = b.id
 WHERE b.id=$1
 GROUP BY b.id;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	b, err := scanBundle(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrBundleNotFound)
	}
	return b, nil
}

func (r *bundleRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64) ([]*model.Bundle, error) {
	const q = `
SELECT b.id, b.creator_id, b.title, b.folder_link, b.created_at,
       COALESCE(ARRAY_AGG(bc.channel_id ORDER BY bc.channel_id) FILTER (WHERE bc.channel_id IS NOT NULL), '{}')
  FROM bundles b
  LEFT JOIN bundle_channels bc ON bc.bundle_id = b.id
 WHERE b.creator_id=$1
 GROUP BY b.id
 ORDER BY b.id;`
	rows, err := queryRows(ctx, r.pool, tx, q, creatorID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.Bundle, error) {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return b, nil
	})
}

func (r *bundleRepo) CreatePlan(ctx context.Context, tx repository.Tx, p *model.BundlePlan) error {
	days, mins := p.Duration.Columns()
	const q = `
INSERT INTO bundle_plans (bundle_id, name, price, duration_day, duration_min, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, p.BundleID, p.Name, p.Price, days, mins, p.IsActive, p.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&p.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *bundleRepo) FindPlanByID(ctx context.Context, tx repository.Tx, id int64) (*model.BundlePlan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+bundlePlanColumns+` FROM bundle_plans WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanBundlePlan(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrPlanNotFound)
	}
	return p, nil
}

func (r *bundleRepo) ListPlans(ctx context.Context, tx repository.Tx, bundleID int64, activeOnly bool) ([]*model.BundlePlan, error) {
	const q = `SELECT ` + bundlePlanColumns + `
  FROM bundle_plans
 WHERE bundle_id=$1 AND (NOT $2 OR is_active)
 ORDER BY price ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, bundleID, activeOnly)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.BundlePlan, error) {
		p, err := scanBundlePlan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return p, nil
	})
}

func scanBundle(row pgx.Row) (*model.Bundle, error) {
	var b model.Bundle
	if err := row.Scan(&b.ID, &b.CreatorID, &b.Title, &b.FolderLink, &b.CreatedAt, &b.ChannelIDs); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBundlePlan(row pgx.Row) (*model.BundlePlan, error) {
	var (
		p          model.BundlePlan
		days, mins *int
	)
	if err := row.Scan(&p.ID, &p.BundleID, &p.Name, &p.Price, &days, &mins, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := model.DurationFromColumns(days, mins)
	if err != nil {
		return nil, err
	}
	p.Duration = d
	return &p, nil
}
