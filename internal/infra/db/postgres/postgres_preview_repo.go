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

var _ repository.PreviewRepository = (*previewRepo)(nil)

const previewColumns = `pv.id, pv.user_id, pv.channel_id, pv.status, pv.start_date, pv.end_date, pv.invite_link, pv.created_at`

type previewRepo struct {
	pool *pgxpool.Pool
}

func NewPreviewRepo(pool *pgxpool.Pool) *previewRepo {
	return &previewRepo{pool: pool}
}

// Create returns domain.ErrAlreadyExists when the pair already has an ACTIVE
// preview (partial unique index).
func (r *previewRepo) Create(ctx context.Context, tx repository.Tx, p *model.PreviewAccess) error {
	const q = `
INSERT INTO preview_access (user_id, channel_id, status, start_date, end_date, invite_link, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, p.UserID, p.ChannelID, string(p.Status), p.StartDate, p.EndDate, p.InviteLink, p.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&p.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *previewRepo) FindActive(ctx context.Context, tx repository.Tx, userID, channelID int64, now time.Time) (*model.PreviewAccess, error) {
	const q = `SELECT ` + previewColumns + `
  FROM preview_access pv
 WHERE pv.user_id=$1 AND pv.channel_id=$2 AND pv.status='ACTIVE' AND pv.end_date > $3
 LIMIT 1;`
	return r.findOne(ctx, tx, q, userID, channelID, now)
}

func (r *previewRepo) FindLatest(ctx context.Context, tx repository.Tx, userID, channelID int64) (*model.PreviewAccess, error) {
	const q = `SELECT ` + previewColumns + `
  FROM preview_access pv
 WHERE pv.user_id=$1 AND pv.channel_id=$2
 ORDER BY pv.created_at DESC, pv.id DESC
 LIMIT 1;`
	return r.findOne(ctx, tx, q, userID, channelID)
}

func (r *previewRepo) FindExpiredActive(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PreviewDetail, error) {
	const q = `SELECT ` + previewColumns + `,
       u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.language, u.created_at, u.updated_at,
       c.id, c.creator_id, c.telegram_channel_id, c.title, c.commission_rate, c.is_free, c.free_plan_id,
       c.preview_enabled, c.preview_duration_min, c.created_at
  FROM preview_access pv
  JOIN users u ON u.id = pv.user_id
  JOIN channels c ON c.id = pv.channel_id
 WHERE pv.status='ACTIVE' AND pv.end_date <= $1
 ORDER BY pv.end_date ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.PreviewDetail, error) {
		var (
			d      model.PreviewDetail
			status string
		)
		p, u, c := &d.PreviewAccess, &d.User, &d.Channel
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.ChannelID, &status, &p.StartDate, &p.EndDate, &p.InviteLink, &p.CreatedAt,
			&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Language, &u.CreatedAt, &u.UpdatedAt,
			&c.ID, &c.CreatorID, &c.TelegramChannelID, &c.Title, &c.CommissionRate, &c.IsFree, &c.FreePlanID,
			&c.PreviewEnabled, &c.PreviewDurationMin, &c.CreatedAt,
		); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.Status = model.PreviewStatus(status)
		return &d, nil
	})
}

func (r *previewRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, from, to model.PreviewStatus) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE preview_access SET status=$3 WHERE id=$1 AND status=$2;`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *previewRepo) MarkConverted(ctx context.Context, tx repository.Tx, userID, channelID int64) (int, error) {
	const q = `UPDATE preview_access SET status='CONVERTED' WHERE user_id=$1 AND channel_id=$2 AND status='ACTIVE';`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, channelID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *previewRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PreviewAccess, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var (
		p      model.PreviewAccess
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ChannelID, &status, &p.StartDate, &p.EndDate, &p.InviteLink, &p.CreatedAt); err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	p.Status = model.PreviewStatus(status)
	return &p, nil
}
