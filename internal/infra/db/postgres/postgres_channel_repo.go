package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.ChannelRepository = (*channelRepo)(nil)

const channelColumns = `id, creator_id, telegram_channel_id, title, commission_rate, is_free, free_plan_id,
       preview_enabled, preview_duration_min, created_at`

type channelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *channelRepo {
	return &channelRepo{pool: pool}
}

func (r *channelRepo) Create(ctx context.Context, tx repository.Tx, c *model.Channel) error {
	const q = `
INSERT INTO channels (creator_id, telegram_channel_id, title, commission_rate, is_free, free_plan_id,
                      preview_enabled, preview_duration_min, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, c.CreatorID, c.TelegramChannelID, c.Title, c.CommissionRate, c.IsFree,
		c.FreePlanID, c.PreviewEnabled, c.PreviewDurationMin, c.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&c.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *channelRepo) Update(ctx context.Context, tx repository.Tx, c *model.Channel) error {
	const q = `
UPDATE channels SET title=$2, commission_rate=$3, is_free=$4, free_plan_id=$5,
       preview_enabled=$6, preview_duration_min=$7
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Title, c.CommissionRate, c.IsFree, c.FreePlanID,
		c.PreviewEnabled, c.PreviewDurationMin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

func (r *channelRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Channel, error) {
	return r.findOne(ctx, tx, `SELECT `+channelColumns+` FROM channels WHERE id=$1;`, id)
}

func (r *channelRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgChannelID int64) (*model.Channel, error) {
	return r.findOne(ctx, tx, `SELECT `+channelColumns+` FROM channels WHERE telegram_channel_id=$1;`, tgChannelID)
}

func (r *channelRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64) ([]*model.Channel, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+channelColumns+` FROM channels WHERE creator_id=$1 ORDER BY id;`, creatorID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.Channel, error) {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return c, nil
	})
}

func (r *channelRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Channel, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	c, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var c model.Channel
	if err := row.Scan(&c.ID, &c.CreatorID, &c.TelegramChannelID, &c.Title, &c.CommissionRate, &c.IsFree,
		&c.FreePlanID, &c.PreviewEnabled, &c.PreviewDurationMin, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
