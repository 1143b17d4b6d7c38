package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.PartnerRepository = (*partnerRepo)(nil)

const partnerColumns = `pa.id, pa.user_id, pa.channel_id, pa.status, pa.commission_rate, pa.created_at, pa.decided_at`

const partnerDetailSelect = `
SELECT ` + partnerColumns + `,
       u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.language, u.created_at, u.updated_at,
       c.id, c.creator_id, c.telegram_channel_id, c.title, c.commission_rate, c.is_free, c.free_plan_id,
       c.preview_enabled, c.preview_duration_min, c.created_at
  FROM partners pa
  JOIN users u ON u.id = pa.user_id
  JOIN channels c ON c.id = pa.channel_id`

type partnerRepo struct {
	pool *pgxpool.Pool
}

func NewPartnerRepo(pool *pgxpool.Pool) *partnerRepo {
	return &partnerRepo{pool: pool}
}

func (r *partnerRepo) Request(ctx context.Context, tx repository.Tx, userID, channelID int64) (*model.Partner, bool, error) {
	const q = `
INSERT INTO partners AS pa (user_id, channel_id, status, commission_rate)
VALUES ($1, $2, 'PENDING', 0)
ON CONFLICT (user_id, channel_id) DO NOTHING
RETURNING ` + partnerColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, channelID)
	if err != nil {
		return nil, false, err
	}
	p, err := scanPartner(row)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, scanErr(err, domain.ErrPartnerNotFound)
	}
	existing, err := r.FindByUserChannel(ctx, tx, userID, channelID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *partnerRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Partner, error) {
	return r.findOne(ctx, tx, `SELECT `+partnerColumns+` FROM partners pa WHERE pa.id=$1;`, id)
}

func (r *partnerRepo) FindByUserChannel(ctx context.Context, tx repository.Tx, userID, channelID int64) (*model.Partner, error) {
	return r.findOne(ctx, tx, `SELECT `+partnerColumns+` FROM partners pa WHERE pa.user_id=$1 AND pa.channel_id=$2;`, userID, channelID)
}

func (r *partnerRepo) Decide(ctx context.Context, tx repository.Tx, id int64, status model.PartnerStatus, rate float64, at time.Time) error {
	const q = `UPDATE partners SET status=$2, commission_rate=$3, decided_at=$4 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), rate, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPartnerNotFound
	}
	return nil
}

// ListByCreator lists partners of the creator's channels; an empty status lists all.
func (r *partnerRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64, status model.PartnerStatus) ([]*model.PartnerDetail, error) {
	return r.listDetails(ctx, tx, partnerDetailSelect+`
 WHERE c.creator_id=$1 AND ($2 = '' OR pa.status = $2)
 ORDER BY pa.created_at ASC;`, creatorID, string(status))
}

func (r *partnerRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, status model.PartnerStatus) ([]*model.PartnerDetail, error) {
	return r.listDetails(ctx, tx, partnerDetailSelect+`
 WHERE pa.user_id=$1 AND ($2 = '' OR pa.status = $2)
 ORDER BY pa.created_at ASC;`, userID, string(status))
}

func (r *partnerRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Partner, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPartner(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrPartnerNotFound)
	}
	return p, nil
}

func (r *partnerRepo) listDetails(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PartnerDetail, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.PartnerDetail, error) {
		var (
			d      model.PartnerDetail
			status string
		)
		p, u, c := &d.Partner, &d.User, &d.Channel
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.ChannelID, &status, &p.CommissionRate, &p.CreatedAt, &p.DecidedAt,
			&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Language, &u.CreatedAt, &u.UpdatedAt,
			&c.ID, &c.CreatorID, &c.TelegramChannelID, &c.Title, &c.CommissionRate, &c.IsFree, &c.FreePlanID,
			&c.PreviewEnabled, &c.PreviewDurationMin, &c.CreatedAt,
		); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.Status = model.PartnerStatus(status)
		return &d, nil
	})
}

func scanPartner(row pgx.Row) (*model.Partner, error) {
	var (
		p      model.Partner
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ChannelID, &status, &p.CommissionRate, &p.CreatedAt, &p.DecidedAt); err != nil {
		return nil, err
	}
	p.Status = model.PartnerStatus(status)
	return &p, nil
}
