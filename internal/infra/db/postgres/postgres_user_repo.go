package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var (
	_ repository.UserRepository    = (*userRepo)(nil)
	_ repository.CreatorRepository = (*creatorRepo)(nil)
)

const userColumns = `id, telegram_id, username, first_name, last_name, language, created_at, updated_at`

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) Upsert(ctx context.Context, tx repository.Tx, p model.UserProfile) (*model.User, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	const q = `
INSERT INTO users (telegram_id, username, first_name, last_name, language)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'en'))
ON CONFLICT (telegram_id) DO UPDATE SET
  username   = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  last_name  = EXCLUDED.last_name,
  language   = CASE WHEN $5 = '' THEN users.language ELSE EXCLUDED.language END,
  updated_at = NOW()
RETURNING ` + userColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, p.TelegramID, p.Username, p.FirstName, p.LastName, p.Language)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func (r *userRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE telegram_id=$1;`, tgID)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
}

func (r *userRepo) SetLanguage(ctx context.Context, tx repository.Tx, tgID int64, lang string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE users SET language=$2, updated_at=NOW() WHERE telegram_id=$1;`, tgID, lang)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Language, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

type creatorRepo struct {
	pool *pgxpool.Pool
}

func NewCreatorRepo(pool *pgxpool.Pool) *creatorRepo {
	return &creatorRepo{pool: pool}
}

// EnsureForUser relies on the unique user_id; the no-op update makes
// RETURNING yield the existing row.
func (r *creatorRepo) EnsureForUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Creator, error) {
	const q = `
INSERT INTO creators (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING id, user_id, created_at;`
	return r.findOne(ctx, tx, q, userID)
}

func (r *creatorRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.Creator, error) {
	return r.findOne(ctx, tx, `SELECT id, user_id, created_at FROM creators WHERE user_id=$1;`, userID)
}

func (r *creatorRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Creator, error) {
	return r.findOne(ctx, tx, `SELECT id, user_id, created_at FROM creators WHERE id=$1;`, id)
}

func (r *creatorRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Creator, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var c model.Creator
	if err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt); err != nil {
		return nil, scanErr(err, domain.ErrCreatorNotFound)
	}
	return &c, nil
}
