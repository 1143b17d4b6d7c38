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

var _ repository.PayoutRepository = (*payoutRepo)(nil)

// FieldCipher encrypts sensitive columns at rest.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

const payoutColumns = `id, creator_id, amount, card_number, status, requested_at, processed_at, admin_note`

type payoutRepo struct {
	pool   *pgxpool.Pool
	cipher FieldCipher
}

// NewPayoutRepo stores card numbers through cipher; a nil cipher stores them as is.
func NewPayoutRepo(pool *pgxpool.Pool, cipher FieldCipher) *payoutRepo {
	return &payoutRepo{pool: pool, cipher: cipher}
}

func (r *payoutRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	card := p.CardNumber
	if r.cipher != nil {
		sealed, err := r.cipher.Encrypt(card)
		if err != nil {
			return domain.ErrOperationFailed
		}
		card = sealed
	}
	const q = `
INSERT INTO payouts (creator_id, amount, card_number, status, requested_at, admin_note)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, p.CreatorID, p.Amount, card, string(p.Status), p.RequestedAt, p.AdminNote)
	if err != nil {
		return err
	}
	if err := row.Scan(&p.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

// FindByID locks the row when called inside a transaction.
func (r *payoutRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Payout, error) {
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE id=$1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q+`;`, id)
	if err != nil {
		return nil, err
	}
	p, err := r.scan(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrPayoutNotFound)
	}
	return p, nil
}

func (r *payoutRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, from, to model.PayoutStatus, note string, at time.Time) (bool, error) {
	const q = `
UPDATE payouts SET status=$3, admin_note=$4, processed_at=$5
 WHERE id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to), note, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *payoutRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64, since time.Time, limit int) ([]*model.Payout, error) {
	const q = `SELECT ` + payoutColumns + `
  FROM payouts
 WHERE creator_id=$1 AND requested_at >= $2
 ORDER BY requested_at DESC, id DESC
 LIMIT $3;`
	return r.list(ctx, tx, q, creatorID, since, limitOr(limit, 50))
}

func (r *payoutRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.PayoutStatus, limit int) ([]*model.Payout, error) {
	const q = `SELECT ` + payoutColumns + `
  FROM payouts
 WHERE status=$1
 ORDER BY requested_at ASC, id ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, string(status), limitOr(limit, 100))
}

func (r *payoutRepo) SumByCreator(ctx context.Context, tx repository.Tx, creatorID int64, statuses []model.PayoutStatus, excludeID int64) (int64, error) {
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}
	const q = `
SELECT COALESCE(SUM(amount), 0)
  FROM payouts
 WHERE creator_id=$1 AND status = ANY($2) AND id <> $3;`
	row, err := pickRow(ctx, r.pool, tx, q, creatorID, ss, excludeID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, scanErr(err, domain.ErrReadDatabaseRow)
	}
	return sum, nil
}

func (r *payoutRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payout, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(rows pgx.Rows) (*model.Payout, error) {
		p, err := r.scan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		return p, nil
	})
}

func (r *payoutRepo) scan(row pgx.Row) (*model.Payout, error) {
	var (
		p      model.Payout
		status string
	)
	if err := row.Scan(&p.ID, &p.CreatorID, &p.Amount, &p.CardNumber, &status, &p.RequestedAt, &p.ProcessedAt, &p.AdminNote); err != nil {
		return nil, err
	}
	p.Status = model.PayoutStatus(status)
	if r.cipher != nil {
		card, err := r.cipher.Decrypt(p.CardNumber)
		if err != nil {
			return nil, err
		}
		p.CardNumber = card
	}
	return &p, nil
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
