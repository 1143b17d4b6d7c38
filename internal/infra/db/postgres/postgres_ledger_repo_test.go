//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

func TestLedgerRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewLedgerRepo(testPool)
	txm := NewTxManager(testPool)

	t.Run("should return zero for a creator without a balance row", func(t *testing.T) {
		f := seed(t)
		b, err := repo.GetBalance(ctx, nil, f.creator.ID)
		if err != nil || b != 0 {
			t.Fatalf("expected 0, but got: %d %v", b, err)
		}
	})

	t.Run("should upsert increments and guard decrements", func(t *testing.T) {
		f := seed(t)
		if err := repo.IncrementBalance(ctx, nil, f.creator.ID, 20000); err != nil {
			t.Fatalf("IncrementBalance failed: %v", err)
		}
		if err := repo.IncrementBalance(ctx, nil, f.creator.ID, 5000); err != nil {
			t.Fatalf("IncrementBalance failed: %v", err)
		}
		if err := repo.DecrementBalance(ctx, nil, f.creator.ID, 30000); !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, but got: %v", err)
		}
		if err := repo.DecrementBalance(ctx, nil, f.creator.ID, 15000); err != nil {
			t.Fatalf("DecrementBalance failed: %v", err)
		}
		if b, _ := repo.GetBalance(ctx, nil, f.creator.ID); b != 10000 {
			t.Fatalf("expected 10000, but got: %d", b)
		}
	})

	t.Run("should keep one transaction per subscription", func(t *testing.T) {
		f := seed(t)
		s := f.subscription(t, "pay-l", model.SubscriptionStatusActive, time.Now().Add(time.Hour))
		tr := &model.Transaction{SubscriptionID: s.ID, FeeSplit: model.ComputeSplit(50000, 0.05, 0),
			Status: model.TransactionStatusCompleted, CreatedAt: time.Now()}
		if err := repo.InsertTransaction(ctx, nil, tr); err != nil {
			t.Fatalf("InsertTransaction failed: %v", err)
		}
		again := *tr
		again.ID = 0
		if err := repo.InsertTransaction(ctx, nil, &again); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, but got: %v", err)
		}
		found, err := repo.FindTransactionBySubscription(ctx, nil, s.ID)
		if err != nil || found.CreatorShare != 45000 {
			t.Fatalf("unexpected transaction: %+v %v", found, err)
		}
	})

	t.Run("should roll back the balance when the transaction fails", func(t *testing.T) {
		f := seed(t)
		boom := errors.New("boom")
		err := txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := repo.IncrementBalance(ctx, tx, f.creator.ID, 45000); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, but got: %v", err)
		}
		if b, _ := repo.GetBalance(ctx, nil, f.creator.ID); b != 0 {
			t.Fatalf("expected the increment to be rolled back, but got: %d", b)
		}
	})
}
