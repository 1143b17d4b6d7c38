package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/config"
	"telegram-channel-paywall/internal/domain/model"
	tele "telegram-channel-paywall/internal/infra/adapters/telegram"
	pg "telegram-channel-paywall/internal/infra/db/postgres"
	"telegram-channel-paywall/internal/infra/logging"
	"telegram-channel-paywall/internal/usecase"
)

// seed creates a demo creator with two channels, plans and a bundle so the
// bot can be exercised end to end. Telegram is not called: channel admin
// checks go through the noop client.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	ownerTg := flag.Int64("owner", 100000001, "telegram id of the demo creator")
	reset := flag.Bool("reset", false, "truncate every table before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	if *reset {
		if err := truncate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("reset")
		}
		logger.Info().Msg("all tables truncated")
	}

	if err := seed(ctx, pool, *ownerTg, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
}

func truncate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE
			payouts, creator_balances, bundle_transactions, transactions,
			preview_access, bundle_subscriptions, subscriptions, partners,
			bundle_plans, bundle_channels, bundles, subscription_plans,
			channels, creators, users
		RESTART IDENTITY CASCADE;
	`)
	return err
}

func seed(ctx context.Context, pool *pgxpool.Pool, ownerTg int64, logger *zerolog.Logger) error {
	creators := usecase.NewCreatorUseCase(
		pg.NewTxManager(pool),
		pg.NewUserRepo(pool),
		pg.NewCreatorRepo(pool),
		pg.NewChannelRepo(pool),
		pg.NewPlanRepo(pool),
		pg.NewBundleRepo(pool),
		tele.NewNoopClient(logger),
		logger,
	)

	existing, err := creators.ListChannels(ctx, ownerTg)
	if err == nil && len(existing) > 0 {
		fmt.Printf("%d channels already present for %d. No changes.\n", len(existing), ownerTg)
		for _, c := range existing {
			fmt.Printf("  - #%d %s (tg=%d)\n", c.ID, c.Title, c.TelegramChannelID)
		}
		return nil
	}

	owner := model.UserProfile{TelegramID: ownerTg, Username: "demo_creator", FirstName: "Demo"}
	channels := []struct {
		tgID  int64
		title string
	}{
		{-1001000000001, "Demo Premium"},
		{-1001000000002, "Demo Signals"},
	}
	var ids []int64
	for _, c := range channels {
		ch, err := creators.RegisterChannel(ctx, owner, c.tgID, c.title)
		if err != nil {
			return fmt.Errorf("register %q: %w", c.title, err)
		}
		ids = append(ids, ch.ID)

		for _, p := range []struct {
			name  string
			price int64
			d     model.Duration
		}{
			{"Weekly", 15_000, model.Days(7)},
			{"Monthly", 50_000, model.Days(30)},
		} {
			plan, err := creators.CreatePlan(ctx, ownerTg, ch.ID, p.name, p.price, p.d)
			if err != nil {
				return fmt.Errorf("plan %q: %w", p.name, err)
			}
			fmt.Printf("seeded plan: %s / %s (id=%d, %s, price=%d)\n", ch.Title, plan.Name, plan.ID, p.d, plan.Price)
		}
		if _, err := creators.SetPreview(ctx, ownerTg, ch.ID, 10); err != nil {
			return fmt.Errorf("preview %q: %w", c.title, err)
		}
		fmt.Printf("seeded channel: #%d %s  deep link: ?start=c_%d\n", ch.ID, ch.Title, ch.ID)
	}

	b, err := creators.CreateBundle(ctx, ownerTg, "Demo All Access", ids)
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	bp, err := creators.CreateBundlePlan(ctx, ownerTg, b.ID, "Monthly", 80_000, model.Days(30))
	if err != nil {
		return fmt.Errorf("bundle plan: %w", err)
	}
	fmt.Printf("seeded bundle: #%d %s plan=%d  deep link: ?start=b_%d\n", b.ID, b.Title, bp.ID, b.ID)
	fmt.Println("Seeding complete.")
	return nil
}
