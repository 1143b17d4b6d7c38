package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-channel-paywall/internal/application"
	"telegram-channel-paywall/internal/config"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	payAdapters "telegram-channel-paywall/internal/infra/adapters/payment"
	tele "telegram-channel-paywall/internal/infra/adapters/telegram"
	"telegram-channel-paywall/internal/infra/api"
	pg "telegram-channel-paywall/internal/infra/db/postgres"
	"telegram-channel-paywall/internal/infra/i18n"
	"telegram-channel-paywall/internal/infra/logging"
	"telegram-channel-paywall/internal/infra/metrics"
	red "telegram-channel-paywall/internal/infra/redis"
	"telegram-channel-paywall/internal/infra/sched"
	"telegram-channel-paywall/internal/infra/security"
	"telegram-channel-paywall/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = ""
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, noop payment gateway without a TsPay token")
	printToken := flag.Bool("admin-token", false, "print a signed admin API token and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *printToken {
		tok, err := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint("cli")
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("paywall stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting paywall")

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	limiter := red.NewRateLimiter(redisClient)
	stateRepo := red.NewStateRepo(redisClient, cfg.Redis.SessionTTL)
	sweepQueue := red.NewJobQueue(redisClient, cfg.Scheduler.SweepQueueKey)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if encKey == "" {
		if !cfg.Runtime.Dev {
			return errors.New("security.encryption_key is required outside dev mode")
		}
		logger.Warn().Msg("security.encryption_key not set; using the dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	cardCipher, err := security.NewCardCipher(encKey)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	creatorRepo := pg.NewCreatorRepo(pool)
	channelRepo := pg.NewChannelRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	subRepo := pg.NewSubscriptionRepo(pool)
	partnerRepo := pg.NewPartnerRepo(pool)
	previewRepo := pg.NewPreviewRepo(pool)
	bundleRepo := pg.NewBundleRepo(pool)
	bundleSubRepo := pg.NewBundleSubscriptionRepo(pool)
	ledgerRepo := pg.NewLedgerRepo(pool)
	payoutRepo := pg.NewPayoutRepo(pool, cardCipher)
	statsRepo := pg.NewStatsRepo(pool)

	// ---- Adapters ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	client, err := tele.NewClient(cfg.Bot.Token, cfg.Bot.LogChannelID, logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	botUsername, err := client.DeepLinkUsername(ctx, cfg.Bot.Username)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	var gateway adapter.PaymentGateway
	if cfg.Payment.TsPay.AccessToken == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("payment.tspay.access_token not set; every payment is auto-confirmed (dev)")
		gateway = payAdapters.NewNoopPaymentGateway()
	} else {
		gateway, err = payAdapters.NewTsPayGateway(cfg.Payment.TsPay, logger)
		if err != nil {
			return fmt.Errorf("tspay: %w", err)
		}
	}

	// ---- Use cases ----
	creatorUC := usecase.NewCreatorUseCase(tm, userRepo, creatorRepo, channelRepo, planRepo, bundleRepo, client, logger)
	activationUC := usecase.NewActivationUseCase(tm, usecase.ActivationStores{
		Users:      userRepo,
		Plans:      planRepo,
		Channels:   channelRepo,
		Subs:       subRepo,
		Partners:   partnerRepo,
		Previews:   previewRepo,
		Bundles:    bundleRepo,
		BundleSubs: bundleSubRepo,
	}, client, logger)
	ledgerUC := usecase.NewLedgerUseCase(tm, subRepo, creatorRepo, ledgerRepo, cfg.Ledger.PlatformPercent, logger)
	partnerUC := usecase.NewPartnerUseCase(userRepo, creatorRepo, channelRepo, partnerRepo, statsRepo, client, tr, cfg.Ledger.DefaultPartnerRate, botUsername, logger)
	previewUC := usecase.NewPreviewUseCase(userRepo, channelRepo, subRepo, previewRepo, client, client, tr, logger)
	paymentUC := usecase.NewPaymentUseCase(planRepo, channelRepo, bundleRepo, gateway, limiter,
		cfg.Payment.CheckLimit, cfg.Payment.CheckWindow, cfg.Payment.TsPay.RedirectURL, logger)
	payoutUC := usecase.NewPayoutUseCase(tm, userRepo, creatorRepo, ledgerRepo, payoutRepo, client, client, tr, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, creatorRepo, statsRepo, client, logger)
	sweepUC := usecase.NewSweepUseCase(subRepo, bundleSubRepo, previewUC, client, client, client, tr, logger)

	checkout := application.NewCheckoutFacade(paymentUC, activationUC, ledgerUC, stateRepo, gateway.Name(), logger)

	// ---- Telegram bot ----
	bot, err := tele.NewBot(client, tele.Deps{
		Users:      userRepo,
		State:      stateRepo,
		Creators:   creatorUC,
		Partners:   partnerUC,
		Previews:   previewUC,
		Activation: activationUC,
		Payouts:    payoutUC,
		Stats:      statsUC,
		Checkout:   checkout,
		Limiter:    limiter,
		Translator: tr,
	}, cfg.Bot.AdminIDs, cfg.Bot.Workers, logger)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}

	// ---- Workers ----
	sweeper := sched.NewSweepWorker(cfg.Scheduler.SweepInterval, cfg.Scheduler.SweepTimeout, sweepUC, red.NewLocker(redisClient), logger)
	queueWorker := sched.NewQueueWorker(sweepQueue, sweeper, logger)
	reportWorker := sched.NewReportWorker(cfg.Scheduler.ReportHours, cfg.Scheduler.ReportTZ, statsUC, redisClient, logger)

	// ---- Admin API ----
	server := api.NewServer(api.Deps{
		Payouts: payoutUC,
		Stats:   statsUC,
		Sweeper: sweeper,
		Queue:   sweepQueue,
		Checks: map[string]api.HealthCheck{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    redisClient.Ping,
		},
	}, api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.StartPolling(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return queueWorker.Run(gctx) })
	g.Go(func() error { return reportWorker.Run(gctx) })
	g.Go(func() error {
		metrics.WatchPool(gctx, pool, 15*time.Second)
		return nil
	})
	g.Go(func() error { return server.Start(cfg.Admin.Port) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})
	return g.Wait()
}
