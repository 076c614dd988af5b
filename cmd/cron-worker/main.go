package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vendorlution-backend/internal/bootstrap"
	"github.com/angelmondragon/vendorlution-backend/internal/cron"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/metrics"
	"github.com/angelmondragon/vendorlution-backend/pkg/migrate"
	"github.com/angelmondragon/vendorlution-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("jobs", "", "comma separated job names to run (default all)")
	flag.Parse()

	if err := run(*once, splitJobs(*only)); err != nil {
		os.Exit(1)
	}
}

func splitJobs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func run(once bool, only []string) error {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	svcs, err := bootstrap.Build(bootstrap.Params{
		Config:  cfg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: metrics.NewMoneyMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		return err
	}

	registry, err := buildRegistry(cfg, logg, svcs)
	if err == nil {
		registry, err = registry.Select(only...)
	}
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"interval": cfg.Cron.Interval.String(),
		"jobs":     registry.Names(),
	})

	if once {
		logg.Info(ctx, "running single cron cycle")
		report, err := service.RunOnce(ctx)
		if err == nil {
			err = report.Err
		}
		if err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			return err
		}
		return nil
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, svcs *bootstrap.Services) (*cron.Registry, error) {
	autoRelease, err := cron.NewAutoReleaseJob(cron.AutoReleaseJobParams{
		Logger: logg,
		Escrow: svcs.Escrow,
		Batch:  cfg.Escrow.AutoReleaseBatch,
		DryRun: cfg.Escrow.AutoReleaseDryRun,
	})
	if err != nil {
		return nil, err
	}
	staleIntents, err := cron.NewStaleIntentJob(cron.StaleIntentJobParams{
		Logger:     logg,
		Intents:    svcs.Intents,
		StaleAfter: cfg.Intents.StaleAfter,
		Batch:      cfg.Intents.SweepBatch,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Repository:    svcs.Outbox,
		RetentionDays: cfg.Outbox.RetentionDays,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(autoRelease, staleIntents, retention)
}
