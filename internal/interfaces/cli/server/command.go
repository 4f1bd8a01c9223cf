// Package server wires every application component together and runs the
// HTTP API plus the background scheduler, grounded on the teacher's own
// server command package.
package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/config"
	"github.com/moguard/panel/internal/httpapi"
	"github.com/moguard/panel/internal/linkgen"
	"github.com/moguard/panel/internal/notify"
	"github.com/moguard/panel/internal/reachedtracker"
	"github.com/moguard/panel/internal/reconciler"
	"github.com/moguard/panel/internal/scheduler"
	"github.com/moguard/panel/internal/shared/logger"
	"github.com/moguard/panel/internal/store"
	"github.com/moguard/panel/internal/usageengine"
)

var configPath string

// NewCommand builds the `serve` command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the panel HTTP API and background scheduler",
		RunE:  run,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	db, err := store.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	admins := store.NewAdminRepository(db)
	nodes := store.NewNodeRepository(db)
	services := store.NewServiceRepository(db)
	subs := store.NewSubscriptionRepository(db)
	usageRepo := store.NewUsageRepository(db)
	renewals := store.NewAutoRenewalRepository(db)

	adminCache := cache.NewAdminCache(50 * time.Minute)
	if list, err := admins.List(context.Background()); err != nil {
		logger.Warn("failed to warm admin cache", zap.Error(err))
	} else {
		adminCache.Replace(list)
	}

	configCache := cache.NewConfigCache()
	linksCache := cache.NewLinksCache()

	var redisShare *cache.RedisShare
	if cfg.Redis.Addr != "" {
		redisShare = cache.NewRedisShare(redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
		}))
	}

	notifier := notify.New(cfg.Notify.QueueSize, adminCache)

	reporter := usageengine.NewReporter(cfg.ReportingLicenseKey, cfg.ReportingSecretKey)
	usage := usageengine.New(usageRepo, subs, admins, reporter)

	recon := reconciler.New(nodes, services, subs, usage, configCache, linksCache, notifier)
	if redisShare != nil {
		recon = recon.WithRedisShare(redisShare)
	}

	tracker := reachedtracker.New(subs, renewals, admins, notifier)
	gen := linkgen.New(nodes, services, linksCache)

	sched, err := scheduler.New(cfg.Scheduler, nodes, recon, usage, tracker)
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}

	apiServer := httpapi.NewServer(&cfg.Auth, admins, nodes, services, subs, linksCache, gen, notifier)

	sched.Start()
	logger.Info("scheduler started")

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// httpCtx is cancelled only after the scheduler has fully stopped, so an
	// in-flight reconciler tick never races a half-shutdown HTTP server (§5
	// "scheduler stops before the HTTP listener").
	httpCtx, cancelHTTP := context.WithCancel(context.Background())
	defer cancelHTTP()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.HTTP.BindAddr))
		errCh <- apiServer.Run(httpCtx, cfg.HTTP.BindAddr)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server exited with error", zap.Error(err))
		}
		return err
	}

	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
	cancelHTTP()

	if err := <-errCh; err != nil {
		return err
	}
	return nil
}
