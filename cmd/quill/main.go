package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/api"
	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/config"
	"github.com/quillcms/quill/pkg/logs"
	"github.com/quillcms/quill/pkg/observability"
	"github.com/quillcms/quill/pkg/storage"
)

const defaultRootPassword = "123456"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	server, err := api.NewServer(db, cfg, logger, metrics)
	if err != nil {
		return err
	}

	if err := seed(ctx, cfg, server, logger); err != nil {
		return err
	}

	// Reconcile declared route permissions into storage. Boot stops here
	// on failure; serving with a half-synced permission table is worse
	// than not serving.
	synchronizer := access.NewSynchronizer(db, server.Registry(), logger, metrics)
	if err := synchronizer.Synchronize(ctx); err != nil {
		return err
	}

	scheduler := cron.New()
	sweeper := logs.NewSweeper(server.LogStore(), cfg.Logs.RetentionDays, logger)
	if _, err := scheduler.AddFunc(cfg.Logs.SweepSchedule, func() { sweeper.Sweep(context.Background()) }); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		if err := server.AuthService().PurgeExpiredTokens(context.Background()); err != nil {
			logger.WithError(err).Error("token purge failed")
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	mainServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: api.HealthRouter(db, promRegistry, cfg.Observability.MetricsEnabled),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", mainServer.Addr).Info("http server listening")
		if err := mainServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		healthServer.Shutdown(shutdownCtx)
		return mainServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// seed ensures the protected groups and the root account exist
func seed(ctx context.Context, cfg *config.Config, server *api.Server, logger *observability.Logger) error {
	rootGroup, _, err := access.SeedGroups(ctx, server.AccessStore(), logger)
	if err != nil {
		return err
	}

	authService := server.AuthService()
	existing, err := authService.Store().GetUserByUsername(ctx, "root")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	password := cfg.Auth.RootPassword
	if password == "" {
		password = defaultRootPassword
		logger.Warn("root account created with the default password, change it immediately")
	}
	root := &auth.User{Username: "root"}
	return authService.CreateUser(ctx, root, password, []int64{rootGroup.ID})
}
