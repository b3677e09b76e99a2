package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/auth"
	"github.com/ferreirogomes/nftmarket/config"
	"github.com/ferreirogomes/nftmarket/handlers"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := newLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.WithField("level", cfg.Log.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (storage.Store, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewDB(ctx, cfg.Database.DSN, log)
}

func newMailer(cfg *config.Config, log logrus.FieldLogger) notifications.Mailer {
	if cfg.SMTP.Host == "" {
		log.Info("smtp host not set, emails are logged instead of sent")
		return notifications.LogMailer{Log: log}
	}
	return notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	if err != nil {
		return err
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return err
	}
	dispatcher := notifications.NewDispatcher(newMailer(cfg, log), renderer, cfg.Notifications.QueueSize, cfg.Notifications.Workers, log)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	retries := cfg.Settlement.RetryAttempts
	svc := handlers.Services{
		Accounts:   services.NewAccountService(store, issuer, dispatcher, cfg.Security.BcryptCost, log),
		Catalog:    services.NewCatalogService(store, log, retries),
		Categories: services.NewCategoryService(store, log),
		Settlement: services.NewSettlementService(store, dispatcher, log, retries),
		Funding:    services.NewFundingService(store, dispatcher, log, retries),
		Settings:   services.NewSettingsService(store, log),
		Ledger:     services.NewLedgerService(store, log),
		Newsletter: services.NewNewsletterService(store, dispatcher, log),
		Admin:      services.NewAdminService(store, dispatcher, log),
	}

	if err := svc.Accounts.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return err
	}

	limiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute, log)

	sched, err := newScheduler(cfg.Scheduler, svc.Admin, limiter, log)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Services: svc,
			Issuer:   issuer,
			Store:    store,
			Limiter:  limiter,
			Log:      log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.Server.Env}).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
