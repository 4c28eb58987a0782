package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/alert"
	"github.com/reporttrack/internal/api"
	"github.com/reporttrack/internal/auth"
	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/config"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/logger"
	"github.com/reporttrack/internal/metrics"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/notify"
	"github.com/reporttrack/internal/recurrence"
	"github.com/reporttrack/internal/report"
	"github.com/reporttrack/internal/scheduler"
	"github.com/reporttrack/internal/storage"
	"github.com/reporttrack/internal/tracking"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load(os.Getenv("REPORTTRACK_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.Database.Debug,
	}, zl)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	store := database.NewStore(db)
	m := metrics.New()
	clk := clock.Real{Location: cfg.Location()}

	authenticator := auth.New(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err := bootstrapAdmin(ctx, store, cfg, zl); err != nil {
		return err
	}

	notifier := notify.NewMulti(m)
	if cfg.Alert.Email.SMTPHost != "" {
		notifier.Add("email", notify.NewEmailNotifier(notify.EmailConfig{
			SMTPHost: cfg.Alert.Email.SMTPHost,
			SMTPPort: cfg.Alert.Email.SMTPPort,
			Username: cfg.Alert.Email.Username,
			Password: cfg.Alert.Email.Password,
			From:     cfg.Alert.Email.From,
		}))
	}
	if cfg.Alert.Slack.Token != "" {
		notifier.Add("slack", notify.NewSlackNotifier(cfg.Alert.Slack.Token, cfg.Alert.Slack.Channel))
	}
	if notifier.Len() == 0 {
		notifier.Add("log", notify.NewLogNotifier(zl))
	}

	files := storage.NewFileStore(afero.NewOsFs(), cfg.Storage.Root, cfg.Storage.BaseURL)
	generator := recurrence.NewGenerator(store, zl, m)
	definitions := tracking.NewDefinitionService(store, generator, clk, zl, cfg.Generation.HorizonMonths)
	instances := tracking.NewInstanceService(store, files, notifier, clk, zl)

	alerts := alert.NewScheduler(store, notifier, clk, zl, m)
	alertTypes := alert.NewTypeManager(store, afero.NewOsFs())
	if created, err := alertTypes.CreateDefaultTypes(ctx); err != nil {
		zl.Warn("Failed to create default alert types", zap.Error(err))
	} else if created {
		zl.Info("Default alert types created")
	}

	aggregator := report.NewAggregator(store, clk)
	digest := report.NewDigestGenerator(aggregator, notifier, cfg.Digest.Recipients, zl).WithSupervisors()

	jobs := scheduler.New(cfg.Location(), zl, m)
	for _, job := range []scheduler.Job{
		{
			Name:     "alert-sweep",
			Schedule: cfg.Scheduler.SweepCron,
			Run: func(ctx context.Context) error {
				_, err := alerts.RunDailySweep(ctx)
				return err
			},
		},
		{
			Name:     "instance-generation",
			Schedule: cfg.Scheduler.GenerationCron,
			Run: func(ctx context.Context) error {
				_, err := definitions.CatchUp(ctx)
				return err
			},
		},
		{
			Name:     "compliance-digest",
			Schedule: cfg.Scheduler.DigestCron,
			Run: func(ctx context.Context) error {
				_, err := digest.Send(ctx)
				return err
			},
		},
	} {
		if err := jobs.Add(job); err != nil {
			return err
		}
	}
	jobs.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := jobs.Stop(stopCtx); err != nil {
			zl.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}()

	// Initialize and start API server
	server := api.NewServer(api.Services{
		Store:       store,
		Auth:        authenticator,
		Definitions: definitions,
		Instances:   instances,
		Alerts:      alerts,
		AlertTypes:  alertTypes,
		Inbox:       alert.NewInbox(store, clk),
		Aggregator:  aggregator,
		Digest:      digest,
		Files:       files,
		Jobs:        jobs,
		Metrics:     m,
	}, zl)
	return server.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}

// bootstrapAdmin creates the configured admin account on first start.
func bootstrapAdmin(ctx context.Context, store *database.Store, cfg *config.Config, zl *zap.Logger) error {
	if cfg.Auth.AdminPassword == "" {
		return nil
	}
	_, err := store.GetUserByUsername(ctx, cfg.Auth.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	admin := &models.User{
		Username: cfg.Auth.AdminUsername,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
		Email:    cfg.Auth.AdminEmail,
		IsActive: true,
	}
	if err := admin.SetPassword(cfg.Auth.AdminPassword); err != nil {
		return err
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	zl.Info("Admin user created", zap.String("username", admin.Username))
	return nil
}
