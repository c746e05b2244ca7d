package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"roombook/internal/availability"
	"roombook/internal/backup"
	"roombook/internal/config"
	"roombook/internal/events"
	"roombook/internal/icalfeed"
	"roombook/internal/logging"
	"roombook/internal/manager"
	"roombook/internal/metrics"
	"roombook/internal/notify"
	"roombook/internal/server"
	"roombook/internal/store"
	"roombook/shared/access"
	"roombook/shared/audit"
	"roombook/shared/reminders"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ROOMBOOK_CONFIG_PATH"))
	if err != nil {
		boot := logging.New(os.Stdout, "info")
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(os.Stdout, cfg.Log.Level)
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.Database.Path, loc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	if err := db.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email); err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap admin account")
	}

	err = config.WatchCatalog(ctx, cfg.CatalogPath, 30*time.Second,
		func(c *config.Catalog) error {
			if err := db.SyncCatalog(ctx, c); err != nil {
				return err
			}
			logger.Info().Int("floors", len(c.Floors)).Msg("Room catalog applied")
			return nil
		},
		func(err error) {
			logger.Error().Err(err).Msg("Room catalog reload failed")
		})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load room catalog")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	bus := events.NewBus(logger)
	notifier := notify.New(newSender(cfg, logger), cfg.Telegram.AdminChatIDs, loc, cfg.Server.PublicURL, logger)
	notifier.Subscribe(bus)

	svc := manager.NewService(
		db, db,
		access.NewService(logger),
		availability.NewEngine(loc),
		bus,
		manager.Options{AutoApproveRegular: cfg.Booking.AutoApproveRegular},
		logger,
	)

	reports := audit.NewService(
		&audit.Config{DataRetentionDays: cfg.Export.DataRetentionDays, Title: "roombook", Dir: cfg.Export.Path},
		db, nil, notifier, db, logging.Adapt(logger),
	)

	scheduler := cron.New(cron.WithLocation(loc))
	if cfg.Export.Enabled {
		if _, err := reports.Schedule(scheduler, cfg.Export.Schedule); err != nil {
			logger.Fatal().Err(err).Msg("invalid export schedule")
		}
	}
	backups := backup.NewService(db, cfg.Backup, &logger)
	if err := backups.Schedule(ctx, scheduler); err != nil {
		logger.Fatal().Err(err).Msg("invalid backup schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Reminders.Enabled {
		reminder := reminders.NewService(
			&reminders.Config{
				CheckInterval: cfg.ReminderInterval(),
				HoursBefore:   cfg.Reminders.HoursBefore,
			},
			db, notifier,
			reminders.NewMetrics("roombook", prometheus.DefaultRegisterer),
			logging.Adapt(logger),
		)
		reminder.Start(ctx)
		defer reminder.Stop()
	}

	go purgeTokens(ctx, db, time.Hour, logger)

	if cfg.Monitoring.HealthCheckPort != 0 {
		go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)
	}

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := server.New(cfg, server.Deps{
		DB:       db,
		Bookings: svc,
		Reports:  reports,
		Feed:     icalfeed.New("Room bookings", feedDomain(cfg), loc),
		Redis:    rdb,
	}, logger)

	logger.Info().Int("port", cfg.Server.Port).Str("timezone", loc.String()).Msg("Room booking service started")
	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}
}

func newSender(cfg *config.Config, logger zerolog.Logger) notify.Sender {
	if cfg.Telegram.BotToken == "" {
		logger.Warn().Msg("telegram.bot_token is empty, notifications will only be logged")
		return notify.NewLogSender(logger)
	}
	sender, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.Debug, logger)
	if err != nil {
		logger.Error().Err(err).Msg("telegram unavailable, falling back to log sender")
		return notify.NewLogSender(logger)
	}
	return sender
}

func feedDomain(cfg *config.Config) string {
	if u, err := url.Parse(cfg.Server.PublicURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "roombook.local"
}

func purgeTokens(ctx context.Context, db *store.DB, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to purge expired tokens")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("count", n).Msg("Expired tokens purged")
			}
		}
	}
}

func startHealthServer(ctx context.Context, port int, db *store.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.HealthCheck(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "metrics", logger)
}

func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}
