package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"washplan/internal/api"
	"washplan/internal/cache"
	"washplan/internal/config"
	"washplan/internal/database"
	"washplan/internal/metrics"
	"washplan/internal/notify"
	"washplan/internal/remind"
	"washplan/internal/report"
	"washplan/internal/scheduling"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("WASHPLAN_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules := cfg.Rules()

	hours := db.Hours()
	resources := db.Resources()
	slots := db.Slots()
	capacity := db.Capacity()
	conflictLog := db.ConflictLog()
	bookings := db.Bookings()

	calendar := scheduling.NewCalendar(hours, logger)
	generator := scheduling.NewGenerator(calendar, slots, logger)
	detector := scheduling.NewDetector(calendar, resources, slots, rules, logger)
	allocator := scheduling.NewAllocator(capacity, resources, logger)
	suggester := scheduling.NewSuggester()
	search := scheduling.NewSearch(calendar, resources, slots, generator, suggester, conflictLog, rules, logger)
	booker := scheduling.NewBooker(detector, allocator, slots, bookings, logger)

	searchCache := cache.NewAvailabilitySearchCache(search, rdb, cfg.CacheTTL(), logger)

	notifyPorts := []notify.Port{notify.NewLogNotifier(logger)}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram connect error")
		}
		notifyPorts = append(notifyPorts, tg)
	}
	notifier := notify.NewMulti(notifyPorts...)

	coordinator := scheduling.NewCoordinator(detector, booker, calendar, resources, slots, bookings, notifier, rules, logger)

	reporter := report.NewGenerator(bookings, resources, capacity, conflictLog, cfg.Reports.Dir, logger)
	go runDailyReports(ctx, reporter, &logger)

	if cfg.Reminders.Enabled {
		reminders := remind.NewScheduler(remind.Config{
			Horizon:       time.Duration(cfg.Reminders.HorizonHours) * time.Hour,
			CheckInterval: time.Duration(cfg.Reminders.CheckIntervalMinutes) * time.Minute,
		}, bookings, notifier, logger)
		go reminders.Run(ctx)
	}

	backup := database.NewBackupService(db.Path(), cfg.Backup, logger)
	go backup.Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	handler := api.NewServer(searchCache, booker, coordinator, bookings, searchCache, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("washplan started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

// runDailyReports writes yesterday's workbook shortly after midnight.
func runDailyReports(ctx context.Context, reporter *report.Generator, logger *zerolog.Logger) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 15, 0, 0, now.Location()).AddDate(0, 0, 1)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := reporter.GenerateDaily(ctx, time.Now().AddDate(0, 0, -1)); err != nil {
				logger.Error().Err(err).Msg("daily report failed")
			}
		}
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
