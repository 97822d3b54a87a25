package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pitchbook/internal/api"
	"pitchbook/internal/availability"
	"pitchbook/internal/booking"
	"pitchbook/internal/config"
	"pitchbook/internal/database"
	"pitchbook/internal/events"
	"pitchbook/internal/metrics"
	"pitchbook/internal/notify"
	"pitchbook/internal/payment"
	"pitchbook/internal/sheets"
	"pitchbook/internal/sweeper"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("PITCHBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	recorder := metrics.Recorder{}

	bookingCfg := booking.Config{
		PendingTTL:     cfg.PendingTTL(),
		NightStartHour:  cfg.Booking.NightStartHour,
		NightEndHour:    cfg.Booking.NightEndHour,
		HourlyRate:      cfg.Booking.HourlyRate,
		NightHourlyRate: cfg.Booking.NightHourlyRate,
	}
	bookingSvc := booking.NewService(db, bus, recorder, bookingCfg, &logger)
	paymentSvc := payment.NewService(db, bus, recorder, &logger)

	checker := availability.NewChecker(db, &logger)
	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		checker.UseRedisCache(rdb, cfg.AvailabilityCacheTTL())
	}

	// Keep the cached day grids in step with booking mutations.
	for _, t := range []string{
		events.TypeBookingCreated,
		events.TypeBookingApproved,
		events.TypeBookingCancelled,
	} {
		bus.Subscribe(t, func(ev events.Event) error {
			return checker.InvalidateFromEvent(ev.Payload)
		})
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		RatePerSecond: cfg.Notifications.RatePerSecond,
		Burst:         cfg.Notifications.Burst,
	}, &logger, notify.LogNotifier{Logger: &logger})
	dispatcher.SubscribeTo(bus)

	if cfg.Sheets.Enabled {
		ledger, err := sheets.NewLedger(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets ledger disabled")
		} else {
			bus.Subscribe(events.TypeBookingCreated, func(ev events.Event) error {
				var body struct {
					BookingID int64 `json:"booking_id"`
				}
				if err := json.Unmarshal(ev.Payload, &body); err != nil {
					return err
				}
				b, err := db.GetBooking(ctx, body.BookingID)
				if err != nil {
					return err
				}
				return ledger.AppendBooking(ctx, b)
			})
		}
	}

	sw := sweeper.New(bookingSvc, cfg.SweepInterval(), &logger)
	go sw.Run(ctx)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db.Path(), cfg.Backup, &logger)
		go backup.Start(ctx)
	}

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

	server := api.NewHTTPServer(cfg.Server.Address, bookingSvc, paymentSvc, checker, db, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctxShutdown)
	}()

	logger.Info().Msg("pitchbook started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
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
