package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingsync/internal/cache"
	"bookingsync/internal/config"
	"bookingsync/internal/connectivity"
	"bookingsync/internal/database"
	"bookingsync/internal/domain"
	"bookingsync/internal/export"
	"bookingsync/internal/fetch"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
	"bookingsync/internal/notify"
	"bookingsync/internal/queue"
	"bookingsync/internal/reconcile"
	"bookingsync/internal/repository"
	"bookingsync/internal/service"
	"bookingsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	db, err := database.NewDB(cfg.Database.Path, logging.Component(&logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	kv, err := initKVStore(cfg, db, redisClient, &logger)
	if err != nil {
		return err
	}

	faults := notify.LogFaults(logging.Component(&logger, "faults"))
	notifier := initNotifier(cfg, faults, &logger)

	readCache := cache.New(cfg.Cache.TTL)
	go purgeCache(ctx, readCache, cfg.Cache.PurgeInterval, &logger)

	offlineQueue := queue.New(kv, logging.Component(&logger, "queue"))
	sw := connectivity.NewSwitch(false)
	prober := connectivity.NewProber(sw, db.Ping, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout, logging.Component(&logger, "connectivity"))
	prober.Probe(ctx)
	go prober.Run(ctx)

	svc := service.NewBookingService(service.Deps{
		Store:    db,
		Fetcher:  fetch.NewFetcher(db, cfg.Fetch.PageSize, faults, logging.Component(&logger, "fetch")),
		Cache:    readCache,
		Queue:    offlineQueue,
		Conn:     sw,
		Notifier: notifier,
		Faults:   faults,
		Logger:   logging.Component(&logger, "service"),
	})

	driver := worker.NewDriver(offlineQueue, sw, svc.Dispatch, worker.Options{
		ReplayRPS:   cfg.Sync.ReplayRPS,
		ReplayBurst: cfg.Sync.ReplayBurst,
		Retry:       worker.RetryPolicyFromConfig(cfg.Sync.Retry),
	}, logging.Component(&logger, "sync"))
	stopDriver := driver.Start(ctx)
	defer stopDriver()

	role, _ := models.ParseRole(cfg.Viewer.Role)
	view, err := svc.OpenView(ctx, cfg.Viewer.SubjectID, role, func(s reconcile.Snapshot) {
		ev := logger.Info().Str("state", s.State.String()).Int("bookings", len(s.Bookings)).Bool("has_more", s.HasMore)
		if s.Err != nil {
			ev = ev.AnErr("cause", s.Err)
		}
		ev.Msg("Booking list updated")
	})
	if err != nil {
		logger.Error().Err(err).Msg("open booking view")
		return err
	}

	logger.Info().
		Str("subject_id", cfg.Viewer.SubjectID).
		Str("role", string(role)).
		Str("queue_backend", cfg.Queue.Backend).
		Msg("bookingsync started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	snap := view.Snapshot()
	view.Close()
	exportSnapshot(cfg, role, snap, &logger)

	logger.Info().Msg("bookingsync stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		// failover starts on sqlite and probes redis again later
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis not reachable at startup")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initKVStore(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) (domain.KVStore, error) {
	switch cfg.Queue.Backend {
	case "sqlite":
		return db, nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis queue backend requires redis.address")
		}
		return repository.NewRedisKVStore(redisClient, cfg.Redis.Prefix), nil
	case "failover":
		if redisClient == nil {
			return nil, errors.New("failover queue backend requires redis.address")
		}
		primary := repository.NewRedisKVStore(redisClient, cfg.Redis.Prefix)
		return repository.NewFailoverKVStore(primary, db, logging.Component(logger, "kv")), nil
	case "memory":
		logger.Warn().Msg("memory queue backend: queued mutations do not survive a restart")
		return repository.NewMemoryKVStore(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func initNotifier(cfg *config.Config, faults domain.FaultSink, logger *zerolog.Logger) domain.Notifier {
	sinks := notify.Multi{notify.NewLogSink(logging.Component(logger, "notify"))}

	tg := cfg.Notifications.Telegram
	if tg.BotToken != "" {
		bot, err := notify.NewTelegramBot(tg)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing with log notifications")
		} else {
			sinks = append(sinks, notify.NewTelegramSink(bot, tg.ChatID))
			logger.Info().Int64("chat_id", tg.ChatID).Msg("telegram notifications enabled")
		}
	}
	return notify.NewBestEffort(sinks, faults)
}

func purgeCache(ctx context.Context, c *cache.Cache, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				logger.Debug().Int("entries", n).Msg("expired cache entries purged")
			}
		}
	}
}

func exportSnapshot(cfg *config.Config, role models.Role, snap reconcile.Snapshot, logger *zerolog.Logger) {
	if cfg.Exports.Path == "" || snap.State != reconcile.StateReady {
		return
	}
	path, err := export.Bookings(cfg.Exports.Path, cfg.Viewer.SubjectID, role, snap.Bookings, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("export bookings")
		return
	}
	logger.Info().Str("path", path).Int("bookings", len(snap.Bookings)).Msg("bookings exported")
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
