// main wires high-level dependencies: configuration, the action set, the
// correlation backend, the target-system client, and the HTTP boundary.
// Processing semantics live in the internal bridge packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"bugbridge/internal/bridge/actions"
	"bugbridge/internal/bridge/executor"
	"bugbridge/internal/bridge/jira"
	"bugbridge/internal/bridge/metrics"
	"bugbridge/internal/bridge/report"
	"bugbridge/internal/bridge/retry"
	"bugbridge/internal/bridge/service"
	"bugbridge/internal/bridge/store/correlation"
	"bugbridge/internal/platform/config"
	"bugbridge/internal/platform/httpserver"
	"bugbridge/internal/platform/logger"
	platformredis "bugbridge/internal/platform/redis"
	httptransport "bugbridge/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	set, err := actions.Load(cfg.ActionsPath)
	if err != nil {
		fatal(log, "load actions", err)
	}
	log.Info("action set loaded", "path", cfg.ActionsPath, "actions", set.Len())

	m := metrics.New()

	store, ready, cleanup, err := buildCorrelationStore(cfg, log)
	if err != nil {
		fatal(log, "build correlation store", err)
	}
	defer cleanup()

	client, err := jira.New(cfg.Jira, log)
	if err != nil {
		fatal(log, "build jira client", err)
	}

	exec, err := executor.New(client, store, retry.FromConfig(cfg.Retry), jira.Classify,
		executor.WithLogger(log),
		executor.WithMetrics(m),
	)
	if err != nil {
		fatal(log, "build executor", err)
	}

	publisher, pubCleanup, err := buildPublisher(cfg, log)
	if err != nil {
		fatal(log, "build report publisher", err)
	}
	defer pubCleanup()
	worker := report.NewWorker(publisher, 256, log, m)

	svc, err := service.New(set, exec,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithReporter(worker),
	)
	if err != nil {
		fatal(log, "build bridge service", err)
	}

	handler := httptransport.NewHandler(svc, log, ready)
	router := httptransport.NewRouter(handler, cfg.WebhookSigningKey, log)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting bugbridge", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// SIGHUP replaces the action set wholesale; a bad document keeps the
	// running set.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				next, err := actions.Load(cfg.ActionsPath)
				if err != nil {
					log.Error("action reload rejected", "error", err)
					continue
				}
				svc.Reload(next)
			}
		}
	})

	if err := g.Wait(); err != nil {
		fatal(log, "server error", err)
	}
	log.Info("bugbridge stopped")
}

// buildCorrelationStore picks the configured backend: postgres when a DSN
// is set, else redis, else the in-memory store for single-process use.
func buildCorrelationStore(cfg config.Config, log *slog.Logger) (correlation.Store, func(context.Context) error, func(), error) {
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		store := correlation.NewPostgresStore(db)
		log.Info("using postgres correlation store")
		return store, store.Health, func() { db.Close() }, nil
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if redisClient != nil {
		log.Info("using redis correlation store")
		return correlation.NewRedisStore(redisClient), redisClient.Health, func() { redisClient.Close() }, nil
	}

	log.Warn("no correlation backend configured, using in-memory store")
	return correlation.NewInMemoryStore(), nil, func() {}, nil
}

func buildPublisher(cfg config.Config, log *slog.Logger) (report.Publisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return report.NewLogPublisher(log), func() {}, nil
	}
	kp, err := report.NewKafkaPublisher(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	log.Info("publishing execution reports to kafka", "topic", cfg.Kafka.Topic)
	return kp, kp.Close, nil
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
