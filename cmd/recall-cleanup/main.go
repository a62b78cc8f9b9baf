// cmd/recall-cleanup/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"recall/internal/pkg/bootstrap"
	"recall/internal/pkg/database"
	"recall/internal/pkg/logger"
	"recall/internal/pkg/mq"
	"recall/internal/pkg/zookeeper"
	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain/port"
	"recall/internal/service/recall/infrastructure"
	"recall/internal/service/recall/infrastructure/adapter"
	"recall/internal/tracing"
)

const (
	serviceName  = "recall-cleanup"
	lockResource = "recall-cleanup"
)

var (
	once        = flag.Bool("once", false, "run a single cleanup pass and exit")
	interval    = flag.Duration("interval", 0, "time between passes (default: app.cleanup_interval)")
	metricsAddr = flag.String("metrics-addr", ":9102", "address for /metrics, empty to disable")
)

func main() {
	flag.Parse()
	cfg, err := bootstrap.Init()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load config failed")
	}
	cfg.Log.Service = serviceName
	log := logger.Init(cfg.Log)
	ctx, stop := signal.NotifyContext(log.WithContext(context.Background()), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("cleanup exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *bootstrap.Config) error {
	log := logger.Ctx(ctx)

	tp, err := tracing.InitTracerProvider(ctx, serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var publisher port.FunnelPublisher = adapter.NoopFunnelPublisher{}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		kafkaAdapter := adapter.NewFunnelKafkaAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.FunnelTopic))
		defer kafkaAdapter.Close()
		publisher = kafkaAdapter
	}

	// 清理任务不发短信
	svc := application.NewRecallService(infrastructure.NewRecallDAO(pool), nil, otel.Tracer(serviceName),
		application.WithCleanupRetention(cfg.App.CleanupRetention),
		application.WithFunnelPublisher(publisher),
	)

	var lock *zookeeper.DistributedLock
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper)
		if err != nil {
			return err
		}
		defer conn.Close()
		if lock, err = zookeeper.NewDistributedLock(conn, lockResource); err != nil {
			return err
		}
	}
	pass := func(ctx context.Context) error { return cleanupOnce(ctx, svc, lock) }

	if *once {
		return pass(ctx)
	}

	every := *interval
	if every <= 0 {
		every = cfg.App.CleanupInterval
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Dur("interval", every).Msg("cleanup scheduler started")
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			if err := pass(gctx); err != nil {
				log.Error().Err(err).Msg("cleanup pass failed")
			}
			select {
			case <-ticker.C:
			case <-gctx.Done():
				log.Info().Msg("cleanup scheduler stopped")
				return nil
			}
		}
	})
	if *metricsAddr != "" {
		server := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// cleanupOnce 执行一轮清理。配置了 ZooKeeper 时只有拿到锁的实例执行，其余实例跳过本轮。
func cleanupOnce(ctx context.Context, svc *application.RecallService, lock *zookeeper.DistributedLock) error {
	if lock != nil {
		if err := lock.TryLock(); err != nil {
			if errors.Is(err, zookeeper.ErrLockHeld) {
				logger.Ctx(ctx).Info().Msg("another instance holds the cleanup lock, skipping")
				return nil
			}
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("release cleanup lock failed")
			}
		}()
	}
	_, err := svc.CleanupExpired(ctx, time.Time{})
	return err
}
