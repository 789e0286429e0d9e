package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nazeru/agrimarket-go/internal/config"
	"github.com/nazeru/agrimarket-go/internal/httpapi"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/internal/store/postgres"
	"github.com/nazeru/agrimarket-go/internal/store/sqlite"
	"github.com/nazeru/agrimarket-go/pkg/kafka"
	"github.com/nazeru/agrimarket-go/pkg/logging"
	"github.com/nazeru/agrimarket-go/pkg/metrics"
	"github.com/nazeru/agrimarket-go/pkg/outbox"
	"github.com/nazeru/agrimarket-go/pkg/rabbitmq"
)

type store interface {
	tx.Store
	outbox.Source
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New("order-service", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(logging.Finish(log, "order-service stopped", run(cfg, log)))
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coord := tx.NewCoordinator(st, tx.WithLogger(log))
	h := httpapi.New(coord, log, metrics.NewServerMetrics(reg, "order"), metrics.NewOrderMetrics(reg), st.Ping)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(reg, cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	pub, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if pub == nil {
		log.Warn("no broker configured, outbox relay disabled")
	} else {
		defer func() { _ = pub.Close() }()
		relay := outbox.NewRelay(st, pub, log, cfg.OutboxInterval, cfg.OutboxBatch)
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("order-service listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, s.Close, nil
	}
}

type publisher interface {
	outbox.Publisher
	io.Closer
}

// openPublisher prefers Kafka, then RabbitMQ. A nil publisher means neither
// broker is configured.
func openPublisher(ctx context.Context, cfg config.Config, log *zap.Logger) (publisher, error) {
	pub, err := kafka.NewClient(cfg.KafkaBrokers).NewPublisher(cfg.KafkaTopic)
	if err == nil {
		return pub, nil
	}
	if !errors.Is(err, kafka.ErrDisabled) {
		return nil, err
	}
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	rp, err := rabbitmq.Dial(ctx, rabbitmq.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange}, log)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: %w", err)
	}
	return rp, nil
}
