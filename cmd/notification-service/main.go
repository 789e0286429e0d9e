package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nazeru/agrimarket-go/internal/config"
	"github.com/nazeru/agrimarket-go/internal/notify"
	"github.com/nazeru/agrimarket-go/internal/store/postgres"
	"github.com/nazeru/agrimarket-go/pkg/kafka"
	"github.com/nazeru/agrimarket-go/pkg/logging"
	"github.com/nazeru/agrimarket-go/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New("notification-service", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(logging.Finish(log, "notification-service stopped", run(cfg, log)))
}

func run(cfg config.Config, log *zap.Logger) error {
	if cfg.StoreDriver != config.DriverPostgres {
		return errors.New("notification-service requires STORE_DRIVER=postgres")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.KafkaTopic)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "notification")

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if err := st.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "db_error"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
		srvMetrics.Requests.WithLabelValues("health", fmt.Sprint(status)).Inc()
		srvMetrics.LatencyMS.WithLabelValues("health").Observe(float64(time.Since(start).Milliseconds()))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	client := kafka.NewClient(cfg.KafkaBrokers)
	if client.Enabled() {
		reader := client.NewReader(cfg.KafkaTopic, cfg.KafkaGroupID)
		defer func() { _ = reader.Close() }()
		consumer := notify.NewConsumer(reader, notify.NewPGSaver(st.Pool()), log)
		g.Go(func() error { return consumer.Run(gctx) })
	} else {
		log.Warn("KAFKA_BROKERS not set, consumer disabled")
	}
	g.Go(func() error {
		log.Info("notification-service listening", zap.String("addr", srv.Addr))
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
	return g.Wait()
}
