package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/images"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	transporthttp "github.com/vladislavdragonenkov/shop/internal/transport/http"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

// Run запускает сервер каталога и блокируется до отмены контекста или
// фатальной ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	pipeline := images.NewPipeline(cfg.UploadDir, images.NewTransformer(), logger.WithField("component", "image-pipeline"))
	if err := pipeline.EnsureDirs(); err != nil {
		return err
	}

	// Kafka продьюсер опционален: без брокеров outbox просто копит записи.
	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Warn("continuing without kafka, outbox records will stay pending")
	}

	catalogSvc := catalog.NewService(deps.Categories, deps.Products, pipeline, deps.Outbox, logger.WithField("layer", "service"))
	handler := transporthttp.NewHandler(catalogSvc, logger.WithField("layer", "http"))
	router := transporthttp.NewRouter(transporthttp.RouterConfig{
		Handler:   handler,
		Logger:    logger.WithField("component", "http-router"),
		Metrics:   metrics.NewHTTPMetrics(),
		UploadDir: cfg.UploadDir,
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", 2*time.Second, deps.Store.Ping))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// Воркер публикации outbox запускается только при доступном продьюсере;
	// очистка опубликованных записей работает всегда.
	workerCtx, stopWorker := context.WithCancel(ctx)
	cleanupDone := make(chan struct{})
	cleanupWorker := outbox.NewCleanupWorker(deps.Outbox,
		outbox.WithCleanupLogger(logger.WithField("component", "outbox-cleanup-worker")),
	)
	go func() {
		defer close(cleanupDone)
		cleanupWorker.Run(workerCtx)
	}()

	workerDone := make(chan struct{})
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicCatalogEvents)
		dlq := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(deps.Outbox, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlq),
		)
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер каталога слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	shutdown := func() {
		stopWorker()
		<-workerDone
		<-cleanupDone
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
