package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/orderstream/internal/health"
	"github.com/vladislavdragonenkov/orderstream/internal/metrics"
	"github.com/vladislavdragonenkov/orderstream/internal/service/httpapi"
	"github.com/vladislavdragonenkov/orderstream/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstream/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/orderstream/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstream/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderstream/internal/service/products"
	"github.com/vladislavdragonenkov/orderstream/internal/version"
)

const (
	readHeaderTimeout      = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// services — собранный граф сервисов поверх выбранного хранилища.
type services struct {
	orders   *orders.Service
	products *products.Service
	guard    *idempotency.Guard
}

// Run поднимает REST API, сервер метрик и health, gRPC health и фоновые
// воркеры и блокируется до отмены ctx или первой ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	svc := buildServices(cfg, deps, logger)

	healthHandler := health.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	kafkaRT, err := initKafka(cfg, logger.WithField("layer", "kafka"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	defer closeKafka(kafkaRT, logger)
	if kafkaRT != nil {
		healthHandler.RegisterChecker("outbox", health.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPendingAge))
	}

	api := httpapi.NewAPI(httpapi.Dependencies{
		Orders:   svc.orders,
		Products: svc.products,
		Guard:    svc.guard,
		Metrics:  metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Logger:   logger.WithField("layer", "http"),
	})
	apiSrv := &http.Server{Handler: api.Router(), ReadHeaderTimeout: readHeaderTimeout}
	opsSrv := &http.Server{Handler: newOpsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}

	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcHealth := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	opsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = apiLis.Close()
		return fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		_ = opsLis.Close()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("REST API слушает %s", apiLis.Addr())
		return serveHTTP(apiSrv, apiLis)
	})
	g.Go(func() error {
		logger.Infof("метрики и health checks доступны на %s (/metrics, /healthz, /livez, /readyz)", opsLis.Addr())
		return serveHTTP(opsSrv, opsLis)
	})
	g.Go(func() error {
		logger.Infof("gRPC health сервер слушает %s", grpcLis.Addr())
		return grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		syncGRPCHealth(gctx, healthHandler, grpcHealth, cfg.ReadinessInterval)
		return nil
	})

	if kafkaRT != nil {
		worker := outbox.NewWorker(deps.outboxRepo, kafkaRT.publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafkaRT.dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithRetryMaxDelay(cfg.OutboxRetryMaxDelay),
		)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	} else {
		logger.Info("kafka brokers are not configured, outbox events stay pending")
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.Shutdown()
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(opsSrv, cfg.ShutdownTimeout, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// buildServices собирает движок жизненного цикла и фасады поверх репозиториев.
func buildServices(cfg Config, deps *runtimeDependencies, logger *log.Entry) services {
	lifecycleMetrics := metrics.NewLifecycleMetrics()
	recorder := outbox.NewRecorder(deps.outboxRepo, lifecycleMetrics, logger.WithField("component", "outbox-recorder"))

	engine := lifecycle.NewEngine(deps.orderRepo, deps.productRepo,
		lifecycle.WithTimeline(deps.timelineRepo),
		lifecycle.WithEvents(recorder),
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
	)

	return services{
		orders: orders.NewService(engine, deps.orderRepo, deps.timelineRepo, logger.WithField("component", "orders")),
		products: products.NewService(deps.productRepo,
			products.WithEvents(recorder),
			products.WithMetrics(lifecycleMetrics),
			products.WithLogger(logger.WithField("component", "products")),
		),
		guard: idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency")),
	}
}

// newOpsMux отдаёт служебные endpoints: метрики Prometheus и health checks.
func newOpsMux(healthHandler *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// registerGRPCMetrics регистрирует метрики gRPC-сервера; при повторном
// запуске в том же процессе переиспользует уже зарегистрированные.
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// syncGRPCHealth переносит результат health checks в статус gRPC health сервиса.
func syncGRPCHealth(ctx context.Context, checks *health.Handler, server *grpchealth.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if overall, _ := checks.Run(ctx); overall == health.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		server.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stopGRPC пытается остановиться gracefully и обрывает соединения по таймауту.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
