package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/health"
	"github.com/vladislavdragonenkov/orderstream/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderstream/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного хранилища.
type runtimeDependencies struct {
	orderRepo       domain.OrderRepository
	productRepo     domain.ProductRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	// storageChecker проверяет доступность хранилища для /healthz и gRPC health.
	storageChecker health.Checker
	close          func() error
}

// initRuntimeDependencies создаёт репозитории под cfg.StorageDriver.
// Для postgres открывает пул и, если включено, применяет миграции.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		var opts []memory.Option
		if cfg.OptimisticLocking {
			opts = append(opts, memory.WithOptimisticLocking())
		}
		logger.WithField("optimistic_locking", cfg.OptimisticLocking).Info("using in-memory storage")
		return &runtimeDependencies{
			orderRepo:       memory.NewOrderRepository(opts...),
			productRepo:     memory.NewProductRepository(opts...),
			outboxRepo:      memory.NewOutboxRepository(),
			timelineRepo:    memory.NewTimelineRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  health.NewSimpleChecker("memory", func(context.Context) error { return nil }),
			close:           func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required for %s storage driver", StorageDriverPostgres)
		}

		var opts []postgres.Option
		if cfg.OptimisticLocking {
			opts = append(opts, postgres.WithOptimisticLocking())
		}
		store, err := postgres.Open(ctx, dsn, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.WithField("optimistic_locking", cfg.OptimisticLocking).Info("using postgres storage")
		return &runtimeDependencies{
			orderRepo:       postgres.NewOrderRepository(store),
			productRepo:     postgres.NewProductRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			timelineRepo:    postgres.NewTimelineRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  health.NewPingChecker("postgres", store),
			close:           store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
