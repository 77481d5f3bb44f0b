package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/platform/cache"
	"github.com/odyssey-erp/fincore/internal/platform/db"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// PersistenceSource selects where ledger, stock and invoice state lives.
type PersistenceSource string

const (
	PersistencePostgres PersistenceSource = "postgres"
	PersistenceMemory   PersistenceSource = "memory"
)

// AuditRecorder is the audit port shared by all services.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Persistence bundles the repositories of one data source.
type Persistence struct {
	Source    PersistenceSource
	Ledger    accounting.RepositoryPort
	Stock     inventory.RepositoryPort
	Invoices  invoicing.RepositoryPort
	Audit     AuditRecorder
	Locker    shared.Locker
	Pool      *pgxpool.Pool
	Redis     redis.UniversalClient
	closeFunc func()
}

// Close releases connections held by the data source.
func (p *Persistence) Close() {
	if p != nil && p.closeFunc != nil {
		p.closeFunc()
	}
}

// OpenPersistence resolves cfg.DataSource once into concrete repositories.
func OpenPersistence(ctx context.Context, cfg *Config, logger *slog.Logger) (*Persistence, error) {
	switch PersistenceSource(cfg.DataSource) {
	case PersistenceMemory:
		return NewMemoryPersistence(logger), nil
	case PersistencePostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("app: unknown data source %q", cfg.DataSource)
	}
}

// NewMemoryPersistence keeps all state in process, for demos and tests.
func NewMemoryPersistence(logger *slog.Logger) *Persistence {
	return &Persistence{
		Source:   PersistenceMemory,
		Ledger:   accounting.NewMemoryRepository(),
		Stock:    inventory.NewMemoryRepository(),
		Invoices: invoicing.NewMemoryRepository(),
		Audit:    shared.NewLogAuditor(logger),
		Locker:   shared.NewLocalLocker(),
	}
}

func openPostgres(ctx context.Context, cfg *Config, logger *slog.Logger) (*Persistence, error) {
	if cfg.PGAutoMigrate {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithMaxConnIdle(cfg.PGMaxConnIdle))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	p := &Persistence{
		Source:   PersistencePostgres,
		Ledger:   accounting.NewRepository(pool),
		Stock:    inventory.NewRepository(pool),
		Invoices: invoicing.NewRepository(pool),
		Audit:    shared.NewAuditLogger(pool),
		Locker:   shared.NewRedisLocker(redisClient),
		Pool:     pool,
		Redis:    redisClient,
	}
	p.closeFunc = func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
		pool.Close()
	}
	return p, nil
}
