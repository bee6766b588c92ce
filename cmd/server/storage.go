package main

import (
	"context"
	"fmt"
	"log/slog"

	"folio/internal/config"
	"folio/internal/domain/repositories"
	docsysRepo "folio/internal/domain/repositories/docsystem"
	revisionRepo "folio/internal/domain/repositories/revision"
	timelineRepo "folio/internal/domain/repositories/timeline"
	"folio/internal/handler"
	"folio/internal/repository/memory"
	"folio/internal/repository/postgres"
)

// storage bundles the repositories of one backend
type storage struct {
	docs      docsysRepo.DocumentRepository
	contents  docsysRepo.ContentAddressRepository
	events    timelineRepo.EventRepository
	flagged   timelineRepo.FlaggedVersionRepository
	messages  revisionRepo.MessageRepository
	threads   revisionRepo.ThreadRepository
	txManager repositories.TransactionManager
	health    handler.HealthCheck
	close     func()
}

// openStorage connects the backend selected by cfg.Storage
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.Storage == "memory" {
		logger.Warn("using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return &storage{
			docs:      memory.NewDocumentRepository(store),
			contents:  memory.NewContentAddressRepository(store),
			events:    memory.NewEventRepository(store),
			flagged:   memory.NewFlaggedVersionRepository(store),
			messages:  memory.NewMessageRepository(store),
			threads:   memory.NewThreadRepository(store),
			txManager: memory.NewTransactionManager(store),
			health:    func(context.Context) error { return nil },
			close:     func() {},
		}, nil
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.Migrate(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("database connected", "table_prefix", cfg.TablePrefix)

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	return &storage{
		docs:      postgres.NewDocumentRepository(repoConfig),
		contents:  postgres.NewContentAddressRepository(repoConfig),
		events:    postgres.NewEventRepository(repoConfig),
		flagged:   postgres.NewFlaggedVersionRepository(repoConfig),
		messages:  postgres.NewMessageRepository(repoConfig),
		threads:   postgres.NewThreadRepository(repoConfig),
		txManager: postgres.NewTransactionManager(pool, logger),
		health:    func(ctx context.Context) error { return pool.Ping(ctx) },
		close:     pool.Close,
	}, nil
}
