package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения.
type Dependencies struct {
	Categories domain.CategoryRepository
	Products   domain.ProductRepository
	Outbox     domain.OutboxRepository
	// Store заполнен только в postgres-режиме; nil при in-memory хранилище.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies выбирает бэкенд по конфигурации: непустой DSN — PostgreSQL
// с применением миграций, иначе in-memory репозитории.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	if cfg.PostgresDSN == "" {
		logger.Info("postgres dsn is empty, using in-memory storage")
		products := memory.NewProductRepository()
		return &Dependencies{
			Categories: memory.NewCategoryRepository(products),
			Products:   products,
			Outbox:     memory.NewOutboxRepository(),
			Logger:     logger,
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("postgres storage initialized")

	return &Dependencies{
		Categories: postgres.NewCategoryRepository(store),
		Products:   postgres.NewProductRepository(store),
		Outbox:     postgres.NewOutboxRepository(store),
		Store:      store,
		Logger:     logger,
	}, nil
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
