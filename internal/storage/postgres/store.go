package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// Store — общее подключение к PostgreSQL для всех репозиториев.
type Store struct {
	db *sql.DB
}

// Open открывает пул соединений и сразу проверяет базу ping-ом,
// чтобы ошибка конфигурации всплыла на старте, а не на первом запросе.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	tunePool(db)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

func tunePool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения с собственным таймаутом.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
