package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir   = "sql/migrations"
	advisoryLockKey = int64(884211037)

	schemaTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

// changeset — пара up/down скриптов одной версии схемы.
type changeset struct {
	version int64
	name    string
	up      string
	down    string
}

// MigrateUp применяет up-миграции. steps=0 применяет все непройденные.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.runMigrations(ctx, steps, false)
}

// MigrateDown откатывает последние применённые миграции.
// steps<=0 трактуется как один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.runMigrations(ctx, steps, true)
}

// MigrationStatus возвращает максимальную применённую версию и число записей.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errStoreNotInitialized
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaTableDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		total   int
	)
	row := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`)
	if err := row.Scan(&version, &total); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}

	return version, total, nil
}

// runMigrations держит advisory lock на всё время прогона, чтобы параллельные
// экземпляры не применяли одну миграцию дважды.
func (s *Store) runMigrations(ctx context.Context, steps int, rollback bool) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	sets, err := readChangesets(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	if rollback {
		return rollbackChangesets(ctx, conn, sets, steps)
	}
	return applyChangesets(ctx, conn, sets, steps)
}

func applyChangesets(ctx context.Context, conn *sql.Conn, sets []changeset, steps int) error {
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	applied := 0
	for _, cs := range sets {
		if done[cs.version] {
			continue
		}

		err := inTx(ctx, conn, cs, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, cs.up); err != nil {
				return fmt.Errorf("execute up migration %d_%s: %w", cs.version, cs.name, err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`,
				cs.version, cs.name)
			if err != nil {
				return fmt.Errorf("record up migration %d_%s: %w", cs.version, cs.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		applied++
		if steps > 0 && applied >= steps {
			break
		}
	}

	return nil
}

func rollbackChangesets(ctx context.Context, conn *sql.Conn, sets []changeset, steps int) error {
	byVersion := make(map[int64]changeset, len(sets))
	for _, cs := range sets {
		byVersion[cs.version] = cs
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var targets []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan applied migration version: %w", err)
		}
		targets = append(targets, version)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied migrations: %w", err)
	}

	for _, version := range targets {
		cs, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("cannot rollback unknown migration version %d", version)
		}

		err := inTx(ctx, conn, cs, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, cs.down); err != nil {
				return fmt.Errorf("execute down migration %d_%s: %w", cs.version, cs.name, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, cs.version); err != nil {
				return fmt.Errorf("delete migration record %d_%s: %w", cs.version, cs.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func inTx(ctx context.Context, conn *sql.Conn, cs changeset, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %d_%s: %w", cs.version, cs.name, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d_%s: %w", cs.version, cs.name, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		done[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}

	return done, nil
}

// readChangesets собирает <version>_<name>.up.sql / .down.sql пары
// и возвращает их отсортированными по версии.
func readChangesets(fsys fs.FS) ([]changeset, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*changeset)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, dir, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		cs, ok := byVersion[version]
		if !ok {
			cs = &changeset{version: version, name: name}
			byVersion[version] = cs
		} else if cs.name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, cs.name, name)
		}

		if dir == "up" {
			if cs.up != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			cs.up = body
		} else {
			if cs.down != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			cs.down = body
		}
	}

	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	sets := make([]changeset, 0, len(byVersion))
	for _, cs := range byVersion {
		if cs.up == "" || cs.down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", cs.version, cs.name)
		}
		sets = append(sets, *cs)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].version < sets[j].version })

	return sets, nil
}

// parseMigrationName разбирает имя вида 0001_create_products.up.sql.
func parseMigrationName(file string) (version int64, name, direction string, err error) {
	base := strings.TrimSuffix(file, ".sql")
	switch {
	case strings.HasSuffix(base, ".up"):
		direction = "up"
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		direction = "down"
		base = strings.TrimSuffix(base, ".down")
	default:
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", file)
	}

	prefix, rest, found := strings.Cut(base, "_")
	if !found || rest == "" {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", file)
	}

	version, err = strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", file, err)
	}

	return version, rest, direction, nil
}
