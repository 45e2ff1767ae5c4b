package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const opTimeout = 5 * time.Second

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository создаёт PostgreSQL-реализацию CategoryRepository.
func NewCategoryRepository(store *Store) domain.CategoryRepository {
	return &categoryRepository{db: store.DB()}
}

func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name
		FROM categories
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}

	return categories, nil
}

func (r *categoryRepository) Create(ctx context.Context, name string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var category domain.Category
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO categories (name)
		VALUES ($1)
		RETURNING id, name
	`, name).Scan(&category.ID, &category.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Category{}, domain.ErrCategoryNameTaken
		}
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}

	return category, nil
}

func (r *categoryRepository) Rename(ctx context.Context, id int64, name string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var category domain.Category
	err := r.db.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $1
		WHERE id = $2
		RETURNING id, name
	`, name, id).Scan(&category.ID, &category.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		if isUniqueViolation(err) {
			return domain.Category{}, domain.ErrCategoryNameTaken
		}
		return domain.Category{}, fmt.Errorf("update category: %w", err)
	}

	return category, nil
}

func (r *categoryRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryInUse
		}
		return fmt.Errorf("delete category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCategoryNotFound
	}

	return nil
}

func (r *categoryRepository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var found int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check category exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

var _ domain.CategoryRepository = (*categoryRepository)(nil)
