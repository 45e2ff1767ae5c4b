package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

const productColumns = `
	p.id, p.category_id, c.name, p.name, p.price_cents,
	p.description, p.image_path, p.thumb_path, p.created_at, p.updated_at
`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var product domain.Product
	err := row.Scan(
		&product.ID, &product.CategoryID, &product.CategoryName, &product.Name,
		&product.PriceCents, &product.Description, &product.ImagePath,
		&product.ThumbPath, &product.CreatedAt, &product.UpdatedAt,
	)
	return product, err
}

func (r *productRepository) List(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + productColumns + `
		FROM products p
		JOIN categories c ON c.id = p.category_id
	`
	var (
		rows *sql.Rows
		err  error
	)
	if categoryID > 0 {
		rows, err = r.db.QueryContext(ctx, query+" WHERE p.category_id = $1 ORDER BY p.id ASC", categoryID)
	} else {
		rows, err = r.db.QueryContext(ctx, query+" ORDER BY p.id ASC")
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

func (r *productRepository) Create(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (category_id, name, price_cents, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, input.CategoryID, input.Name, input.PriceCents, input.Description).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Product{}, domain.ErrCategoryNotFound
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return r.Get(ctx, id)
}

func (r *productRepository) Update(ctx context.Context, id int64, input domain.ProductInput) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET category_id = $1,
		    name = $2,
		    price_cents = $3,
		    description = $4,
		    updated_at = NOW()
		WHERE id = $5
	`, input.CategoryID, input.Name, input.PriceCents, input.Description, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Product{}, domain.ErrCategoryNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}

	return r.Get(ctx, id)
}

func (r *productRepository) SetImagePaths(ctx context.Context, id int64, imagePath, thumbPath string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET image_path = $1,
		    thumb_path = $2,
		    updated_at = NOW()
		WHERE id = $3
	`, imagePath, thumbPath, id)
	if err != nil {
		return fmt.Errorf("update product image paths: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
