package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"price-catalog/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductConflict = errors.New("item and brand combination already exists")
)

const pgUniqueViolation = "23505"

const productColumns = `id, item_name, brand_name, price, prev_price, updated_at`

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	List(ctx context.Context) ([]*domain.Product, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id int64) error
	BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (int, error)
	Ping(ctx context.Context) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, product *domain.Product) error {
	return row.Scan(
		&product.ID,
		&product.ItemName,
		&product.BrandName,
		&product.Price,
		&product.PrevPrice,
		&product.UpdatedAt,
	)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// List returns every product ordered by item then brand
func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY item_name ASC, brand_name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		if err := scanProduct(rows, product); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product := &domain.Product{}
	if err := scanProduct(r.db.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// Create inserts a new product. prev_price starts equal to price.
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (item_name, brand_name, price, prev_price)
		VALUES ($1, $2, $3, $3)
		RETURNING ` + productColumns

	row := r.db.QueryRowContext(ctx, query, product.ItemName, product.BrandName, product.Price)
	if err := scanProduct(row, product); err != nil {
		if isUniqueViolation(err) {
			return ErrProductConflict
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update replaces item, brand and price of an existing product.
// prev_price only moves when the price actually changes.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET item_name = $2,
		    brand_name = $3,
		    prev_price = CASE WHEN price <> $4 THEN price ELSE prev_price END,
		    price = $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	row := r.db.QueryRowContext(ctx, query, product.ID, product.ItemName, product.BrandName, product.Price)
	if err := scanProduct(row, product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		if isUniqueViolation(err) {
			return ErrProductConflict
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	return nil
}

// Delete removes a product
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// BulkUpsert inserts or updates every entry inside one transaction, in input
// order. On an existing key prev_price always takes the stored price, even
// when the new price is the same.
func (r *productRepository) BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (item_name, brand_name, price, prev_price)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (item_name, brand_name) DO UPDATE
		SET prev_price = products.price,
		    price = EXCLUDED.price,
		    updated_at = NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, in := range inputs {
		if _, err := stmt.ExecContext(ctx, in.ItemName, in.BrandName, in.Price); err != nil {
			if isUniqueViolation(err) {
				return 0, ErrProductConflict
			}
			return 0, fmt.Errorf("failed to upsert product at index %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk upsert: %w", err)
	}

	return len(inputs), nil
}

// Ping checks database connectivity
func (r *productRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
