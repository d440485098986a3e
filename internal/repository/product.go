package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

type ProductRepository interface {
	SaveProducts(ctx context.Context, products []domain.Product) (int, error)
}

type productRepository struct {
	db DB
}

func NewProductRepository(db DB) ProductRepository {
	return &productRepository{
		db: db,
	}
}

// SaveProducts upserts products by external id and returns how many were written
func (r *productRepository) SaveProducts(ctx context.Context, products []domain.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	query := `
	INSERT INTO products (external_id, name, price, category_code, data, updated_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, NOW())
	ON CONFLICT (external_id)
	DO UPDATE SET name = $2, price = $3, category_code = COALESCE(NULLIF($4, ''), products.category_code), data = $5, updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(query, p.ExternalID, p.Name, p.Price, p.CategoryCode, p)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	saved := 0
	for range products {
		if _, err := results.Exec(); err != nil {
			return saved, recovery.Wrap(recovery.CategoryDatabase, "save_products", fmt.Errorf("failed to save product: %w", err))
		}
		saved++
	}

	return saved, nil
}
