package repository

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

var categoryCodePattern = regexp.MustCompile(`^\d{13}$`)

// DB is the subset of pgxpool.Pool the repositories use
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type CategoryRepository interface {
	GetOrCreate(ctx context.Context, urlCode, name string) (*domain.Category, bool, error)
}

type categoryRepository struct {
	db DB
}

func NewCategoryRepository(db DB) CategoryRepository {
	return &categoryRepository{
		db: db,
	}
}

// GetOrCreate returns the category for urlCode, inserting it when missing.
// Existing rows are never modified.
func (r *categoryRepository) GetOrCreate(ctx context.Context, urlCode, name string) (*domain.Category, bool, error) {
	if !categoryCodePattern.MatchString(urlCode) {
		return nil, false, recovery.Errorf(recovery.CategoryValidation, "invalid category code %q", urlCode)
	}
	if name == "" {
		name = "Unknown Category"
	}

	// the no-op update makes RETURNING yield the existing row; xmax = 0 only for fresh inserts
	query := `
	INSERT INTO categories (url_code, name, is_active)
	VALUES ($1, $2, TRUE)
	ON CONFLICT (url_code)
	DO UPDATE SET url_code = EXCLUDED.url_code
	RETURNING id, url_code, name, is_active, created_at, (xmax = 0) AS inserted`

	var (
		category domain.Category
		created  bool
	)
	err := r.db.QueryRow(ctx, query, urlCode, name).Scan(
		&category.ID,
		&category.URLCode,
		&category.Name,
		&category.IsActive,
		&category.CreatedAt,
		&created,
	)
	if err != nil {
		return nil, false, recovery.Wrap(recovery.CategoryDatabase, "category_get_or_create", fmt.Errorf("failed to get or create category %s: %w", urlCode, err))
	}

	return &category, created, nil
}
