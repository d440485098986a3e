package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeBatchResults struct {
	execErrAt int
	execs     int
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	b.execs++
	if b.execErrAt > 0 && b.execs == b.execErrAt {
		return pgconn.CommandTag{}, errors.New("constraint violation")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (b *fakeBatchResults) QueryRow() pgx.Row           { return fakeRow{err: errors.New("not implemented")} }
func (b *fakeBatchResults) Close() error                { return nil }

type fakeDB struct {
	row     fakeRow
	args    []any
	batch   *pgx.Batch
	results *fakeBatchResults
	execSQL string
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execSQL = sql
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = args
	return f.row
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	return f.results
}

func TestCategoryGetOrCreate(t *testing.T) {
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{int64(7), "1234567890123", "Fresh Fruit", true, created, true}}}
	repo := NewCategoryRepository(db)

	category, wasCreated, err := repo.GetOrCreate(context.Background(), "1234567890123", "Fresh Fruit")
	require.NoError(t, err)

	assert.True(t, wasCreated)
	assert.Equal(t, int64(7), category.ID)
	assert.Equal(t, "Fresh Fruit", category.Name)
	assert.Equal(t, created, category.CreatedAt)
	assert.Equal(t, []any{"1234567890123", "Fresh Fruit"}, db.args)
}

func TestCategoryGetOrCreateDefaultsName(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(1), "1234567890123", "Unknown Category", true, time.Now(), false}}}
	repo := NewCategoryRepository(db)

	_, wasCreated, err := repo.GetOrCreate(context.Background(), "1234567890123", "")
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, "Unknown Category", db.args[1])
}

func TestCategoryGetOrCreateValidatesCode(t *testing.T) {
	repo := NewCategoryRepository(&fakeDB{})

	_, _, err := repo.GetOrCreate(context.Background(), "12345", "Short")
	require.Error(t, err)
	assert.Equal(t, recovery.CategoryValidation, recovery.CategoryOf(err))
}

func TestCategoryGetOrCreateWrapsDatabaseErrors(t *testing.T) {
	repo := NewCategoryRepository(&fakeDB{row: fakeRow{err: errors.New("connection refused")}})

	_, _, err := repo.GetOrCreate(context.Background(), "1234567890123", "Fruit")
	require.Error(t, err)
	assert.Equal(t, recovery.CategoryDatabase, recovery.CategoryOf(err))
}

func TestSaveProducts(t *testing.T) {
	db := &fakeDB{results: &fakeBatchResults{}}
	repo := NewProductRepository(db)

	products := []domain.Product{
		{ExternalID: "910000000001", Name: "Bananas", Price: 0.89},
		{ExternalID: "910000000002", Name: "Apples", Price: 1.5, CategoryCode: "1234567890123"},
	}
	saved, err := repo.SaveProducts(context.Background(), products)
	require.NoError(t, err)

	assert.Equal(t, 2, saved)
	assert.Equal(t, 2, db.batch.Len())
}

func TestSaveProductsStopsOnError(t *testing.T) {
	db := &fakeDB{results: &fakeBatchResults{execErrAt: 2}}
	repo := NewProductRepository(db)

	saved, err := repo.SaveProducts(context.Background(), []domain.Product{
		{ExternalID: "1"}, {ExternalID: "2"}, {ExternalID: "3"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, saved)
	assert.Equal(t, recovery.CategoryDatabase, recovery.CategoryOf(err))
}

func TestSaveProductsEmpty(t *testing.T) {
	db := &fakeDB{}
	saved, err := NewProductRepository(db).SaveProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, saved)
	assert.Nil(t, db.batch)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.Contains(t, db.execSQL, "CREATE TABLE IF NOT EXISTS categories")
}
