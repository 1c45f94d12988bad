package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilifiver/feedwise/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func floatPtr(v float64) *float64 { return &v }

func seedProducts(t *testing.T, s *SQLiteStore, runID int64) {
	t.Helper()
	now := time.Now().UTC()
	cs := &model.ChangeSet{
		Creates: []model.Product{
			{
				ID: "SKU1", Title: "Divano Oslo", Description: "Divano a tre posti",
				Brand: "Nordika", ProductType: "Arredamento > Divani",
				Price: floatPtr(120.50), CreatedAt: now, UpdatedAt: now, LastSyncedAt: now,
			},
			{
				ID: "SKU2", Title: "Lampada Luna", Description: "Lampada da tavolo",
				Brand: "Lumen", ProductType: "Illuminazione",
				Price: floatPtr(45), CreatedAt: now, UpdatedAt: now, LastSyncedAt: now,
			},
			{
				ID: "SKU3", Title: "Tavolo Roma", Brand: "Nordika",
				ProductType: "Arredamento > Tavoli",
				Price: floatPtr(310), CreatedAt: now, UpdatedAt: now, LastSyncedAt: now,
			},
		},
	}
	require.NoError(t, s.ApplyImport(context.Background(), runID, cs))
}

func TestSQLiteStore_ImportRunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "https://example.com/feed.json", "v1")
	require.NoError(t, err)
	require.NotZero(t, run.ID)

	err = s.CompleteImportRun(ctx, run.ID, model.ImportCounts{Total: 3, Added: 3})
	require.NoError(t, err)

	got, err := s.GetImportRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Success)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 3, got.Added)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "v1", got.VersionLabel)
}

func TestSQLiteStore_FailImportRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)

	require.NoError(t, s.FailImportRun(ctx, run.ID, "connection refused"))

	got, err := s.GetImportRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Success)
	assert.Equal(t, "connection refused", got.ErrorMessage)
}

func TestSQLiteStore_CompleteImportRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.CompleteImportRun(context.Background(), 999, model.ImportCounts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync not found")
}

func TestSQLiteStore_GetImportRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	run, err := s.GetImportRun(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestSQLiteStore_ApplyImportAndSnapshot(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)
	seedProducts(t, s, run.ID)

	snapshot, err := s.SnapshotProducts(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 3)
	assert.Equal(t, "Divano Oslo", snapshot["SKU1"].Title)
	require.NotNil(t, snapshot["SKU1"].Price)
	assert.InDelta(t, 120.50, *snapshot["SKU1"].Price, 0.001)
}

func TestSQLiteStore_ApplyImport_UpdateWithChanges(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)
	seedProducts(t, s, run.ID)

	now := time.Now().UTC()
	second, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)

	updated := model.Product{
		ID: "SKU1", Title: "Divano Oslo", Brand: "Nordika",
		ProductType: "Arredamento > Divani",
		Price:       floatPtr(99), UpdatedAt: now, LastSyncedAt: now,
	}
	cs := &model.ChangeSet{
		Updates: []model.Product{updated},
		Changes: []model.FieldChange{{
			ProductID: "SKU1", Field: "price",
			OldValue: "120.5", NewValue: "99", ChangedAt: now,
		}},
	}
	require.NoError(t, s.ApplyImport(ctx, second.ID, cs))

	p, err := s.GetProduct(ctx, "SKU1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 99, *p.Price, 0.001)

	changes, err := s.ChangesSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "SKU1", changes[0].ProductID)
	assert.Equal(t, "price", changes[0].Field)
	assert.Equal(t, "120.5", changes[0].OldValue)
	assert.Equal(t, "99", changes[0].NewValue)
	assert.Equal(t, second.ID, changes[0].RunID)
}

func TestSQLiteStore_GetProduct_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	p, err := s.GetProduct(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLiteStore_ProductsByCategory(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)
	seedProducts(t, s, run.ID)

	products, err := s.ProductsByCategory(ctx, "arredamento", 10)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "SKU1", products[0].ID)
	assert.Equal(t, "SKU3", products[1].ID)
}

func TestSQLiteStore_ProductsByPriceRange(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)
	seedProducts(t, s, run.ID)

	products, err := s.ProductsByPriceRange(ctx, 50, 200, 10)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "SKU1", products[0].ID)

	// Bounds are inclusive.
	products, err = s.ProductsByPriceRange(ctx, 45, 310, 10)
	require.NoError(t, err)
	assert.Len(t, products, 3)
	assert.Equal(t, "SKU2", products[0].ID)
}

func TestSQLiteStore_SearchProducts(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "")
	require.NoError(t, err)
	seedProducts(t, s, run.ID)

	products, err := s.SearchProducts(ctx, []string{"divano"}, 10)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "SKU1", products[0].ID)

	// Every token must match.
	products, err = s.SearchProducts(ctx, []string{"nordika", "tavolo"}, 10)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "SKU3", products[0].ID)

	products, err = s.SearchProducts(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateImportRun(ctx, "feed.json", "v1")
	require.NoError(t, err)
	seedProducts(t, s, run.ID)
	require.NoError(t, s.CompleteImportRun(ctx, run.ID, model.ImportCounts{Total: 3, Added: 3}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.UniqueBrands)
	assert.Equal(t, 3, stats.UniqueCategories)
	assert.InDelta(t, 158.5, stats.Prices.Average, 0.001)
	assert.InDelta(t, 45, stats.Prices.Minimum, 0.001)
	assert.InDelta(t, 310, stats.Prices.Maximum, 0.001)
	// Nordika has two products, Lumen one: most-represented brand first
	assert.Equal(t, []string{"Nordika", "Lumen"}, stats.TopBrands)

	recent, err := s.RecentSuccessfulImports(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "v1", recent[0].VersionLabel)
}

func TestSQLiteStore_EmptyStats(t *testing.T) {
	s := newTestSQLiteStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalProducts)
	assert.Zero(t, stats.Prices.Average)
	assert.Empty(t, stats.TopBrands)
}
