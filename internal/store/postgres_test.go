package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilifiver/feedwise/internal/model"
)

// anyArgs returns n pgxmock.AnyArg matchers, for expectations that do not
// care about argument values (pgxmock requires the argument count to match).
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateImportRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO catalog_syncs`).
		WithArgs("https://example.com/feed.json", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	run, err := s.CreateImportRun(context.Background(), "https://example.com/feed.json", "v2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, int64(42), run.ID)
	assert.Equal(t, "v2026-09-01", run.VersionLabel)
	assert.False(t, run.StartedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteImportRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE catalog_syncs SET success = true`).
		WithArgs(pgxmock.AnyArg(), 10, 2, 3, 1, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteImportRun(context.Background(), 99, model.ImportCounts{
		Total: 10, Added: 2, Updated: 3, Removed: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailImportRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE catalog_syncs SET success = false`).
		WithArgs(pgxmock.AnyArg(), "fetch timed out", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailImportRun(context.Background(), 7, "fetch timed out")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetImportRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, version_label`).
		WithArgs(int64(5)).
		WillReturnError(pgx.ErrNoRows)

	run, err := s.GetImportRun(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProduct_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE id = \$1`).
		WithArgs("MISSING").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetProduct(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyImport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	price := 120.0
	cs := &model.ChangeSet{
		Creates: []model.Product{{
			ID: "NEW1", Title: "New product", Price: &price,
			CreatedAt: now, UpdatedAt: now, LastSyncedAt: now,
		}},
		Updates: []model.Product{{
			ID: "UPD1", Title: "Updated product", Price: &price,
			UpdatedAt: now, LastSyncedAt: now,
		}},
		Changes: []model.FieldChange{{
			ProductID: "UPD1", Field: "price",
			OldValue: "100", NewValue: "120", ChangedAt: now,
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(anyArgs(27)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE products SET`).
		WithArgs(anyArgs(26)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"product_changes"},
		[]string{"product_id", "sync_id", "field_name", "old_value", "new_value", "changed_at"}).
		WillReturnResult(1)
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.ApplyImport(context.Background(), 42, cs)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyImport_RollbackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cs := &model.ChangeSet{
		Creates: []model.Product{{ID: "BAD1", Title: "Broken"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(anyArgs(27)...).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.ApplyImport(context.Background(), 1, cs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert product BAD1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentSuccessfulImports(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	completed := time.Now().UTC()
	label := "v1"
	mock.ExpectQuery(`FROM catalog_syncs WHERE success = true`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "version_label", "completed_at", "products_total", "products_added", "products_updated"}).
			AddRow(int64(3), &label, &completed, 100, 5, 12))

	imports, err := s.RecentSuccessfulImports(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, int64(3), imports[0].ID)
	assert.Equal(t, "v1", imports[0].VersionLabel)
	assert.Equal(t, 100, imports[0].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
