package store

import (
	"context"
	"time"

	"github.com/mobilifiver/feedwise/internal/model"
)

// Store defines the persistence interface for the catalog: products,
// import runs, and the append-only change log.
type Store interface {
	// Import runs
	CreateImportRun(ctx context.Context, source, versionLabel string) (*model.ImportRun, error)
	CompleteImportRun(ctx context.Context, runID int64, counts model.ImportCounts) error
	FailImportRun(ctx context.Context, runID int64, errMsg string) error
	GetImportRun(ctx context.Context, runID int64) (*model.ImportRun, error)
	ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error)
	RecentSuccessfulImports(ctx context.Context, limit int) ([]model.ImportSummary, error)

	// Reconciliation
	SnapshotProducts(ctx context.Context) (map[string]model.Product, error)
	// ApplyImport persists one run's creates, updates and change rows in a
	// single transaction. On error nothing from the run survives.
	ApplyImport(ctx context.Context, runID int64, cs *model.ChangeSet) error

	// Queries
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ProductsByCategory(ctx context.Context, category string, limit int) ([]model.Product, error)
	ProductsByPriceRange(ctx context.Context, min, max float64, limit int) ([]model.Product, error)
	SearchProducts(ctx context.Context, tokens []string, limit int) ([]model.Product, error)
	ChangesSince(ctx context.Context, since time.Time) ([]model.FieldChange, error)
	Stats(ctx context.Context) (*model.CatalogStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
