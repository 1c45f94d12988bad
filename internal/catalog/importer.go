package catalog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/internal/model"
	"github.com/mobilifiver/feedwise/internal/store"
)

// FeedFetcher downloads and decodes a product feed from a source descriptor.
type FeedFetcher interface {
	Fetch(ctx context.Context, source string) ([]map[string]any, error)
}

// ConditionalFetcher is the optional capability to skip refetching a feed that
// has not been republished since the given ETag.
type ConditionalFetcher interface {
	FetchIfChanged(ctx context.Context, source, etag string) (items []map[string]any, newETag string, changed bool, err error)
}

// Importer orchestrates one full import: create run record, fetch, reconcile,
// apply, finalize. The run record is created before the fetch so failed
// fetches are visible in the sync history.
type Importer struct {
	store store.Store
	feed  FeedFetcher
	log   *zap.Logger
}

// NewImporter creates an Importer.
func NewImporter(st store.Store, feed FeedFetcher) *Importer {
	return &Importer{
		store: st,
		feed:  feed,
		log:   zap.L().With(zap.String("component", "importer")),
	}
}

// Run executes one reconciliation against the source. The returned ImportRun
// reflects the final state of the run record; err is non-nil exactly when the
// run failed.
func (imp *Importer) Run(ctx context.Context, source, versionLabel string) (*model.ImportRun, error) {
	run, err := imp.start(ctx, source, versionLabel)
	if err != nil {
		return nil, err
	}

	items, err := imp.feed.Fetch(ctx, source)
	if err != nil {
		return imp.fail(ctx, run, eris.Wrap(err, "importer: fetch feed"))
	}

	return imp.apply(ctx, run, items)
}

// RunIfChanged imports only when the feed's ETag differs from lastETag. When
// the feed is unchanged no run record is created and the returned run is nil.
// The returned ETag is the one to carry into the next call; on error it is
// lastETag, so a transient failure does not lose the comparison point.
// Fetchers without the ConditionalFetcher capability always run a full import.
func (imp *Importer) RunIfChanged(ctx context.Context, source, versionLabel, lastETag string) (*model.ImportRun, string, error) {
	cf, ok := imp.feed.(ConditionalFetcher)
	if !ok {
		run, err := imp.Run(ctx, source, versionLabel)
		return run, lastETag, err
	}

	items, newETag, changed, err := cf.FetchIfChanged(ctx, source, lastETag)
	if err != nil {
		// record the failed fetch in sync history, same as Run
		run, startErr := imp.start(ctx, source, versionLabel)
		if startErr != nil {
			return nil, lastETag, startErr
		}
		run, err = imp.fail(ctx, run, eris.Wrap(err, "importer: fetch feed"))
		return run, lastETag, err
	}
	if !changed {
		imp.log.Info("feed unchanged, skipping import",
			zap.String("source", source),
			zap.String("etag", newETag),
		)
		return nil, newETag, nil
	}

	run, err := imp.start(ctx, source, versionLabel)
	if err != nil {
		return nil, newETag, err
	}
	run, err = imp.apply(ctx, run, items)
	return run, newETag, err
}

func (imp *Importer) start(ctx context.Context, source, versionLabel string) (*model.ImportRun, error) {
	run, err := imp.store.CreateImportRun(ctx, source, versionLabel)
	if err != nil {
		return nil, eris.Wrap(err, "importer: create run")
	}
	imp.log.Info("import started",
		zap.Int64("run_id", run.ID),
		zap.String("source", source),
		zap.String("version", versionLabel),
	)
	return run, nil
}

func (imp *Importer) apply(ctx context.Context, run *model.ImportRun, items []map[string]any) (*model.ImportRun, error) {
	snapshot, err := imp.store.SnapshotProducts(ctx)
	if err != nil {
		return imp.fail(ctx, run, eris.Wrap(err, "importer: snapshot products"))
	}

	cs, sum := Reconcile(snapshot, items, time.Now().UTC())

	if err := imp.store.ApplyImport(ctx, run.ID, cs); err != nil {
		return imp.fail(ctx, run, eris.Wrap(err, "importer: apply import"))
	}

	if err := imp.store.CompleteImportRun(ctx, run.ID, sum.Counts()); err != nil {
		return nil, eris.Wrap(err, "importer: complete run")
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Success = true
	run.Total = sum.Total
	run.Added = sum.Added
	run.Updated = sum.Updated
	run.Removed = sum.Removed

	imp.log.Info("import completed",
		zap.Int64("run_id", run.ID),
		zap.Int("total", sum.Total),
		zap.Int("added", sum.Added),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("removed", sum.Removed),
	)
	return run, nil
}

// fail marks the run failed and returns the original error. Finalization
// errors are logged but never mask the run failure.
func (imp *Importer) fail(ctx context.Context, run *model.ImportRun, cause error) (*model.ImportRun, error) {
	imp.log.Error("import failed", zap.Int64("run_id", run.ID), zap.Error(cause))

	if err := imp.store.FailImportRun(ctx, run.ID, cause.Error()); err != nil {
		imp.log.Error("failed to record run failure", zap.Int64("run_id", run.ID), zap.Error(err))
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Success = false
	run.ErrorMessage = cause.Error()
	return run, cause
}
