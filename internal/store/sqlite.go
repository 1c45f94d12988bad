package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mobilifiver/feedwise/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// zero-dependency backend for local development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                      TEXT PRIMARY KEY,
	item_group_id           TEXT NOT NULL DEFAULT '',
	title                   TEXT NOT NULL,
	description             TEXT NOT NULL DEFAULT '',
	price                   REAL,
	sale_price              REAL,
	brand                   TEXT NOT NULL DEFAULT '',
	condition               TEXT NOT NULL DEFAULT '',
	availability            TEXT NOT NULL DEFAULT '',
	availability_date       TEXT NOT NULL DEFAULT '',
	color                   TEXT NOT NULL DEFAULT '',
	material                TEXT NOT NULL DEFAULT '',
	mpn                     TEXT NOT NULL DEFAULT '',
	google_product_category TEXT NOT NULL DEFAULT '',
	product_type            TEXT NOT NULL DEFAULT '',
	link                    TEXT NOT NULL DEFAULT '',
	mobile_link             TEXT NOT NULL DEFAULT '',
	image_link              TEXT NOT NULL DEFAULT '',
	additional_image_links  TEXT NOT NULL DEFAULT '',
	custom_label_1          TEXT NOT NULL DEFAULT '',
	custom_label_2          TEXT NOT NULL DEFAULT '',
	custom_label_3          TEXT NOT NULL DEFAULT '',
	custom_label_4          TEXT NOT NULL DEFAULT '',
	raw_data                TEXT,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL,
	last_synced_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_item_group ON products(item_group_id);
CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_product_type ON products(product_type);
CREATE INDEX IF NOT EXISTS idx_products_price ON products(price);

CREATE TABLE IF NOT EXISTS catalog_syncs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	source           TEXT NOT NULL,
	version_label    TEXT UNIQUE,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME,
	success          BOOLEAN NOT NULL DEFAULT 0,
	products_total   INTEGER NOT NULL DEFAULT 0,
	products_added   INTEGER NOT NULL DEFAULT 0,
	products_updated INTEGER NOT NULL DEFAULT 0,
	products_removed INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT
);

CREATE TABLE IF NOT EXISTS product_changes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id TEXT NOT NULL,
	sync_id    INTEGER NOT NULL REFERENCES catalog_syncs(id),
	field_name TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT,
	changed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_changes_product ON product_changes(product_id);
CREATE INDEX IF NOT EXISTS idx_product_changes_sync ON product_changes(sync_id);
CREATE INDEX IF NOT EXISTS idx_product_changes_changed_at ON product_changes(changed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %d", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", kind, id)
	}
	return nil
}

func (s *SQLiteStore) CreateImportRun(ctx context.Context, source, versionLabel string) (*model.ImportRun, error) {
	now := time.Now().UTC()

	var label any
	if versionLabel != "" {
		label = versionLabel
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_syncs (source, version_label, started_at) VALUES (?, ?, ?)`,
		source, label, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert sync")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sync id")
	}

	return &model.ImportRun{
		ID:           id,
		Source:       source,
		VersionLabel: versionLabel,
		StartedAt:    now,
	}, nil
}

func (s *SQLiteStore) CompleteImportRun(ctx context.Context, runID int64, counts model.ImportCounts) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_syncs SET success = 1, completed_at = ?, products_total = ?, products_added = ?, products_updated = ?, products_removed = ? WHERE id = ?`,
		time.Now().UTC(), counts.Total, counts.Added, counts.Updated, counts.Removed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync %d", runID)
	}
	return checkRowsAffected(res, "sync", runID)
}

func (s *SQLiteStore) FailImportRun(ctx context.Context, runID int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_syncs SET success = 0, completed_at = ?, error_message = ? WHERE id = ?`,
		time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail sync %d", runID)
	}
	return checkRowsAffected(res, "sync", runID)
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanImportRunSQLite(row sqlScanner) (*model.ImportRun, error) {
	var r model.ImportRun
	var label, errMsg sql.NullString
	var completed sql.NullTime
	if err := row.Scan(&r.ID, &r.Source, &label, &r.StartedAt, &completed,
		&r.Success, &r.Total, &r.Added, &r.Updated, &r.Removed, &errMsg); err != nil {
		return nil, err
	}
	r.VersionLabel = label.String
	r.ErrorMessage = errMsg.String
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) GetImportRun(ctx context.Context, runID int64) (*model.ImportRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncColumns+` FROM catalog_syncs WHERE id = ?`, runID)
	r, err := scanImportRunSQLite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get sync %d", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+syncColumns+` FROM catalog_syncs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		r, err := scanImportRunSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list syncs iterate")
}

func (s *SQLiteStore) RecentSuccessfulImports(ctx context.Context, limit int) ([]model.ImportSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version_label, completed_at, products_total, products_added, products_updated
		 FROM catalog_syncs WHERE success = 1
		 ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent imports")
	}
	defer rows.Close()

	var imports []model.ImportSummary
	for rows.Next() {
		var im model.ImportSummary
		var label sql.NullString
		var completed sql.NullTime
		if err := rows.Scan(&im.ID, &label, &completed, &im.Total, &im.Added, &im.Updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import summary")
		}
		im.VersionLabel = label.String
		if completed.Valid {
			t := completed.Time
			im.CompletedAt = &t
		}
		imports = append(imports, im)
	}
	return imports, eris.Wrap(rows.Err(), "sqlite: recent imports iterate")
}

func scanProductSQLite(row sqlScanner) (*model.Product, error) {
	var p model.Product
	var rawJSON sql.NullString
	if err := row.Scan(&p.ID, &p.ItemGroupID, &p.Title, &p.Description,
		&p.Price, &p.SalePrice, &p.Brand, &p.Condition, &p.Availability,
		&p.AvailabilityDate, &p.Color, &p.Material, &p.MPN,
		&p.GoogleProductCategory, &p.ProductType, &p.Link, &p.MobileLink,
		&p.ImageLink, &p.AdditionalImageLinks, &p.CustomLabel1, &p.CustomLabel2,
		&p.CustomLabel3, &p.CustomLabel4, &rawJSON,
		&p.CreatedAt, &p.UpdatedAt, &p.LastSyncedAt); err != nil {
		return nil, err
	}
	if rawJSON.Valid && rawJSON.String != "" {
		if err := json.Unmarshal([]byte(rawJSON.String), &p.RawData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal raw data")
		}
	}
	return &p, nil
}

func (s *SQLiteStore) SnapshotProducts(ctx context.Context) (map[string]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot products")
	}
	defer rows.Close()

	snapshot := make(map[string]model.Product)
	for rows.Next() {
		p, err := scanProductSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		snapshot[p.ID] = *p
	}
	return snapshot, eris.Wrap(rows.Err(), "sqlite: snapshot iterate")
}

func sqlitePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteStore) ApplyImport(ctx context.Context, runID int64, cs *model.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin import tx")
	}
	defer tx.Rollback()

	insertSQL := `INSERT INTO products (` + productColumns + `) VALUES (` + sqlitePlaceholders(27) + `)`
	for _, p := range cs.Creates {
		rawJSON, err := json.Marshal(p.RawData)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal raw data %s", p.ID)
		}
		if _, err := tx.ExecContext(ctx, insertSQL, productArgs(p, rawJSON)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert product %s", p.ID)
		}
	}

	updateSQL := `UPDATE products SET
		item_group_id = ?, title = ?, description = ?, price = ?, sale_price = ?,
		brand = ?, condition = ?, availability = ?, availability_date = ?,
		color = ?, material = ?, mpn = ?, google_product_category = ?,
		product_type = ?, link = ?, mobile_link = ?, image_link = ?,
		additional_image_links = ?, custom_label_1 = ?, custom_label_2 = ?,
		custom_label_3 = ?, custom_label_4 = ?, raw_data = ?,
		updated_at = ?, last_synced_at = ?
		WHERE id = ?`
	for _, p := range cs.Updates {
		rawJSON, err := json.Marshal(p.RawData)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal raw data %s", p.ID)
		}
		args := []any{
			p.ItemGroupID, p.Title, p.Description, p.Price, p.SalePrice,
			p.Brand, p.Condition, p.Availability, p.AvailabilityDate, p.Color,
			p.Material, p.MPN, p.GoogleProductCategory, p.ProductType, p.Link,
			p.MobileLink, p.ImageLink, p.AdditionalImageLinks, p.CustomLabel1,
			p.CustomLabel2, p.CustomLabel3, p.CustomLabel4, string(rawJSON),
			p.UpdatedAt, p.LastSyncedAt, p.ID,
		}
		if _, err := tx.ExecContext(ctx, updateSQL, args...); err != nil {
			return eris.Wrapf(err, "sqlite: update product %s", p.ID)
		}
	}

	for _, c := range cs.Changes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_changes (product_id, sync_id, field_name, old_value, new_value, changed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ProductID, runID, c.Field, c.OldValue, c.NewValue, c.ChangedAt); err != nil {
			return eris.Wrapf(err, "sqlite: insert change for %s", c.ProductID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "sqlite: commit import %d", runID)
	}
	return nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProductSQLite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProductSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) ProductsByCategory(ctx context.Context, category string, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(category) + "%"
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE lower(product_type) LIKE ? OR lower(google_product_category) LIKE ?
		 ORDER BY id LIMIT ?`,
		pattern, pattern, limit)
}

func (s *SQLiteStore) ProductsByPriceRange(ctx context.Context, min, max float64, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE price >= ? AND price <= ?
		 ORDER BY price LIMIT ?`,
		min, max, limit)
}

func (s *SQLiteStore) SearchProducts(ctx context.Context, tokens []string, limit int) ([]model.Product, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var clauses []string
	args := []any{}
	for _, tok := range tokens {
		clauses = append(clauses,
			`(lower(title) LIKE ? OR lower(description) LIKE ? OR lower(brand) LIKE ? OR lower(product_type) LIKE ?)`)
		pattern := "%" + strings.ToLower(tok) + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}
	args = append(args, limit)

	query := `SELECT ` + productColumns + ` FROM products WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id LIMIT ?`
	return s.queryProducts(ctx, query, args...)
}

func (s *SQLiteStore) ChangesSince(ctx context.Context, since time.Time) ([]model.FieldChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, sync_id, field_name, old_value, new_value, changed_at
		 FROM product_changes WHERE changed_at >= ?
		 ORDER BY product_id, changed_at`, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: changes since")
	}
	defer rows.Close()

	var changes []model.FieldChange
	for rows.Next() {
		var c model.FieldChange
		var oldVal, newVal sql.NullString
		if err := rows.Scan(&c.ID, &c.ProductID, &c.RunID, &c.Field, &oldVal, &newVal, &c.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		c.OldValue = oldVal.String
		c.NewValue = newVal.String
		changes = append(changes, c)
	}
	return changes, eris.Wrap(rows.Err(), "sqlite: changes iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats

	var avg, minPrice, maxPrice sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(DISTINCT CASE WHEN brand <> '' THEN brand END),
		        COUNT(DISTINCT CASE WHEN product_type <> '' THEN product_type END),
		        AVG(price), MIN(price), MAX(price)
		 FROM products`,
	).Scan(&stats.TotalProducts, &stats.UniqueBrands, &stats.UniqueCategories,
		&avg, &minPrice, &maxPrice)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats aggregates")
	}
	stats.Prices = model.PriceStats{
		Average: math.Round(avg.Float64*100) / 100,
		Minimum: minPrice.Float64,
		Maximum: maxPrice.Float64,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT brand FROM products WHERE brand <> ''
		 GROUP BY brand ORDER BY COUNT(*) DESC, brand LIMIT 10`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats brands")
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand")
		}
		stats.TopBrands = append(stats.TopBrands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats brands iterate")
	}

	return &stats, nil
}
