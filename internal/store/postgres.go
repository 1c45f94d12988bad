package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mobilifiver/feedwise/internal/db"
	"github.com/mobilifiver/feedwise/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const productColumns = `id, item_group_id, title, description, price, sale_price, brand, condition, availability, availability_date, color, material, mpn, google_product_category, product_type, link, mobile_link, image_link, additional_image_links, custom_label_1, custom_label_2, custom_label_3, custom_label_4, raw_data, created_at, updated_at, last_synced_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_product":   `SELECT ` + productColumns + ` FROM products WHERE id = $1`,
	"insert_sync":   `INSERT INTO catalog_syncs (source, version_label, started_at) VALUES ($1, $2, $3) RETURNING id`,
	"complete_sync": `UPDATE catalog_syncs SET success = true, completed_at = $1, products_total = $2, products_added = $3, products_updated = $4, products_removed = $5 WHERE id = $6`,
	"fail_sync":     `UPDATE catalog_syncs SET success = false, completed_at = $1, error_message = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                      TEXT PRIMARY KEY,
	item_group_id           TEXT,
	title                   TEXT NOT NULL,
	description             TEXT,
	price                   DOUBLE PRECISION,
	sale_price              DOUBLE PRECISION,
	brand                   TEXT,
	condition               TEXT,
	availability            TEXT,
	availability_date       TEXT,
	color                   TEXT,
	material                TEXT,
	mpn                     TEXT,
	google_product_category TEXT,
	product_type            TEXT,
	link                    TEXT,
	mobile_link             TEXT,
	image_link              TEXT,
	additional_image_links  TEXT,
	custom_label_1          TEXT,
	custom_label_2          TEXT,
	custom_label_3          TEXT,
	custom_label_4          TEXT,
	raw_data                JSONB,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_synced_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_item_group ON products(item_group_id);
CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_product_type ON products(product_type);
CREATE INDEX IF NOT EXISTS idx_products_price ON products(price);

CREATE TABLE IF NOT EXISTS catalog_syncs (
	id               BIGSERIAL PRIMARY KEY,
	source           TEXT NOT NULL,
	version_label    TEXT UNIQUE,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ,
	success          BOOLEAN NOT NULL DEFAULT false,
	products_total   INTEGER NOT NULL DEFAULT 0,
	products_added   INTEGER NOT NULL DEFAULT 0,
	products_updated INTEGER NOT NULL DEFAULT 0,
	products_removed INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT
);

CREATE INDEX IF NOT EXISTS idx_catalog_syncs_completed ON catalog_syncs(completed_at DESC);

-- product_id carries no foreign key: change history outlives removed products.
CREATE TABLE IF NOT EXISTS product_changes (
	id         BIGSERIAL PRIMARY KEY,
	product_id TEXT NOT NULL,
	sync_id    BIGINT NOT NULL REFERENCES catalog_syncs(id),
	field_name TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_product_changes_product ON product_changes(product_id);
CREATE INDEX IF NOT EXISTS idx_product_changes_sync ON product_changes(sync_id);
CREATE INDEX IF NOT EXISTS idx_product_changes_changed_at ON product_changes(changed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateImportRun(ctx context.Context, source, versionLabel string) (*model.ImportRun, error) {
	now := time.Now().UTC()

	var label *string
	if versionLabel != "" {
		label = &versionLabel
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO catalog_syncs (source, version_label, started_at) VALUES ($1, $2, $3) RETURNING id`,
		source, label, now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert sync")
	}

	return &model.ImportRun{
		ID:           id,
		Source:       source,
		VersionLabel: versionLabel,
		StartedAt:    now,
	}, nil
}

func (s *PostgresStore) CompleteImportRun(ctx context.Context, runID int64, counts model.ImportCounts) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog_syncs SET success = true, completed_at = $1, products_total = $2, products_added = $3, products_updated = $4, products_removed = $5 WHERE id = $6`,
		time.Now().UTC(), counts.Total, counts.Added, counts.Updated, counts.Removed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync %d", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %d", runID)
	}
	return nil
}

func (s *PostgresStore) FailImportRun(ctx context.Context, runID int64, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog_syncs SET success = false, completed_at = $1, error_message = $2 WHERE id = $3`,
		time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail sync %d", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %d", runID)
	}
	return nil
}

const syncColumns = `id, source, version_label, started_at, completed_at, success, products_total, products_added, products_updated, products_removed, error_message`

func scanImportRun(row pgx.Row) (*model.ImportRun, error) {
	var r model.ImportRun
	var label, errMsg *string
	if err := row.Scan(&r.ID, &r.Source, &label, &r.StartedAt, &r.CompletedAt,
		&r.Success, &r.Total, &r.Added, &r.Updated, &r.Removed, &errMsg); err != nil {
		return nil, err
	}
	if label != nil {
		r.VersionLabel = *label
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) GetImportRun(ctx context.Context, runID int64) (*model.ImportRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+syncColumns+` FROM catalog_syncs WHERE id = $1`, runID)
	r, err := scanImportRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get sync %d", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+syncColumns+` FROM catalog_syncs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		r, err := scanImportRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list syncs iterate")
}

func (s *PostgresStore) RecentSuccessfulImports(ctx context.Context, limit int) ([]model.ImportSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, version_label, completed_at, products_total, products_added, products_updated
		 FROM catalog_syncs WHERE success = true
		 ORDER BY completed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent imports")
	}
	defer rows.Close()

	var imports []model.ImportSummary
	for rows.Next() {
		var im model.ImportSummary
		var label *string
		if err := rows.Scan(&im.ID, &label, &im.CompletedAt, &im.Total, &im.Added, &im.Updated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import summary")
		}
		if label != nil {
			im.VersionLabel = *label
		}
		imports = append(imports, im)
	}
	return imports, eris.Wrap(rows.Err(), "postgres: recent imports iterate")
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	var rawJSON []byte
	if err := row.Scan(&p.ID, &p.ItemGroupID, &p.Title, &p.Description,
		&p.Price, &p.SalePrice, &p.Brand, &p.Condition, &p.Availability,
		&p.AvailabilityDate, &p.Color, &p.Material, &p.MPN,
		&p.GoogleProductCategory, &p.ProductType, &p.Link, &p.MobileLink,
		&p.ImageLink, &p.AdditionalImageLinks, &p.CustomLabel1, &p.CustomLabel2,
		&p.CustomLabel3, &p.CustomLabel4, &rawJSON,
		&p.CreatedAt, &p.UpdatedAt, &p.LastSyncedAt); err != nil {
		return nil, err
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &p.RawData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw data")
		}
	}
	return &p, nil
}

func productArgs(p model.Product, rawJSON []byte) []any {
	return []any{
		p.ID, p.ItemGroupID, p.Title, p.Description, p.Price, p.SalePrice,
		p.Brand, p.Condition, p.Availability, p.AvailabilityDate, p.Color,
		p.Material, p.MPN, p.GoogleProductCategory, p.ProductType, p.Link,
		p.MobileLink, p.ImageLink, p.AdditionalImageLinks, p.CustomLabel1,
		p.CustomLabel2, p.CustomLabel3, p.CustomLabel4, rawJSON,
		p.CreatedAt, p.UpdatedAt, p.LastSyncedAt,
	}
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func (s *PostgresStore) SnapshotProducts(ctx context.Context) (map[string]model.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot products")
	}
	defer rows.Close()

	snapshot := make(map[string]model.Product)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		snapshot[p.ID] = *p
	}
	return snapshot, eris.Wrap(rows.Err(), "postgres: snapshot iterate")
}

func (s *PostgresStore) ApplyImport(ctx context.Context, runID int64, cs *model.ChangeSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin import tx")
	}
	defer tx.Rollback(ctx)

	insertSQL := `INSERT INTO products (` + productColumns + `) VALUES (` + placeholders(27) + `)`
	for _, p := range cs.Creates {
		rawJSON, err := json.Marshal(p.RawData)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal raw data %s", p.ID)
		}
		if _, err := tx.Exec(ctx, insertSQL, productArgs(p, rawJSON)...); err != nil {
			return eris.Wrapf(err, "postgres: insert product %s", p.ID)
		}
	}

	updateSQL := `UPDATE products SET
		item_group_id = $2, title = $3, description = $4, price = $5, sale_price = $6,
		brand = $7, condition = $8, availability = $9, availability_date = $10,
		color = $11, material = $12, mpn = $13, google_product_category = $14,
		product_type = $15, link = $16, mobile_link = $17, image_link = $18,
		additional_image_links = $19, custom_label_1 = $20, custom_label_2 = $21,
		custom_label_3 = $22, custom_label_4 = $23, raw_data = $24,
		updated_at = $25, last_synced_at = $26
		WHERE id = $1`
	for _, p := range cs.Updates {
		rawJSON, err := json.Marshal(p.RawData)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal raw data %s", p.ID)
		}
		args := []any{
			p.ID, p.ItemGroupID, p.Title, p.Description, p.Price, p.SalePrice,
			p.Brand, p.Condition, p.Availability, p.AvailabilityDate, p.Color,
			p.Material, p.MPN, p.GoogleProductCategory, p.ProductType, p.Link,
			p.MobileLink, p.ImageLink, p.AdditionalImageLinks, p.CustomLabel1,
			p.CustomLabel2, p.CustomLabel3, p.CustomLabel4, rawJSON,
			p.UpdatedAt, p.LastSyncedAt,
		}
		if _, err := tx.Exec(ctx, updateSQL, args...); err != nil {
			return eris.Wrapf(err, "postgres: update product %s", p.ID)
		}
	}

	if len(cs.Changes) > 0 {
		changeRows := make([][]any, len(cs.Changes))
		for i, c := range cs.Changes {
			changeRows[i] = []any{c.ProductID, runID, c.Field, c.OldValue, c.NewValue, c.ChangedAt}
		}
		if _, err := db.CopyFrom(ctx, tx, "product_changes",
			[]string{"product_id", "sync_id", "field_name", "old_value", "new_value", "changed_at"},
			changeRows); err != nil {
			return eris.Wrapf(err, "postgres: copy changes for sync %d", runID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit import %d", runID)
	}
	return nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return p, nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, sql string, args ...any) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func (s *PostgresStore) ProductsByCategory(ctx context.Context, category string, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + category + "%"
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE product_type ILIKE $1 OR google_product_category ILIKE $1
		 ORDER BY id LIMIT $2`,
		pattern, limit)
}

func (s *PostgresStore) ProductsByPriceRange(ctx context.Context, min, max float64, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE price >= $1 AND price <= $2
		 ORDER BY price LIMIT $3`,
		min, max, limit)
}

func (s *PostgresStore) SearchProducts(ctx context.Context, tokens []string, limit int) ([]model.Product, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// Every token must match at least one searchable field.
	var clauses []string
	args := []any{}
	for i, tok := range tokens {
		n := i + 1
		clauses = append(clauses, fmt.Sprintf(
			`(title ILIKE $%d OR description ILIKE $%d OR brand ILIKE $%d OR product_type ILIKE $%d)`,
			n, n, n, n))
		args = append(args, "%"+tok+"%")
	}
	args = append(args, limit)

	sql := `SELECT ` + productColumns + ` FROM products WHERE ` +
		strings.Join(clauses, " AND ") +
		fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(tokens)+1)
	return s.queryProducts(ctx, sql, args...)
}

func (s *PostgresStore) ChangesSince(ctx context.Context, since time.Time) ([]model.FieldChange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, sync_id, field_name, old_value, new_value, changed_at
		 FROM product_changes WHERE changed_at >= $1
		 ORDER BY product_id, changed_at`, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: changes since")
	}
	defer rows.Close()

	var changes []model.FieldChange
	for rows.Next() {
		var c model.FieldChange
		var oldVal, newVal *string
		if err := rows.Scan(&c.ID, &c.ProductID, &c.RunID, &c.Field, &oldVal, &newVal, &c.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		if oldVal != nil {
			c.OldValue = *oldVal
		}
		if newVal != nil {
			c.NewValue = *newVal
		}
		changes = append(changes, c)
	}
	return changes, eris.Wrap(rows.Err(), "postgres: changes iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats

	var avg, minPrice, maxPrice float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(DISTINCT brand) FILTER (WHERE brand <> ''),
		        COUNT(DISTINCT product_type) FILTER (WHERE product_type <> ''),
		        COALESCE(AVG(price), 0), COALESCE(MIN(price), 0), COALESCE(MAX(price), 0)
		 FROM products`,
	).Scan(&stats.TotalProducts, &stats.UniqueBrands, &stats.UniqueCategories,
		&avg, &minPrice, &maxPrice)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats aggregates")
	}
	stats.Prices = model.PriceStats{
		Average: math.Round(avg*100) / 100,
		Minimum: minPrice,
		Maximum: maxPrice,
	}

	rows, err := s.pool.Query(ctx,
		`SELECT brand FROM products WHERE brand <> ''
		 GROUP BY brand ORDER BY COUNT(*) DESC, brand LIMIT 10`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats brands")
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand")
		}
		stats.TopBrands = append(stats.TopBrands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats brands iterate")
	}

	return &stats, nil
}
