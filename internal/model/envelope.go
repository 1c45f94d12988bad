package model

import "time"

// ResultType tags the payload variant inside a ResultEnvelope.
type ResultType string

const (
	ResultProduct  ResultType = "product"
	ResultProducts ResultType = "products"
	ResultChanges  ResultType = "changes"
	ResultStats    ResultType = "stats"
)

// FieldDelta is one old→new transition shown in a change group.
type FieldDelta struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ChangeGroup collects one product's recent field changes.
type ChangeGroup struct {
	ProductID string       `json:"id"`
	Title     string       `json:"title"`
	Changes   []FieldDelta `json:"changes"`
}

// PriceBounds echoes the extracted range back in price-range results.
type PriceBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ImportSummary is the condensed run view included in catalog stats.
type ImportSummary struct {
	ID           int64      `json:"id"`
	VersionLabel string     `json:"version,omitempty"`
	CompletedAt  *time.Time `json:"date,omitempty"`
	Total        int        `json:"products"`
	Added        int        `json:"added"`
	Updated      int        `json:"updated"`
}

// PriceStats aggregates catalog prices. Average is rounded to 2 decimals.
type PriceStats struct {
	Average float64 `json:"average"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
}

// CatalogStats is the aggregate view behind the catalog_stats intent.
// An empty catalog yields zeroed stats, not a failure.
type CatalogStats struct {
	TotalProducts    int             `json:"total_products"`
	UniqueBrands     int             `json:"unique_brands"`
	UniqueCategories int             `json:"unique_categories"`
	Prices           PriceStats      `json:"price_stats"`
	TopBrands        []string        `json:"top_brands,omitempty"`
	RecentImports    []ImportSummary `json:"recent_imports,omitempty"`
}

// ResultEnvelope is the uniform wrapper returned by every query path, so the
// formatter and API callers treat all intents alike. Exactly one payload field
// is populated, matching ResultType.
type ResultEnvelope struct {
	Success    bool       `json:"success"`
	Intent     IntentKind `json:"intent"`
	Query      string     `json:"query"`
	ResultType ResultType `json:"result_type"`

	Product  *ProductView  `json:"product,omitempty"`
	Products []ProductView `json:"products,omitempty"`
	Changes  []ChangeGroup `json:"changes,omitempty"`
	Stats    *CatalogStats `json:"stats,omitempty"`

	Count      int          `json:"count,omitempty"`
	PriceRange *PriceBounds `json:"price_range,omitempty"`
}
