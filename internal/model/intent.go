package model

// IntentKind names the closed set of query intents.
type IntentKind string

const (
	IntentProductInfo    IntentKind = "product_info"
	IntentCategorySearch IntentKind = "category_search"
	IntentPriceRange     IntentKind = "price_range"
	IntentRecentChanges  IntentKind = "recent_changes"
	IntentCatalogStats   IntentKind = "catalog_stats"
	IntentGeneralSearch  IntentKind = "general_search"
)

// Intent is the classified purpose of a free-text query plus its extracted
// parameters. Only the fields for the matching kind are populated.
type Intent struct {
	Kind      IntentKind `json:"intent"`
	ProductID string     `json:"product_id,omitempty"`
	Category  string     `json:"category,omitempty"`
	MinPrice  float64    `json:"min_price,omitempty"`
	MaxPrice  float64    `json:"max_price,omitempty"`
	Days      int        `json:"days,omitempty"`
	Text      string     `json:"text,omitempty"`
}
