// Package catalog reconciles incoming feed items against the persisted
// product catalog, producing creates, updates, and field-level change rows.
package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mobilifiver/feedwise/internal/model"
)

// FieldKind distinguishes how a tracked field is normalized and compared.
type FieldKind int

const (
	// KindText fields compare as normalized strings.
	KindText FieldKind = iota
	// KindPrice fields parse to *float64 before comparison so "100" and
	// 100.0 compare equal. Empty or absent values parse to nil.
	KindPrice
)

// TrackedField is one product attribute eligible for change detection.
// Exactly one of Text or Price is set, matching Kind.
type TrackedField struct {
	Name  string
	Kind  FieldKind
	Text  func(p *model.Product) *string
	Price func(p *model.Product) **float64
}

// TrackedFields is the fixed set of audited attributes. The feed key and the
// audit field name are identical. ID and item group are deliberately absent:
// the ID is immutable and the grouping key is only set at creation.
var TrackedFields = []TrackedField{
	{Name: "title", Kind: KindText, Text: func(p *model.Product) *string { return &p.Title }},
	{Name: "description", Kind: KindText, Text: func(p *model.Product) *string { return &p.Description }},
	{Name: "price", Kind: KindPrice, Price: func(p *model.Product) **float64 { return &p.Price }},
	{Name: "sale_price", Kind: KindPrice, Price: func(p *model.Product) **float64 { return &p.SalePrice }},
	{Name: "brand", Kind: KindText, Text: func(p *model.Product) *string { return &p.Brand }},
	{Name: "condition", Kind: KindText, Text: func(p *model.Product) *string { return &p.Condition }},
	{Name: "availability", Kind: KindText, Text: func(p *model.Product) *string { return &p.Availability }},
	{Name: "availability_date", Kind: KindText, Text: func(p *model.Product) *string { return &p.AvailabilityDate }},
	{Name: "color", Kind: KindText, Text: func(p *model.Product) *string { return &p.Color }},
	{Name: "material", Kind: KindText, Text: func(p *model.Product) *string { return &p.Material }},
	{Name: "mpn", Kind: KindText, Text: func(p *model.Product) *string { return &p.MPN }},
	{Name: "google_product_category", Kind: KindText, Text: func(p *model.Product) *string { return &p.GoogleProductCategory }},
	{Name: "product_type", Kind: KindText, Text: func(p *model.Product) *string { return &p.ProductType }},
	{Name: "link", Kind: KindText, Text: func(p *model.Product) *string { return &p.Link }},
	{Name: "mobile_link", Kind: KindText, Text: func(p *model.Product) *string { return &p.MobileLink }},
	{Name: "image_link", Kind: KindText, Text: func(p *model.Product) *string { return &p.ImageLink }},
	{Name: "additional_image_links", Kind: KindText, Text: func(p *model.Product) *string { return &p.AdditionalImageLinks }},
	{Name: "custom_label_1", Kind: KindText, Text: func(p *model.Product) *string { return &p.CustomLabel1 }},
	{Name: "custom_label_2", Kind: KindText, Text: func(p *model.Product) *string { return &p.CustomLabel2 }},
	{Name: "custom_label_3", Kind: KindText, Text: func(p *model.Product) *string { return &p.CustomLabel3 }},
	{Name: "custom_label_4", Kind: KindText, Text: func(p *model.Product) *string { return &p.CustomLabel4 }},
}

// normalizeItem canonicalizes one raw feed item: list values become their JSON
// encoding, nil becomes "". The normalization is lossy on purpose: absent and
// empty are indistinguishable downstream.
func normalizeItem(raw map[string]any) map[string]any {
	norm := make(map[string]any, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			norm[key] = ""
		case []any:
			encoded, err := json.Marshal(v)
			if err != nil {
				norm[key] = ""
				continue
			}
			norm[key] = string(encoded)
		default:
			norm[key] = v
		}
	}
	return norm
}

// stringValue renders a normalized scalar as its audit string. Missing keys
// render as "".
func stringValue(item map[string]any, key string) string {
	value, ok := item[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatPrice(&v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// parsePrice converts a normalized value to a price. Empty and unparseable
// values are nil.
func parsePrice(item map[string]any, key string) *float64 {
	value, ok := item[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case float64:
		return &v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// formatPrice renders a price for the audit log. Integral values render
// without a decimal point ("100", not "100.00"); nil renders as "".
func formatPrice(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func priceEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
