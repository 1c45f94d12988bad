package respond

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mobilifiver/feedwise/internal/model"
)

func TestFormat_FailureEnvelope(t *testing.T) {
	f := NewFormatter()

	out := f.Format(&model.ResultEnvelope{Success: false, ResultType: model.ResultProducts})
	assert.Equal(t, "No catalog information matched your request.", out)
	assert.Equal(t, out, f.Format(nil))
}

func TestFormat_ProductCard(t *testing.T) {
	price := 120.5
	sale := 99.0
	env := &model.ResultEnvelope{
		Success:    true,
		ResultType: model.ResultProduct,
		Product: &model.ProductView{
			ID: "SKU1", Title: "Divano Oslo", Description: "Divano a tre posti",
			Brand: "Nordika", Price: &price, SalePrice: &sale,
			Color: "grigio", Availability: "in stock", Category: "Arredamento > Divani",
		},
	}

	out := NewFormatter().Format(env)
	assert.Contains(t, out, "ID: SKU1")
	assert.Contains(t, out, "Name: Divano Oslo")
	assert.Contains(t, out, "Price: 120.50€")
	assert.Contains(t, out, "Sale price: 99.00€")
	assert.Contains(t, out, "Color: grigio")
	assert.Contains(t, out, "Category: Arredamento > Divani")
}

func TestFormat_ProductCard_SalePriceEqualToPriceOmitted(t *testing.T) {
	price := 100.0
	same := 100.0
	out := NewFormatter().Product(&model.ProductView{
		ID: "SKU1", Title: "Divano", Price: &price, SalePrice: &same,
	})
	assert.NotContains(t, out, "Sale price")
}

func TestFormat_ProductList(t *testing.T) {
	p1 := 45.0
	env := &model.ResultEnvelope{
		Success:    true,
		ResultType: model.ResultProducts,
		Products: []model.ProductView{
			{ID: "SKU2", Title: "Lampada Luna", Price: &p1, Brand: "Lumen"},
			{ID: "SKU3", Title: "Tavolo Roma"},
		},
	}

	out := NewFormatter().Format(env)
	assert.Contains(t, out, "Found 2 products:")
	assert.Contains(t, out, "1. Lampada Luna (ID: SKU2)")
	assert.Contains(t, out, "   Price: 45.00€")
	assert.Contains(t, out, "2. Tavolo Roma (ID: SKU3)")
	assert.Contains(t, out, "   Price: n/a")
}

func TestFormat_Changes(t *testing.T) {
	env := &model.ResultEnvelope{
		Success:    true,
		ResultType: model.ResultChanges,
		Changes: []model.ChangeGroup{
			{
				ProductID: "SKU1",
				Title:     "Divano Oslo",
				Changes: []model.FieldDelta{
					{Field: "price", OldValue: "100", NewValue: "120"},
					{Field: "color", OldValue: "", NewValue: "grigio"},
				},
			},
		},
	}

	out := NewFormatter().Format(env)
	assert.Contains(t, out, "Recent changes for 1 products:")
	assert.Contains(t, out, "1. Divano Oslo (ID: SKU1)")
	assert.Contains(t, out, "   - price: 100 → 120")
	assert.Contains(t, out, "   - color: (empty) → grigio")
}

func TestFormat_Stats(t *testing.T) {
	completed := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	env := &model.ResultEnvelope{
		Success:    true,
		ResultType: model.ResultStats,
		Stats: &model.CatalogStats{
			TotalProducts:    1520,
			UniqueBrands:     12,
			UniqueCategories: 8,
			Prices:           model.PriceStats{Average: 158.5, Minimum: 9.9, Maximum: 1200},
			TopBrands:        []string{"Lumen", "Nordika"},
			RecentImports: []model.ImportSummary{
				{ID: 3, CompletedAt: &completed, Total: 1520, Added: 4, Updated: 12},
			},
		},
	}

	out := NewFormatter().Format(env)
	assert.Contains(t, out, "- Total products: 1,520")
	assert.Contains(t, out, "- Average price: 158.50€")
	assert.Contains(t, out, "- Main brands: Lumen, Nordika")
	assert.Contains(t, out, "* 2026-08-30 06:00: 1,520 products, 4 added, 12 updated")
}

func TestFormat_EmptyLists(t *testing.T) {
	f := NewFormatter()
	assert.Equal(t, "No products matched the criteria.", f.ProductList(nil))
	assert.Equal(t, "No recent changes found.", f.Changes(nil))
	assert.Equal(t, "Product not found in the catalog.", f.Product(nil))
}
