// Package respond renders result envelopes as plain text, both for direct CLI
// output and as catalog context handed to the assistant.
package respond

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mobilifiver/feedwise/internal/model"
)

const (
	emptySentinel  = "(empty)"
	noMatchMessage = "No catalog information matched your request."
)

// Formatter renders envelopes. Numbers go through an x/text printer so counts
// and prices pick up digit grouping.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter creates a Formatter with English number formatting.
func NewFormatter() *Formatter {
	return &Formatter{printer: message.NewPrinter(language.English)}
}

// Format renders one envelope. Failed envelopes render a uniform no-match
// message regardless of intent.
func (f *Formatter) Format(env *model.ResultEnvelope) string {
	if env == nil || !env.Success {
		return noMatchMessage
	}

	switch env.ResultType {
	case model.ResultProduct:
		return f.Product(env.Product)
	case model.ResultProducts:
		return f.ProductList(env.Products)
	case model.ResultChanges:
		return f.Changes(env.Changes)
	case model.ResultStats:
		return f.Stats(env.Stats)
	default:
		return noMatchMessage
	}
}

// Product renders a single product card.
func (f *Formatter) Product(p *model.ProductView) string {
	if p == nil {
		return "Product not found in the catalog."
	}

	lines := []string{
		"ID: " + p.ID,
		"Name: " + p.Title,
		"Description: " + p.Description,
		"Brand: " + p.Brand,
		"Price: " + f.price(p.Price),
	}
	if p.SalePrice != nil && !samePrice(p.SalePrice, p.Price) {
		lines = append(lines, "Sale price: "+f.price(p.SalePrice))
	}
	if p.Color != "" {
		lines = append(lines, "Color: "+p.Color)
	}
	if p.Material != "" {
		lines = append(lines, "Material: "+p.Material)
	}
	if p.Availability != "" {
		lines = append(lines, "Availability: "+p.Availability)
	}
	if p.Category != "" {
		lines = append(lines, "Category: "+p.Category)
	}
	return strings.Join(lines, "\n")
}

// ProductList renders a numbered product list.
func (f *Formatter) ProductList(products []model.ProductView) string {
	if len(products) == 0 {
		return "No products matched the criteria."
	}

	blocks := []string{f.printer.Sprintf("Found %d products:", len(products))}
	for i, p := range products {
		lines := []string{
			fmt.Sprintf("%d. %s (ID: %s)", i+1, p.Title, p.ID),
			"   Price: " + f.price(p.Price),
		}
		if p.SalePrice != nil && !samePrice(p.SalePrice, p.Price) {
			lines = append(lines, "   Sale price: "+f.price(p.SalePrice))
		}
		if p.Brand != "" {
			lines = append(lines, "   Brand: "+p.Brand)
		}
		if p.Availability != "" {
			lines = append(lines, "   Availability: "+p.Availability)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// Changes renders per-product change groups with old → new lines.
func (f *Formatter) Changes(groups []model.ChangeGroup) string {
	if len(groups) == 0 {
		return "No recent changes found."
	}

	blocks := []string{f.printer.Sprintf("Recent changes for %d products:", len(groups))}
	for i, g := range groups {
		lines := []string{
			fmt.Sprintf("%d. %s (ID: %s)", i+1, g.Title, g.ProductID),
			"   Changes:",
		}
		for _, c := range g.Changes {
			oldValue := c.OldValue
			if oldValue == "" {
				oldValue = emptySentinel
			}
			newValue := c.NewValue
			if newValue == "" {
				newValue = emptySentinel
			}
			lines = append(lines, fmt.Sprintf("   - %s: %s → %s", c.Field, oldValue, newValue))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// Stats renders the catalog statistics block.
func (f *Formatter) Stats(stats *model.CatalogStats) string {
	if stats == nil {
		return noMatchMessage
	}

	lines := []string{
		"Catalog statistics:",
		f.printer.Sprintf("- Total products: %d", stats.TotalProducts),
		f.printer.Sprintf("- Distinct brands: %d", stats.UniqueBrands),
		f.printer.Sprintf("- Distinct categories: %d", stats.UniqueCategories),
		f.printer.Sprintf("- Average price: %.2f€", stats.Prices.Average),
		f.printer.Sprintf("- Maximum price: %.2f€", stats.Prices.Maximum),
		f.printer.Sprintf("- Minimum price: %.2f€", stats.Prices.Minimum),
	}

	if len(stats.TopBrands) > 0 {
		lines = append(lines, "- Main brands: "+strings.Join(stats.TopBrands, ", "))
	}

	if len(stats.RecentImports) > 0 {
		lines = append(lines, "- Recent imports:")
		for _, imp := range stats.RecentImports {
			date := "pending"
			if imp.CompletedAt != nil {
				date = imp.CompletedAt.Format("2006-01-02 15:04")
			}
			entry := f.printer.Sprintf("  * %s: %d products", date, imp.Total)
			if imp.Added > 0 {
				entry += f.printer.Sprintf(", %d added", imp.Added)
			}
			if imp.Updated > 0 {
				entry += f.printer.Sprintf(", %d updated", imp.Updated)
			}
			lines = append(lines, entry)
		}
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) price(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return f.printer.Sprintf("%.2f€", *v)
}

func samePrice(a, b *float64) bool {
	return a != nil && b != nil && *a == *b
}
