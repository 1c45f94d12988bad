package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/internal/model"
	"github.com/mobilifiver/feedwise/internal/store"
)

// Limits caps result sizes per envelope type.
type Limits struct {
	Results       int `yaml:"result_limit" mapstructure:"result_limit"`
	ChangeGroups  int `yaml:"changes_limit" mapstructure:"changes_limit"`
	RecentImports int `yaml:"recent_imports_limit" mapstructure:"recent_imports_limit"`
}

// DefaultLimits are applied where the config leaves a cap unset.
var DefaultLimits = Limits{Results: 10, ChangeGroups: 10, RecentImports: 5}

// minSearchTokenLen drops short noise words from general search.
const minSearchTokenLen = 3

// Executor answers classified intents from the store. Every branch returns
// the same envelope shape; store errors degrade to success=false envelopes
// and never propagate.
type Executor struct {
	store  store.Store
	limits Limits
	log    *zap.Logger
}

// NewExecutor creates an Executor with the given caps.
func NewExecutor(st store.Store, limits Limits) *Executor {
	if limits.Results <= 0 {
		limits.Results = DefaultLimits.Results
	}
	if limits.ChangeGroups <= 0 {
		limits.ChangeGroups = DefaultLimits.ChangeGroups
	}
	if limits.RecentImports <= 0 {
		limits.RecentImports = DefaultLimits.RecentImports
	}
	return &Executor{
		store:  st,
		limits: limits,
		log:    zap.L().With(zap.String("component", "query")),
	}
}

// Execute classifies and answers a free-text query.
func (e *Executor) Execute(ctx context.Context, text string) *model.ResultEnvelope {
	intent := Classify(text)
	e.log.Debug("classified query",
		zap.String("query", text),
		zap.String("intent", string(intent.Kind)),
	)
	return e.Run(ctx, text, intent)
}

// Run answers an already-classified intent.
func (e *Executor) Run(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	switch intent.Kind {
	case model.IntentProductInfo:
		return e.productInfo(ctx, text, intent)
	case model.IntentCategorySearch:
		return e.categorySearch(ctx, text, intent)
	case model.IntentPriceRange:
		return e.priceRange(ctx, text, intent)
	case model.IntentRecentChanges:
		return e.recentChanges(ctx, text, intent)
	case model.IntentCatalogStats:
		return e.catalogStats(ctx, text, intent)
	default:
		return e.generalSearch(ctx, text, intent)
	}
}

func (e *Executor) failure(text string, intent model.Intent, rt model.ResultType, err error) *model.ResultEnvelope {
	e.log.Warn("query failed",
		zap.String("query", text),
		zap.String("intent", string(intent.Kind)),
		zap.Error(err),
	)
	return &model.ResultEnvelope{
		Success:    false,
		Intent:     intent.Kind,
		Query:      text,
		ResultType: rt,
	}
}

func (e *Executor) productInfo(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	env := &model.ResultEnvelope{
		Intent:     intent.Kind,
		Query:      text,
		ResultType: model.ResultProduct,
	}

	p, err := e.store.GetProduct(ctx, intent.ProductID)
	if err != nil {
		return e.failure(text, intent, model.ResultProduct, err)
	}
	if p != nil {
		view := p.View()
		env.Product = &view
		env.Success = true
	}
	return env
}

func (e *Executor) categorySearch(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	products, err := e.store.ProductsByCategory(ctx, intent.Category, e.limits.Results)
	if err != nil {
		return e.failure(text, intent, model.ResultProducts, err)
	}
	return e.productList(text, intent, products, nil)
}

func (e *Executor) priceRange(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	products, err := e.store.ProductsByPriceRange(ctx, intent.MinPrice, intent.MaxPrice, e.limits.Results)
	if err != nil {
		return e.failure(text, intent, model.ResultProducts, err)
	}
	bounds := &model.PriceBounds{Min: intent.MinPrice, Max: intent.MaxPrice}
	return e.productList(text, intent, products, bounds)
}

func (e *Executor) generalSearch(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(intent.Text)) {
		if len([]rune(tok)) >= minSearchTokenLen {
			tokens = append(tokens, tok)
		}
	}

	if len(tokens) == 0 {
		return &model.ResultEnvelope{
			Intent:     intent.Kind,
			Query:      text,
			ResultType: model.ResultProducts,
		}
	}

	products, err := e.store.SearchProducts(ctx, tokens, e.limits.Results)
	if err != nil {
		return e.failure(text, intent, model.ResultProducts, err)
	}
	return e.productList(text, intent, products, nil)
}

func (e *Executor) productList(text string, intent model.Intent, products []model.Product, bounds *model.PriceBounds) *model.ResultEnvelope {
	views := make([]model.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, p.View())
	}
	return &model.ResultEnvelope{
		Success:    len(views) > 0,
		Intent:     intent.Kind,
		Query:      text,
		ResultType: model.ResultProducts,
		Products:   views,
		Count:      len(views),
		PriceRange: bounds,
	}
}

func (e *Executor) recentChanges(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	days := intent.Days
	if days <= 0 {
		days = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	changes, err := e.store.ChangesSince(ctx, since)
	if err != nil {
		return e.failure(text, intent, model.ResultChanges, err)
	}

	groups := e.groupChanges(ctx, changes)
	return &model.ResultEnvelope{
		Success:    len(groups) > 0,
		Intent:     intent.Kind,
		Query:      text,
		ResultType: model.ResultChanges,
		Changes:    groups,
		Count:      len(groups),
	}
}

// groupChanges buckets change rows by product, attaches titles, and orders
// groups by change count descending. Products removed since their changes
// were recorded keep their rows; the title falls back to the ID.
func (e *Executor) groupChanges(ctx context.Context, changes []model.FieldChange) []model.ChangeGroup {
	byProduct := make(map[string][]model.FieldDelta)
	var order []string
	for _, c := range changes {
		if _, ok := byProduct[c.ProductID]; !ok {
			order = append(order, c.ProductID)
		}
		byProduct[c.ProductID] = append(byProduct[c.ProductID], model.FieldDelta{
			Field:    c.Field,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
		})
	}

	groups := make([]model.ChangeGroup, 0, len(order))
	for _, id := range order {
		title := id
		if p, err := e.store.GetProduct(ctx, id); err == nil && p != nil && p.Title != "" {
			title = p.Title
		}
		groups = append(groups, model.ChangeGroup{
			ProductID: id,
			Title:     title,
			Changes:   byProduct[id],
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Changes) > len(groups[j].Changes)
	})

	if len(groups) > e.limits.ChangeGroups {
		groups = groups[:e.limits.ChangeGroups]
	}
	return groups
}

func (e *Executor) catalogStats(ctx context.Context, text string, intent model.Intent) *model.ResultEnvelope {
	env := &model.ResultEnvelope{
		Success:    true,
		Intent:     intent.Kind,
		Query:      text,
		ResultType: model.ResultStats,
	}

	stats, err := e.store.Stats(ctx)
	if err != nil {
		return e.failure(text, intent, model.ResultStats, err)
	}

	if imports, err := e.store.RecentSuccessfulImports(ctx, e.limits.RecentImports); err == nil {
		stats.RecentImports = imports
	} else {
		e.log.Warn("recent imports unavailable", zap.Error(err))
	}

	env.Stats = stats
	return env
}
