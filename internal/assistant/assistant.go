// Package assistant turns query results into conversational answers through
// Claude, degrading to the plain formatted data when the API is unavailable.
package assistant

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/internal/model"
	"github.com/mobilifiver/feedwise/internal/query"
	"github.com/mobilifiver/feedwise/internal/respond"
	"github.com/mobilifiver/feedwise/internal/store"
	"github.com/mobilifiver/feedwise/pkg/anthropic"
)

const systemPrompt = `You are an assistant specialized in the Mobili Fiver product catalog.
Your job is to help customers find product information.
ALWAYS ground your answers in the provided data and never invent information.
If the data is insufficient, ask the user for more detail.

When describing products:
- Use a professional but friendly tone
- Highlight key characteristics such as materials and colors
- Always mention the price when available
- Suggest similar products when appropriate

For availability or price questions, use ONLY the supplied data,
without guessing.`

const fallbackPrefix = "Here is the catalog information I found:\n\n"

const maxSimilarProducts = 3

// Options configures the assistant.
type Options struct {
	Model     string
	MaxTokens int64
}

// Assistant answers free-text catalog questions. When no Claude client is
// configured every answer is the deterministic formatted result.
type Assistant struct {
	executor  *query.Executor
	store     store.Store
	formatter *respond.Formatter
	client    anthropic.Client
	opts      Options
	log       *zap.Logger
}

// New creates an Assistant. client may be nil to disable rephrasing.
func New(executor *query.Executor, st store.Store, client anthropic.Client, opts Options) *Assistant {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	return &Assistant{
		executor:  executor,
		store:     st,
		formatter: respond.NewFormatter(),
		client:    client,
		opts:      opts,
		log:       zap.L().With(zap.String("component", "assistant")),
	}
}

// Answer executes the query, formats the result, and asks Claude to phrase a
// reply grounded on it. history carries prior conversation turns. Any API
// failure degrades to the formatted catalog data.
func (a *Assistant) Answer(ctx context.Context, userQuery string, history []anthropic.Message) (string, error) {
	env := a.executor.Execute(ctx, userQuery)
	formatted := a.formatter.Format(env)

	if env.Intent == model.IntentProductInfo && env.Success && env.Product != nil {
		if similar := a.similarProducts(ctx, *env.Product); len(similar) > 0 {
			formatted += "\n\nSimilar products that may interest you:\n" +
				a.formatter.ProductList(similar)
		}
	}

	if a.client == nil {
		return fallbackPrefix + formatted, nil
	}

	messages := make([]anthropic.Message, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages,
		anthropic.Message{Role: "user", Content: userQuery},
		anthropic.Message{Role: "user", Content: "Catalog information:\n\n" + formatted},
	)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  messages,
	})
	if err != nil {
		a.log.Warn("claude call failed, returning formatted data", zap.Error(err))
		return fallbackPrefix + formatted, nil
	}

	resp.Usage.LogCost(a.opts.Model, "assistant")

	text := resp.Text()
	if text == "" {
		return fallbackPrefix + formatted, nil
	}
	return text, nil
}

// similarProducts finds up to three products in the same category, nearest
// in price to the reference product, excluding the product itself.
func (a *Assistant) similarProducts(ctx context.Context, ref model.ProductView) []model.ProductView {
	if ref.Category == "" {
		return nil
	}

	candidates, err := a.store.ProductsByCategory(ctx, ref.Category, 10)
	if err != nil {
		a.log.Warn("similar products lookup failed", zap.Error(err))
		return nil
	}

	views := make([]model.ProductView, 0, len(candidates))
	for _, p := range candidates {
		if p.ID == ref.ID {
			continue
		}
		views = append(views, p.View())
	}

	if ref.Price != nil && *ref.Price > 0 {
		refPrice := *ref.Price
		sort.SliceStable(views, func(i, j int) bool {
			return priceDistance(views[i].Price, refPrice) < priceDistance(views[j].Price, refPrice)
		})
	}

	if len(views) > maxSimilarProducts {
		views = views[:maxSimilarProducts]
	}
	return views
}

func priceDistance(p *float64, ref float64) float64 {
	if p == nil {
		return math.Abs(ref)
	}
	return math.Abs(*p - ref)
}
