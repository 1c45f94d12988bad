package assistant

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilifiver/feedwise/internal/model"
	"github.com/mobilifiver/feedwise/internal/query"
	"github.com/mobilifiver/feedwise/internal/store"
	"github.com/mobilifiver/feedwise/pkg/anthropic"
)

// stubClient returns a canned response or error and records the last request.
type stubClient struct {
	resp    *anthropic.MessageResponse
	err     error
	lastReq anthropic.MessageRequest
	calls   int
}

func (s *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateImportRun(ctx, "feed.json", "v1")
	require.NoError(t, err)

	now := time.Now().UTC()
	p120 := 120.50
	p135 := 135.0
	p480 := 480.0
	p45 := 45.0
	cs := &model.ChangeSet{
		Creates: []model.Product{
			{ID: "TAV1", Title: "Tavolo Roma", Brand: "Nordika",
				ProductType: "Arredamento > Tavoli", Price: &p120,
				CreatedAt: now, UpdatedAt: now, LastSyncedAt: now},
			{ID: "TAV2", Title: "Tavolo Milano", Brand: "Nordika",
				ProductType: "Arredamento > Tavoli", Price: &p135,
				CreatedAt: now, UpdatedAt: now, LastSyncedAt: now},
			{ID: "TAV3", Title: "Tavolo Firenze", Brand: "Nordika",
				ProductType: "Arredamento > Tavoli", Price: &p480,
				CreatedAt: now, UpdatedAt: now, LastSyncedAt: now},
			{ID: "LAMP1", Title: "Lampada Luna", Brand: "Lumen",
				ProductType: "Illuminazione", Price: &p45,
				CreatedAt: now, UpdatedAt: now, LastSyncedAt: now},
		},
	}
	require.NoError(t, st.ApplyImport(ctx, run.ID, cs))
	require.NoError(t, st.CompleteImportRun(ctx, run.ID, model.ImportCounts{Total: 4, Added: 4}))
	return st
}

func newTestAssistant(t *testing.T, client anthropic.Client) *Assistant {
	t.Helper()
	st := newTestStore(t)
	return New(query.NewExecutor(st, query.Limits{}), st, client, Options{})
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 200, OutputTokens: 40},
	}
}

func TestAnswer_UsesClaudeResponse(t *testing.T) {
	client := &stubClient{resp: textResponse("Il Tavolo Roma costa 120.50€.")}
	a := newTestAssistant(t, client)

	answer, err := a.Answer(context.Background(), "informazioni sul prodotto TAV1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Il Tavolo Roma costa 120.50€.", answer)
	assert.Equal(t, 1, client.calls)

	req := client.lastReq
	require.NotEmpty(t, req.System)
	assert.Contains(t, req.System[0].Text, "Mobili Fiver")
	require.NotNil(t, req.System[0].CacheControl)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "informazioni sul prodotto TAV1", req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, "Tavolo Roma")
}

func TestAnswer_ProductInfoIncludesSimilarProducts(t *testing.T) {
	client := &stubClient{resp: textResponse("ok")}
	a := newTestAssistant(t, client)

	_, err := a.Answer(context.Background(), "informazioni sul prodotto TAV1", nil)
	require.NoError(t, err)

	catalogMsg := client.lastReq.Messages[1].Content
	assert.Contains(t, catalogMsg, "Similar products")
	// nearest price first, never the product itself
	assert.Contains(t, catalogMsg, "Tavolo Milano")
	assert.Contains(t, catalogMsg, "Tavolo Firenze")
	assert.NotContains(t, catalogMsg, "Lampada Luna")
}

func TestAnswer_HistoryPrecedesQuery(t *testing.T) {
	client := &stubClient{resp: textResponse("ok")}
	a := newTestAssistant(t, client)

	history := []anthropic.Message{
		{Role: "user", Content: "ciao"},
		{Role: "assistant", Content: "Ciao! Come posso aiutarti?"},
	}
	_, err := a.Answer(context.Background(), "statistiche del catalogo", history)
	require.NoError(t, err)

	req := client.lastReq
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "ciao", req.Messages[0].Content)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "statistiche del catalogo", req.Messages[2].Content)
}

func TestAnswer_APIFailureDegradesToFormattedData(t *testing.T) {
	client := &stubClient{err: assert.AnError}
	a := newTestAssistant(t, client)

	answer, err := a.Answer(context.Background(), "informazioni sul prodotto LAMP1", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "Here is the catalog information I found:")
	assert.Contains(t, answer, "Lampada Luna")
	assert.Contains(t, answer, "45.00€")
}

func TestAnswer_NilClientReturnsFormattedData(t *testing.T) {
	a := newTestAssistant(t, nil)

	answer, err := a.Answer(context.Background(), "statistiche del catalogo", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "Here is the catalog information I found:")
	assert.Contains(t, answer, "Total products: 4")
}

func TestAnswer_NoMatchStillAnswers(t *testing.T) {
	a := newTestAssistant(t, nil)

	answer, err := a.Answer(context.Background(), "informazioni sul prodotto GHOST1", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "No catalog information matched your request.")
}

func TestSimilarProducts_NearestPriceCapped(t *testing.T) {
	a := newTestAssistant(t, nil)

	ref := mustProduct(t, a, "TAV1")
	similar := a.similarProducts(context.Background(), ref)
	require.Len(t, similar, 2)
	assert.Equal(t, "TAV2", similar[0].ID)
	assert.Equal(t, "TAV3", similar[1].ID)
}

func TestSimilarProducts_NoCategory(t *testing.T) {
	a := newTestAssistant(t, nil)

	similar := a.similarProducts(context.Background(), model.ProductView{ID: "X"})
	assert.Empty(t, similar)
}

func mustProduct(t *testing.T, a *Assistant, id string) model.ProductView {
	t.Helper()
	p, err := a.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.View()
}
