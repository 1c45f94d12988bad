package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilifiver/feedwise/internal/assistant"
	"github.com/mobilifiver/feedwise/internal/catalog"
	"github.com/mobilifiver/feedwise/internal/config"
	"github.com/mobilifiver/feedwise/internal/fetcher"
	"github.com/mobilifiver/feedwise/internal/model"
	"github.com/mobilifiver/feedwise/internal/monitoring"
	"github.com/mobilifiver/feedwise/internal/query"
	"github.com/mobilifiver/feedwise/internal/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg = &config.Config{
		Feed: config.FeedConfig{VersionPrefix: "feed"},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateImportRun(ctx, "feed.json", "v1")
	require.NoError(t, err)
	now := time.Now().UTC()
	price := 120.50
	cs := &model.ChangeSet{
		Creates: []model.Product{
			{ID: "MENAPPCEM", Title: "Mensola Cemento", Brand: "Nordika",
				ProductType: "Arredamento > Mensole", Price: &price,
				CreatedAt: now, UpdatedAt: now, LastSyncedAt: now},
		},
	}
	require.NoError(t, st.ApplyImport(ctx, run.ID, cs))
	require.NoError(t, st.CompleteImportRun(ctx, run.ID, model.ImportCounts{Total: 1, Added: 1}))

	exec := query.NewExecutor(st, query.Limits{})
	return &app{
		store:     st,
		importer:  catalog.NewImporter(st, fetcher.NewClient(fetcher.Options{})),
		executor:  exec,
		assistant: assistant.New(exec, st, nil, assistant.Options{}),
		checker:   monitoring.NewChecker(st, monitoring.Thresholds{}),
	}
}

func TestServeHealth(t *testing.T) {
	router := newRouter(newTestApp(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var status monitoring.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.TotalProducts)
}

func TestServeQuery(t *testing.T) {
	router := newRouter(newTestApp(t))

	body := bytes.NewBufferString(`{"query": "informazioni sul prodotto MENAPPCEM"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	var env model.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	require.NotNil(t, env.Product)
	assert.Equal(t, "MENAPPCEM", env.Product.ID)
}

func TestServeQuery_MissingBody(t *testing.T) {
	router := newRouter(newTestApp(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeChat_AssignsSession(t *testing.T) {
	router := newRouter(newTestApp(t))

	body := bytes.NewBufferString(`{"message": "statistiche del catalogo"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["session_id"])
	assert.Contains(t, resp["answer"], "Total products: 1")
}

func TestServeWebhookImport_NoSource(t *testing.T) {
	router := newRouter(newTestApp(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/import", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeWebhookImport_Accepted(t *testing.T) {
	router := newRouter(newTestApp(t))

	body := bytes.NewBufferString(`{"url": "https://shop.example.com/feed.json", "version": "v2"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/import", body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "v2", resp["version"])
}

func TestSessionStoreCapsHistory(t *testing.T) {
	s := newSessionStore()
	for i := 0; i < maxHistoryTurns+5; i++ {
		s.append("sess", "q", "a")
	}
	h := s.history("sess")
	assert.Len(t, h, maxHistoryTurns*2)

	// history returns a copy
	h[0].Content = "mutated"
	assert.NotEqual(t, "mutated", s.history("sess")[0].Content)
}
