package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minasearch/frontier/internal/config"
	"github.com/minasearch/frontier/internal/frontier"
	frontiermem "github.com/minasearch/frontier/internal/frontier/memory"
	indexmem "github.com/minasearch/frontier/internal/index/memory"
	"github.com/minasearch/frontier/internal/metrics"
	"github.com/minasearch/frontier/internal/search"
	searchmem "github.com/minasearch/frontier/internal/search/memory"
)

type staticClock struct{ now time.Time }

func (c staticClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return "search-" + string(rune('0'+g.n)), nil
}

type testEnv struct {
	server    *httptest.Server
	store     *frontiermem.Store
	relations *searchmem.RelationStore
	events    *searchmem.EventStore
	index     *indexmem.Index
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	metrics.Init()

	clock := staticClock{now: time.Unix(1700000000, 0).UTC()}
	policy := frontier.DefaultPolicy()
	store := frontiermem.NewStore(policy, clock)
	relations := searchmem.NewRelationStore()
	events := searchmem.NewEventStore()
	index := indexmem.New()

	resolver := search.NewResolver(relations, 0, zap.NewNop())
	svc := search.NewService(
		resolver,
		events,
		index,
		&seqIDs{},
		clock,
		search.ServiceConfig{MaxDepth: 2, MaxExpansions: 10},
		zap.NewNop(),
	)

	srv := NewServer(svc, relations, store, policy, clock, cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:    ts,
		store:     store,
		relations: relations,
		events:    events,
		index:     index,
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	resp := getJSON(t, env.server.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, env.server.URL+"/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	env.index.Add(indexmem.Document{
		URL:     "https://a.test/guide",
		Title:   "Coffee guide",
		Content: "all about coffee",
	})
	require.NoError(t, env.relations.Upsert(context.Background(), search.QueryRelation{
		Source: "espresso",
		Target: "coffee",
		Type:   search.RelationExpansion,
		Score:  0.8,
		Origin: search.OriginManual,
	}))

	resp := postJSON(t, env.server.URL+"/v1/search", searchRequest{Query: "  Espresso "})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[search.Response](t, resp)
	require.Equal(t, "espresso", body.Normalized)
	require.NotEmpty(t, body.SearchID)
	require.Len(t, body.Expansions, 2)
	require.Len(t, body.Results, 1)
	require.Equal(t, "https://a.test/guide", body.Results[0].URL)
	require.Equal(t, "coffee", body.Results[0].FromQuery)
}

func TestSearchEndpointRejectsEmptyQuery(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	resp := postJSON(t, env.server.URL+"/v1/search", searchRequest{Query: "   "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClickEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	env.index.Add(indexmem.Document{URL: "https://a.test/", Content: "coffee"})
	resp := postJSON(t, env.server.URL+"/v1/search", searchRequest{Query: "coffee"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[search.Response](t, resp)

	resp = postJSON(t, env.server.URL+"/v1/clicks", clickRequest{
		SearchID: body.SearchID,
		URL:      "https://a.test/",
		Rank:     0,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, env.events.Clicks(), 1)

	resp = postJSON(t, env.server.URL+"/v1/clicks", clickRequest{
		SearchID: "missing",
		URL:      "https://a.test/",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelationEndpointNormalizesAndValidates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	resp := postJSON(t, env.server.URL+"/v1/relations", relationRequest{
		Source: "  FOO ",
		Target: "Bar",
		Type:   "synonym",
		Score:  0.7,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	edges, err := env.relations.Neighbors(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "bar", edges[0].Target)
	require.Equal(t, search.OriginManual, edges[0].Origin)

	// Self-loops are rejected by validation.
	resp = postJSON(t, env.server.URL+"/v1/relations", relationRequest{
		Source: "foo",
		Target: "FOO",
		Type:   "synonym",
		Score:  0.5,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCrawlURLsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	resp := postJSON(t, env.server.URL+"/v1/crawl/urls", crawlURLsRequest{
		URLs: []string{
			"https://example.com/",
			"https://example.com/cal/cal/cal/cal", // trap-like
			"ftp://example.com/file",              // wrong scheme
			"https://example.com/",                // duplicate in batch
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[crawlURLsResponse](t, resp)
	require.Equal(t, 4, body.Submitted)
	require.Equal(t, 1, body.Inserted)
	require.Equal(t, 2, body.Skipped)

	target, err := env.store.Get(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, frontier.StatusPending, target.Status)
}

func TestCrawlStatsAndTargetEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	resp := postJSON(t, env.server.URL+"/v1/crawl/urls", crawlURLsRequest{
		URLs: []string{"https://example.com/"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = getJSON(t, env.server.URL+"/v1/crawl/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[frontier.Stats](t, resp)
	require.Equal(t, 1, stats.ByStatus[frontier.StatusPending])
	require.Equal(t, 1, stats.Claimable)

	resp = getJSON(t, env.server.URL+"/v1/crawl/targets?url=https://example.com/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, env.server.URL+"/v1/crawl/targets?url=https://missing.test/")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = getJSON(t, env.server.URL+"/v1/crawl/targets")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{
		Auth: config.AuthConfig{Enabled: true, APIKey: "secret"},
	})

	resp := getJSON(t, env.server.URL+"/v1/crawl/stats")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/crawl/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = authed.Body.Close() }()
	require.Equal(t, http.StatusOK, authed.StatusCode)
}
