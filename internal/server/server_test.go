package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limoni/internal/archive"
	"limoni/internal/domain"
	"limoni/internal/export"
	"limoni/internal/metrics"
	"limoni/internal/parser"
	"limoni/internal/storage"
)

const site = "https://eksisozluk.com"

type stubScraper map[string]string

func (s stubScraper) FetchHTML(_ context.Context, url string) (string, error) {
	page, ok := s[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

const topic = `<html><head></head><body>
<h1 id="title"><a href="/go--1">go</a></h1>
<ul id="entry-item-list">
<li id="entry-item" data-id="7" data-author="gopher" data-favorite-count="4">
  <div class="content">defer <b>panic</b> recover</div>
  <div class="feedback-container"><span class="favorite-links"></span></div>
</li></ul></body></html>`

type testEnv struct {
	server *Server
	repo   storage.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo, err := storage.NewBadgerRepository(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	p := parser.New(logger)
	exp, err := export.New(p, time.UTC)
	require.NoError(t, err)

	m := metrics.New()
	pages := stubScraper{
		site + "/entry/7": topic,
		site + "/go--1":   topic,
	}
	svc := archive.NewService(repo, pages, p, exp, m, site, logger)

	srv, err := New(svc, m, site, logger)
	require.NoError(t, err)
	return &testEnv{server: srv, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, r))

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestServer_CollectionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/collections", map[string]string{"name": "Okunacaklar", "description": "d"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	col := body["collection"].(map[string]any)
	id := col["id"].(string)
	assert.Equal(t, "Okunacaklar", col["name"])

	rec, body = env.do(t, http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["collections"], 1)

	rec, body = env.do(t, http.MethodPatch, "/api/collections/"+id, map[string]string{"name": "Sonra"})
	require.Equal(t, http.StatusOK, rec.Code)
	col = body["collection"].(map[string]any)
	assert.Equal(t, "Sonra", col["name"])
	assert.Equal(t, "d", col["description"])

	rec, _ = env.do(t, http.MethodGet, "/api/collections/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/collections/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/collections/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "collection not found")
}

func TestServer_CreateCollectionValidation(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/collections", map[string]string{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/collections", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AddEntryVariants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// By id: fetched from the permalink.
	rec, body := env.do(t, http.MethodPost, "/api/entries", map[string]string{"entryId": "7"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	col := body["collection"].(map[string]any)
	assert.Equal(t, domain.DefaultCollectionName, col["name"])

	// Client supplied entry.
	rec, _ = env.do(t, http.MethodPost, "/api/entries", map[string]any{
		"entry": map[string]any{"id": "8", "author": "a", "contentHtml": "<b>x</b><script>y</script>"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// From a topic page.
	rec, _ = env.do(t, http.MethodPost, "/api/entries", map[string]string{"entryId": "7", "pageUrl": site + "/go--1"})
	require.Equal(t, http.StatusOK, rec.Code)

	cols, err := env.repo.GetCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Len(t, cols[0].Entries, 2, "entry 7 was upserted, not duplicated")
	assert.Equal(t, "<b>x</b>", cols[0].Entries[1].ContentHTML)

	// Errors.
	rec, _ = env.do(t, http.MethodPost, "/api/entries", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodPost, "/api/entries", map[string]string{"entryId": "7", "pageUrl": "https://evil.example/x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodPost, "/api/entries", map[string]string{"entryId": "7", "collectionId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = env.do(t, http.MethodPost, "/api/entries", map[string]string{"entryId": "8", "pageUrl": site + "/go--1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.repo.CreateCollection(ctx, "A", "")
	require.NoError(t, err)
	_, err = env.repo.AddEntry(ctx, domain.Entry{ID: "1", Author: "a"}, c.ID)
	require.NoError(t, err)

	rec, _ := env.do(t, http.MethodDelete, "/api/collections/"+c.ID+"/entries/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.repo.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)

	rec, _ = env.do(t, http.MethodDelete, "/api/collections/nope/entries/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Settings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.repo.CreateCollection(ctx, "A", "")
	require.NoError(t, err)
	b, err := env.repo.CreateCollection(ctx, "B", "")
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodPut, "/api/settings", map[string]string{"defaultCollectionId": b.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b.ID, body["settings"].(map[string]any)["defaultCollectionId"])

	rec, body = env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b.ID, body["settings"].(map[string]any)["defaultCollectionId"])

	rec, _ = env.do(t, http.MethodPut, "/api/settings", map[string]string{"defaultCollectionId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Export(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.repo.CreateCollection(ctx, "Dışa Aktar", "")
	require.NoError(t, err)
	_, err = env.repo.AddEntry(ctx, domain.Entry{ID: "1", Author: "a", Content: "c"}, c.ID)
	require.NoError(t, err)

	rec, _ := env.do(t, http.MethodGet, "/api/collections/"+c.ID+"/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv;charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "filename*=utf-8''D%C4%B1%C5%9Fa%20Aktar.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ID,Author,Date,Content,Favorites,Topic,URL\n1,a,,c,0,,"))

	rec, _ = env.do(t, http.MethodGet, "/api/collections/"+c.ID+"/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/collections/nope/export?format=json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ReaderViewAndFormAdd(t *testing.T) {
	env := newTestEnv(t)
	pageURL := site + "/go--1"

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/view?url="+url.QueryEscape(pageURL), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="limoni-add-btn"`)
	assert.Contains(t, rec.Body.String(), `action="http://example.com/view/add"`)

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/view?url="+url.QueryEscape("http://169.254.169.254/"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	form := url.Values{"entryId": {"7"}, "pageUrl": {pageURL}}
	req := httptest.NewRequest(http.MethodPost, "/view/add", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/view?url="+url.QueryEscape(pageURL)+"#7", rec.Header().Get("Location"))

	cols, err := env.repo.GetCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "7", cols[0].Entries[0].ID)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/collections", nil)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `limoni_http_requests_total{route="/api/collections",status="2xx"} 1`)
}
