package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/embedding"
	"github.com/hubenschmidt/postsearch/engine"
	"github.com/hubenschmidt/postsearch/monitor"
	"github.com/hubenschmidt/postsearch/server/store"
	"github.com/hubenschmidt/postsearch/vector"
)

type stubProvider struct {
	mu    sync.Mutex
	err   error
	modes []embedding.Mode
}

func (p *stubProvider) Embed(ctx context.Context, text string, image []byte, mode embedding.Mode) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes = append(p.modes, mode)
	if p.err != nil {
		return nil, p.err
	}
	if strings.Contains(text, "dog") {
		return []float32{0, 1, 0}, nil
	}
	return []float32{1, 0, 0}, nil
}

func (p *stubProvider) ModelID() string       { return "stub-1" }
func (p *stubProvider) Dimension() int        { return 3 }
func (p *stubProvider) Metric() vector.Metric { return vector.Cosine }

type fixture struct {
	srv      *Server
	handler  http.Handler
	store    *store.MemoryStore
	provider *stubProvider
	exec     *engine.Executor
}

func newFixture(t *testing.T, debug bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{store: store.NewMemoryStore(3), provider: &stubProvider{}}
	collector := monitor.NewInMemoryCollector(10)
	f.exec = engine.NewExecutor(config.Worker{Count: 1, QueueSize: 16}, collector)

	srv, err := New(Config{
		Store:       f.store,
		Provider:    f.provider,
		Executor:    f.exec,
		Collector:   collector,
		Options:     engine.Options{MaxImageBytes: 64, Metric: vector.Cosine, Probes: 10},
		DebugRoutes: debug,
	})
	require.NoError(t, err)
	f.srv = srv
	f.handler = srv.Handler()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.exec.Stop(ctx)
	})
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.exec.Stop(ctx))
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "pic.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *fixture) createPost(t *testing.T, title, body string) PostOut {
	t.Helper()
	w := f.do(multipartRequest(t, "/api/posts", map[string]string{"title": title, "body": body}, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[PostOut](t, w)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestCreatePostAndFetch(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(multipartRequest(t, "/api/posts", map[string]string{"title": "Cats", "body": "<i>soft</i>  fur"}, []byte("fake-image")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	post := decode[PostOut](t, w)
	assert.Equal(t, "Cats", post.Title)
	assert.Equal(t, "soft fur", post.Body)

	f.drain(t)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/posts/"+itoa(post.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[PostDetailOut](t, w)
	assert.True(t, detail.HasEmbedding)
	require.NotNil(t, detail.EmbeddingModel)
	assert.Equal(t, "stub-1", *detail.EmbeddingModel)
	assert.Equal(t, embedding.SchemaVersion, *detail.EmbeddingVersion)
	assert.Equal(t, []embedding.Mode{embedding.ModeDocument}, f.provider.modes)
}

func TestCreatePostErrors(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(multipartRequest(t, "/api/posts", map[string]string{"title": "  "}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorOut](t, w).Detail, "title")

	w = f.do(multipartRequest(t, "/api/posts", map[string]string{"title": "big"}, make([]byte, 65)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorOut](t, w).Detail, "image too large")

	st, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.PostsTotal)
}

func TestGetPostErrors(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/posts/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/posts/999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decode[ErrorOut](t, w).Detail)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false)
	cat := f.createPost(t, "cat", "whiskers")
	dog := f.createPost(t, "dog", "barks")
	f.drain(t)

	w := f.do(jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"q": "a dog"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode[[]SearchOut](t, w)
	require.Len(t, results, 2)
	assert.Equal(t, dog.ID, results[0].ID)
	assert.Equal(t, cat.ID, results[1].ID)
	assert.Equal(t, "barks", results[0].Body)

	w = f.do(jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"q": "a dog", "limit": 1}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]SearchOut](t, w), 1)

	w = f.do(jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"q": "a dog", "limit": 0}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]SearchOut](t, w), 1, "limit is clamped to at least one")
}

func TestSearchErrors(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"q": "  "}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorOut](t, w).Detail, "empty query")

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)

	f.provider.err = core.Wrapf(core.ErrProviderAuth, "bad key")
	w = f.do(jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"q": "x"}))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	f.provider.err = core.Wrapf(core.ErrProviderUnavailable, "down")
	w = f.do(jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"q": "x"}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSearchMultipart(t *testing.T) {
	f := newFixture(t, false)
	f.createPost(t, "cat", "")
	f.drain(t)

	w := f.do(multipartRequest(t, "/api/search-multipart", map[string]string{"limit": "5"}, []byte("img")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]SearchOut](t, w), 1)

	w = f.do(multipartRequest(t, "/api/search-multipart", map[string]string{"q": ""}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(multipartRequest(t, "/api/search-multipart", map[string]string{"q": "x", "limit": "many"}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebugRoutesDisabled(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/debug/stats", "/debug/posts", "/debug/metrics"} {
		assert.Equal(t, http.StatusNotFound, f.do(httptest.NewRequest(http.MethodGet, path, nil)).Code, path)
	}
	w := f.do(jsonRequest(t, http.MethodPost, "/api/search-debug", map[string]any{"q": "x"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebugRoutes(t *testing.T) {
	f := newFixture(t, true)
	f.createPost(t, "cat", "")
	f.createPost(t, "dog", "")
	f.drain(t)

	w := f.do(jsonRequest(t, http.MethodPost, "/api/search-debug", map[string]any{"q": "cat"}))
	require.Equal(t, http.StatusOK, w.Code)
	dbg := decode[[]SearchDebugOut](t, w)
	require.Len(t, dbg, 2)
	assert.InDelta(t, 0, dbg[0].Distance, 1e-6)
	assert.InDelta(t, 1, dbg[1].Distance, 1e-6)

	w = f.do(jsonRequest(t, http.MethodPost, "/debug/q", map[string]any{"q": "cat"}))
	require.Equal(t, http.StatusOK, w.Code)
	q := decode[QueryDebugOut](t, w)
	assert.Equal(t, 3, q.Len)
	assert.Len(t, q.Head, 3)
	assert.Equal(t, "stub-1", q.Model)
	assert.Equal(t, 3, q.Dim)

	w = f.do(httptest.NewRequest(http.MethodGet, "/debug/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[StatsOut](t, w)
	assert.Equal(t, int64(2), stats.PostsTotal)
	assert.Equal(t, int64(2), stats.PostsWithEmbedding)
	assert.Equal(t, "stub-1", stats.Model)

	w = f.do(httptest.NewRequest(http.MethodGet, "/debug/posts?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	posts := decode[[]store.PostSummary](t, w)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].HasEmbedding)

	w = f.do(httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[MetricsOut](t, w)
	assert.Equal(t, 2, m.Tasks.Succeeded)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://example.com")

	w := f.do(req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
