package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/cache"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/syncer"
	"github.com/docscout/docscout/pkg/config"
	"github.com/docscout/docscout/pkg/metrics"
)

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dataDir := t.TempDir()
	docPath := filepath.Join(dataDir, "guide.md")
	require.NoError(t, os.WriteFile(docPath, []byte("hello world\nsecond line"), 0o644))

	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	handle, err := syncer.Initialize(config.IndexConfig{
		DataDir:    dataDir,
		Extensions: []string{".md"},
		PageSize:   15,
		MaxHits:    3,
	}, store)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	return NewHandler(handle, nil, m), docPath
}

func TestSearchEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=hello", nil)
	rec := httptest.NewRecorder()
	handler.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result index.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "guide.md", result.Results[0].Name)
	require.Len(t, result.Results[0].Hits, 1)
	assert.Equal(t, 1, result.Results[0].Hits[0].Line)
	assert.Equal(t, "hello world", result.Results[0].Hits[0].Content)
}

func TestSearchEndpointEmptyQuery(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=++&page=junk", nil)
	rec := httptest.NewRecorder()
	handler.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result index.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 0, result.TotalPages)
}

func TestFileEndpoint(t *testing.T) {
	handler, docPath := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/file?path="+docPath, nil)
	rec := httptest.NewRecorder()
	handler.File(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp fileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, docPath, resp.Path)
	assert.Equal(t, "guide.md", resp.Name)
	assert.Equal(t, "hello world\nsecond line", resp.Content)
}

func TestFileEndpointNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/file?path=/no/such/doc.md", nil)
	rec := httptest.NewRecorder()
	handler.File(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/file", nil)
	rec = httptest.NewRecorder()
	handler.File(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
