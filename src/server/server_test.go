package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"clipdash/src/auth"
	"clipdash/src/directors"
	"clipdash/src/engine"
	"clipdash/src/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, authEnabled bool) (*httptest.Server, *directors.ServiceManager) {
	t.Helper()

	logger := zap.NewNop().Sugar()
	args := &settings.Arguments{
		DataDir:     t.TempDir(),
		Host:        "127.0.0.1",
		Port:        0,
		AuthEnabled: authEnabled,
		Version:     "test",
	}

	catalog, err := engine.NewCatalogStore(args.DataDir, logger)
	require.NoError(t, err)

	registry := directors.NewRegistryService(catalog, engine.NewTemplateCatalog(), args, logger)
	connections := directors.NewConnectionManager(registry, args, logger).WithStoreOpener(
		func(databaseID, path string, l *zap.SugaredLogger) (*engine.StoreEngine, error) {
			return engine.OpenStoreInMemory(databaseID, l)
		})
	crud := directors.NewCrudService(connections, logger)
	search := directors.NewSearchService(connections, crud, logger)
	transfer := directors.NewTransferService(registry, connections, crud, logger)

	directors.ResetServiceManager()
	manager := directors.InitServiceManager(registry, connections, crud, search, transfer, logger)

	userStore, err := auth.NewUserStore(filepath.Join(args.DataDir, "users.enc"), "test-key")
	require.NoError(t, err)
	users := directors.NewUserService(userStore, auth.NewUserFactory(), args, logger)
	if authEnabled {
		require.NoError(t, users.AddUser("admin", "secret"))
	}

	srv := NewServer(manager, users, nil, args, logger)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(func() {
		ts.Close()
		connections.CloseAll()
		directors.ResetServiceManager()
	})
	return ts, manager
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestDatabaseLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/databases", map[string]interface{}{
		"database_id":  "clips",
		"name":         "Clipboard",
		"template":     "clipboard",
		"auto_connect": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var descriptor engine.DatabaseDescriptor
	decodeBody(t, resp, &descriptor)
	assert.Equal(t, engine.StatusActive, descriptor.Status)

	resp = postJSON(t, ts.URL+"/databases/clips/collections/clipboard_history/records", engine.Record{
		"content":   "stack",
		"type":      "text",
		"timestamp": "2026-02-01T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created engine.Record
	decodeBody(t, resp, &created)
	assert.EqualValues(t, 1, created["id"])

	resp, err := http.Get(ts.URL + "/databases/clips/collections/clipboard_history/records?limit=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.ReadResult
	decodeBody(t, resp, &result)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "stack", result.Data[0]["content"])

	resp, err = http.Get(ts.URL + "/search?q=stack")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hits []directors.SearchResult
	decodeBody(t, resp, &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, "clips", hits[0].DatabaseID)
	assert.Equal(t, 100, hits[0].Score)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/databases/clips?delete_data=true", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/databases/clips")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// A caller-keyed collection whose string keys look numeric must stay
// reachable through the record routes.
func TestNumericLookingStringKeys(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/databases", map[string]interface{}{
		"database_id":  "codes",
		"name":         "Codes",
		"auto_connect": true,
		"schema": map[string]engine.CollectionSchema{
			"codes": {KeyPath: "code"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/databases/codes/collections/codes/records", engine.Record{
		"code":  "123",
		"label": "first",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/databases/codes/collections/codes/records/123")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec engine.Record
	decodeBody(t, resp, &rec)
	assert.Equal(t, "first", rec["label"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/databases/codes/collections/codes/records/123", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/databases/codes/collections/codes/records/123")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/databases/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	register := map[string]interface{}{"database_id": "clips", "name": "c", "template": "clipboard"}
	resp = postJSON(t, ts.URL+"/databases", register)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/databases", register)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/databases", map[string]interface{}{"database_id": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Operating on a registered but disconnected database is a conflict
	resp = postJSON(t, ts.URL+"/databases/clips/collections/clipboard_history/records",
		engine.Record{"content": "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestBasicAuthProtectsRoutes(t *testing.T) {
	ts, _ := newTestServer(t, true)

	// Health stays open
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/templates")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/templates", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var templates []engine.SchemaTemplate
	decodeBody(t, resp, &templates)
	assert.NotEmpty(t, templates)
}

func TestMergeEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/databases", map[string]interface{}{
		"database_id": "clips", "name": "c", "template": "clipboard", "auto_connect": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 3; i++ {
		resp = postJSON(t, ts.URL+"/databases/clips/collections/clipboard_history/records", engine.Record{
			"content": fmt.Sprintf("clip-%d", i), "type": "text", "timestamp": "2026-02-01T10:00:00Z",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = postJSON(t, ts.URL+"/merge", map[string]bool{"include_clipboard": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report directors.MergeReport
	decodeBody(t, resp, &report)
	assert.Equal(t, 3, report.MergedCount)
}
