package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/kvedit/internal/autonav"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/hoststore/memhost"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/overlay"
	"github.com/maruel/kvedit/internal/server/handlers"
	"github.com/maruel/kvedit/internal/server/ratelimit"
	"github.com/maruel/kvedit/internal/storeclient"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newServer(t *testing.T, limits *ratelimit.Config) *apiClient {
	t.Helper()
	ctx := t.Context()
	h := memhost.New()
	require.NoError(t, h.CreateDatabase(ctx, "app-db", 1))
	require.NoError(t, h.CreateStore(ctx, "app-db", "items", ""))
	require.NoError(t, h.CreateStore(ctx, "app-db", "users", "id"))
	c, err := h.Open(ctx, "app-db")
	require.NoError(t, err)
	tx, err := c.Begin(ctx, "items", hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, map[string]any{"x": 1.0}, "a"))
	require.NoError(t, tx.Put(ctx, map[string]any{"x": 2.0}, "b"))
	require.NoError(t, tx.Commit())
	require.NoError(t, c.Close())

	center := notify.New(time.Minute)
	t.Cleanup(center.Close)
	o := overlay.New(ctx, storeclient.New(h), center, autonav.DefaultConfig())
	t.Cleanup(o.Close)
	srv := httptest.NewServer(NewRouter(handlers.New(o, center), limits))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

// do sends body as JSON and decodes the JSON response into a map.
func (c *apiClient) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(c.t.Context(), method, c.srv.URL+path, r)
	require.NoError(c.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errCode(out map[string]any) any {
	e, _ := out["error"].(map[string]any)
	return e["code"]
}

func TestAPI_BrowseAndEdit(t *testing.T) {
	c := newServer(t, nil)

	code, out := c.do("GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["visible"])

	code, out = c.do("GET", "/api/state", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", errCode(out))

	code, out = c.do("POST", "/api/overlay/toggle", `{"url":"https://example.com/"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["visible"])

	code, out = c.do("GET", "/api/databases", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["databases"], 1)

	code, out = c.do("POST", "/api/databases/app-db/select", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["stores"], 2)

	code, out = c.do("POST", "/api/stores/items/select", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["records"], 2)
	assert.Equal(t, "2 of 2 records", out["summary"])

	code, out = c.do("GET", "/api/records?q=A", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1 of 2 records", out["summary"])

	code, out = c.do("POST", "/api/records/view", `{"key":"a"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "detail", out["view"])

	code, out = c.do("POST", "/api/edit/selected", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "edit", out["view"])

	code, out = c.do("PUT", "/api/edit/buffer", `{"text":"{\"x\":1,}"}`)
	require.Equal(t, http.StatusOK, code)
	code, out = c.do("POST", "/api/edit/save", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_FORMAT", errCode(out))

	code, _ = c.do("PUT", "/api/edit/buffer", `{"text":"{\"x\":9}"}`)
	require.Equal(t, http.StatusOK, code)
	code, out = c.do("POST", "/api/edit/save", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "list", out["view"])

	code, out = c.do("GET", "/api/notifications", "")
	require.Equal(t, http.StatusOK, code)
	var texts []string
	for _, n := range out["notifications"].([]any) {
		texts = append(texts, n.(map[string]any)["message"].(string))
	}
	assert.Contains(t, texts, "Record saved successfully")
	assert.Contains(t, texts, "Invalid JSON format")
}

func TestAPI_Delete(t *testing.T) {
	c := newServer(t, nil)
	c.do("POST", "/api/overlay/toggle", `{}`)
	c.do("POST", "/api/databases/app-db/select", "")
	c.do("POST", "/api/stores/items/select", "")
	c.do("POST", "/api/records/view", `{"key":"a"}`)

	code, out := c.do("POST", "/api/edit/delete", `{"confirm":false}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NOT_CONFIRMED", errCode(out))

	code, out = c.do("POST", "/api/edit/delete", `{"confirm":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["records"], 1)
}

func TestAPI_CreateOutOfLineRejected(t *testing.T) {
	c := newServer(t, nil)
	c.do("POST", "/api/overlay/toggle", `{}`)
	c.do("POST", "/api/databases/app-db/select", "")
	c.do("POST", "/api/stores/items/select", "")
	c.do("POST", "/api/edit/new", "")
	code, out := c.do("POST", "/api/edit/save", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "PUT_FAILED", errCode(out))
	assert.Equal(t, map[string]any{"store": "items"}, out["details"])
}

func TestAPI_ExportImport(t *testing.T) {
	c := newServer(t, nil)
	c.do("POST", "/api/overlay/toggle", `{}`)
	c.do("POST", "/api/databases/app-db/select", "")
	c.do("POST", "/api/stores/items/select", "")
	c.do("POST", "/api/edit/record", `{"key":"b"}`)

	req, err := http.NewRequestWithContext(t.Context(), "GET", c.srv.URL+"/api/edit/export", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "attachment; filename=record_b.json", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "{\n  \"x\": 2\n}", string(body))

	code, out := c.do("POST", "/api/edit/import", `{"text":"[1,2]"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[\n  1,\n  2\n]", out["edit_buffer"])

	code, out = c.do("POST", "/api/edit/import", `{"text":"[1,"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_FORMAT", errCode(out))
}

func TestAPI_BadRequest(t *testing.T) {
	c := newServer(t, nil)
	code, out := c.do("POST", "/api/overlay/toggle", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_FAILED", errCode(out))
}

func TestAPI_RateLimit(t *testing.T) {
	limits := ratelimit.NewConfig(60, time.Minute, 1)
	t.Cleanup(limits.Close)
	c := newServer(t, limits)
	code, _ := c.do("POST", "/api/overlay/toggle", `{}`)
	assert.Equal(t, http.StatusOK, code)
	code, out := c.do("POST", "/api/overlay/toggle", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMITED", errCode(out))
}
