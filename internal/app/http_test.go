package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexcrm/builder/internal/auth"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T, deps Deps) (*apiClient, *testEnv) {
	t.Helper()
	env := newTestEnv(t, deps)
	server := httptest.NewServer(NewHTTPServer(env.service, "*", zerolog.Nop()).Handler())
	t.Cleanup(server.Close)
	return &apiClient{t: t, server: server}, env
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.NewClaims("u_"+role, "Avery", "acme", role, time.Hour))
	require.NoError(t, err)
	return token
}

func (c *apiClient) do(method, path, token string, body io.Reader, header http.Header) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, body)
	require.NoError(c.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *apiClient) doJSON(method, path, token string, payload any) *http.Response {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(raw)
	}
	return c.do(method, path, token, body, http.Header{"Content-Type": {"application/json"}})
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (c *apiClient) createPage(token, title string) string {
	c.t.Helper()
	resp := c.doJSON(http.MethodPost, "/api/pages", token, map[string]any{"title": title})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)
	return decodeJSON(c.t, resp)["id"].(string)
}

func TestHealthAndReady(t *testing.T) {
	api, _ := newAPI(t, Deps{})

	resp := api.do(http.MethodGet, "/api/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, true, decodeJSON(t, resp)["ok"])

	resp = api.do(http.MethodGet, "/api/ready", "", nil, http.Header{"X-Request-Id": {"req-42"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "ready", decodeJSON(t, resp)["status"])
}

func TestPreflightAndNotFound(t *testing.T) {
	api, _ := newAPI(t, Deps{})

	resp := api.do(http.MethodOptions, "/api/pages/pg_1/editor/commands", "", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "If-Match")

	resp = api.do(http.MethodGet, "/api/nothing-here", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeJSON(t, resp)["code"])
}

func TestAuthAndRoles(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	editor := tokenFor(t, "editor")
	viewer := tokenFor(t, "viewer")

	resp := api.do(http.MethodGet, "/api/pages", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeJSON(t, resp)["code"])

	resp = api.do(http.MethodGet, "/api/pages", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = api.do(http.MethodGet, "/api/session", viewer, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "viewer", decodeJSON(t, resp)["role"])

	resp = api.doJSON(http.MethodPost, "/api/pages", viewer, map[string]any{"title": "Home"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeJSON(t, resp)["code"])

	id := api.createPage(editor, "Home")

	resp = api.do(http.MethodGet, "/api/pages/"+id, viewer, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodGet, "/api/pages/"+id+"/editor", viewer, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.doJSON(http.MethodPost, "/api/pages/"+id+"/publish", editor, map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.doJSON(http.MethodPost, "/api/pages/"+id+"/publish", tokenFor(t, "publisher"), map[string]any{"message": "Go live"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	version := decodeJSON(t, resp)["version"].(map[string]any)
	assert.Equal(t, "v1", version["tag"])
}

func TestEditorRoundTrip(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	token := tokenFor(t, "editor")

	resp := api.doJSON(http.MethodPost, "/api/pages", token, map[string]any{"title": "Home"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	id := decodeJSON(t, resp)["id"].(string)

	resp = api.do(http.MethodGet, "/api/pages/"+id+"/editor", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeJSON(t, resp)
	assert.Equal(t, "root", view["document"].(map[string]any)["id"])

	resp = api.doJSON(http.MethodPost, "/api/pages/"+id+"/editor/commands", token, map[string]any{"op": "add", "parentId": "s1", "type": "Button"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decodeJSON(t, resp)
	assert.NotEmpty(t, view["createdId"])
	assert.Equal(t, true, view["canUndo"])

	resp = api.doJSON(http.MethodPost, "/api/pages/"+id+"/editor/commands", token, map[string]any{"op": "teleport"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_COMMAND", decodeJSON(t, resp)["code"])

	resp = api.do(http.MethodPut, "/api/pages/"+id+"/editor/document", token, strings.NewReader(`{"id":"root","type":"Body","children":[{"id":"x","type":"Heading","children":[{"id":"y","type":"Text"}]}]}`), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_DOCUMENT", decodeJSON(t, resp)["code"])

	resp = api.do(http.MethodPost, "/api/pages/"+id+"/save", token, nil, http.Header{"If-Match": {etag}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decodeJSON(t, resp)
	assert.Equal(t, true, saved["saved"])
	assert.Equal(t, strconv.Quote(saved["hash"].(string)), resp.Header.Get("ETag"))

	resp = api.do(http.MethodPost, "/api/pages/"+id+"/save", token, nil, http.Header{"If-Match": {etag}})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, "STALE_DOCUMENT", decodeJSON(t, resp)["code"])
}

func TestExportHTML(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	token := tokenFor(t, "viewer")
	id := api.createPage(tokenFor(t, "editor"), "Launch Page")

	resp := api.do(http.MethodGet, "/api/pages/"+id+"/export?format=html", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "inline")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Welcome to your new page")

	resp = api.do(http.MethodGet, "/api/pages/"+id+"/export?format=docx", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNSUPPORTED_FORMAT", decodeJSON(t, resp)["code"])
}

func TestSearchEndpoint(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	resp := api.do(http.MethodGet, "/api/search?q=launch&limit=5", tokenFor(t, "viewer"), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeJSON(t, resp)
	assert.Equal(t, "launch", out["query"])
	assert.NotNil(t, out["results"])
}

func TestUploadAssetEndpoint(t *testing.T) {
	fake := &fakeAssets{UploadFn: keyedUpload}
	api, _ := newAPI(t, Deps{Assets: fake})
	editor := tokenFor(t, "editor")
	id := api.createPage(editor, "Home")

	upload := func(token, pageID string, payload []byte) *http.Response {
		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		require.NoError(t, form.WriteField("pageId", pageID))
		part, err := form.CreateFormFile("file", "logo.png")
		require.NoError(t, err)
		_, _ = part.Write(payload)
		require.NoError(t, form.Close())
		return api.do(http.MethodPost, "/api/assets", token, &buf, http.Header{"Content-Type": {form.FormDataContentType()}})
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 64)...)
	resp := upload(editor, id, png)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON(t, resp)
	assert.Equal(t, "image/png", created["contentType"])
	assert.Contains(t, created["url"], "/acme/"+id+"/")

	resp = upload(tokenFor(t, "viewer"), id, png)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = upload(editor, "", png)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodGet, "/api/pages/"+id+"/assets", editor, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON(t, resp)["assets"], 1)

	resp = api.do(http.MethodDelete, "/api/pages/"+id, editor, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.do(http.MethodDelete, "/api/pages/"+id, tokenFor(t, "admin"), nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, fake.removedKeys(), 1)

	resp = api.do(http.MethodGet, "/api/pages/"+id, editor, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWatchStreamsViews(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	token := tokenFor(t, "editor")
	id := api.createPage(token, "Home")

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/pages/" + id + "/editor/watch?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	cmd := api.doJSON(http.MethodPost, "/api/pages/"+id+"/editor/commands", token, map[string]any{"op": "add", "parentId": "s1", "type": "Divider"})
	require.Equal(t, http.StatusOK, cmd.StatusCode)
	createdID := decodeJSON(t, cmd)["createdId"]

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var view EditorView
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, uint64(1), view.Revision)
	assert.True(t, view.CanUndo)
	assert.Equal(t, createdID, view.Document.Child(0).Child(1).ID())

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(api.server.URL, "http")+"/api/pages/"+id+"/editor/watch", nil)
	assert.Error(t, err, "watch without a token is rejected")
}

func TestWatchClosesOnOversizedMessage(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	token := tokenFor(t, "editor")
	id := api.createPage(token, "Home")

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/pages/" + id + "/editor/watch?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, bytes.Repeat([]byte("x"), wsReadLimit+1)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "server should drop the connection, got %v", err)
	}
}

func TestCommandBodyIsBounded(t *testing.T) {
	api, _ := newAPI(t, Deps{})
	token := tokenFor(t, "editor")
	id := api.createPage(token, "Home")

	body := `{"op":"update","id":"h1","props":{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}}`
	resp := api.do(http.MethodPost, "/api/pages/"+id+"/editor/commands", token, strings.NewReader(body), http.Header{"Content-Type": {"application/json"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", decodeJSON(t, resp)["code"])

	resp = api.do(http.MethodGet, "/api/pages/"+id+"/editor", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeJSON(t, resp)["canUndo"])
}
