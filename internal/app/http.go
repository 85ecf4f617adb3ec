package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nexcrm/builder/internal/assets"
	"nexcrm/builder/internal/auth"
	"nexcrm/builder/internal/export"
	"nexcrm/builder/internal/rbac"
)

const (
	maxDocumentBytes = 4 << 20
	maxBodyBytes     = 1 << 20
	wsReadLimit      = 4 << 10
	wsWriteWait      = 10 * time.Second
	wsPingPeriod     = 30 * time.Second
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     logger.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.withMiddleware)
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/session", s.authed(rbac.ActionRead, s.handleSession)).Methods(http.MethodGet)
	api.HandleFunc("/schema", s.authed(rbac.ActionRead, s.handleSchema)).Methods(http.MethodGet)

	api.HandleFunc("/pages", s.authed(rbac.ActionRead, s.handleListPages)).Methods(http.MethodGet)
	api.HandleFunc("/pages", s.authed(rbac.ActionEdit, s.handleCreatePage)).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}", s.authed(rbac.ActionRead, s.handleGetPage)).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}", s.authed(rbac.ActionAdmin, s.handleDeletePage)).Methods(http.MethodDelete)
	api.HandleFunc("/pages/{id}/editor", s.authed(rbac.ActionEdit, s.handleOpenEditor)).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/editor", s.authed(rbac.ActionEdit, s.handleCloseEditor)).Methods(http.MethodDelete)
	api.HandleFunc("/pages/{id}/editor/commands", s.authed(rbac.ActionEdit, s.handleCommand)).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}/editor/document", s.authed(rbac.ActionEdit, s.handleLoadDocument)).Methods(http.MethodPut)
	api.HandleFunc("/pages/{id}/editor/watch", s.authed(rbac.ActionEdit, s.handleWatch)).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/save", s.authed(rbac.ActionEdit, s.handleSave)).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}/publish", s.authed(rbac.ActionPublish, s.handlePublish)).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}/versions", s.authed(rbac.ActionRead, s.handleVersions)).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/versions/{hash}/restore", s.authed(rbac.ActionEdit, s.handleRestoreVersion)).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}/export", s.authed(rbac.ActionRead, s.handleExport)).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/assets", s.authed(rbac.ActionRead, s.handleListAssets)).Methods(http.MethodGet)

	api.HandleFunc("/search", s.authed(rbac.ActionRead, s.handleSearch)).Methods(http.MethodGet)
	api.HandleFunc("/assets", s.authed(rbac.ActionUpload, s.handleUploadAsset)).Methods(http.MethodPost)

	return router
}

// authed resolves the session and checks the role before calling next.
func (s *HTTPServer) authed(action rbac.Action, next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if !s.service.Can(session.Role, action) {
			s.forbid(w, r, session, string(action))
			return
		}
		next(w, r, session)
	}
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action string) {
	s.logger.Info().
		Str("request_id", requestID(r.Context())).
		Str("user", session.UserID).
		Str("role", session.Role).
		Str("action", action).
		Msg("forbidden")
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	// drafts degrade to no autosave, so a failing Redis does not fail readiness
	if configured, err := s.service.PingDrafts(ctx); configured {
		if err != nil {
			checks["drafts"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["drafts"] = map[string]any{"status": "ok"}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, _ *http.Request, session Session) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.UserName,
		"tenant":        session.TenantID,
		"role":          session.Role,
	})
}

func (s *HTTPServer) handleSchema(w http.ResponseWriter, _ *http.Request, _ Session) {
	writeJSON(w, http.StatusOK, s.service.Schema())
}

func (s *HTTPServer) handleListPages(w http.ResponseWriter, r *http.Request, session Session) {
	pages, err := s.service.ListPages(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *HTTPServer) handleCreatePage(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Title string `json:"title"`
		Slug  string `json:"slug"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreatePage(r.Context(), session, body.Title, body.Slug)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(created.Hash))
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleGetPage(w http.ResponseWriter, r *http.Request, session Session) {
	detail, err := s.service.GetPage(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(detail.Hash))
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleDeletePage(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeletePage(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleOpenEditor(w http.ResponseWriter, r *http.Request, session Session) {
	view, err := s.service.OpenEditor(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleCloseEditor(w http.ResponseWriter, r *http.Request, session Session) {
	s.service.CloseEditor(session, mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request, session Session) {
	var input CommandInput
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.Command(r.Context(), session, mux.Vars(r)["id"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleLoadDocument(w http.ResponseWriter, r *http.Request, session Session) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", "Document too large", nil)
		return
	}
	view, err := s.service.LoadDocument(r.Context(), session, mux.Vars(r)["id"], raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleWatch upgrades to a websocket and pushes every new editor view.
// Browsers cannot set headers on the upgrade, so the token may also come
// from the token query parameter.
func (s *HTTPServer) handleWatch(w http.ResponseWriter, r *http.Request, session Session) {
	views, cancel, err := s.service.Watch(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID(r.Context())).Msg("websocket upgrade")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	// the reader only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case v, ok := <-views:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "editor closed"), time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(toEditorView(v)); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request, session Session) {
	ifMatch := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	result, err := s.service.Save(r.Context(), session, mux.Vars(r)["id"], ifMatch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(result.Hash))
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	version, err := s.service.Publish(r.Context(), session, mux.Vars(r)["id"], body.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, session Session) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	versions, err := s.service.Versions(r.Context(), session, mux.Vars(r)["id"], limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *HTTPServer) handleRestoreVersion(w http.ResponseWriter, r *http.Request, session Session) {
	vars := mux.Vars(r)
	view, err := s.service.RestoreVersion(r.Context(), session, vars["id"], vars["hash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session) {
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be html, pdf or png", nil)
		return
	}
	result, err := s.service.Export(r.Context(), session, mux.Vars(r)["id"], format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	disposition := "attachment"
	if format == export.FormatHTML {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleListAssets(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListAssets(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": items})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	resp := s.service.Search(r.Context(), session, strings.TrimSpace(query.Get("q")), query.Get("status"), limit, offset)
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleUploadAsset(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, assets.MaxSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form with a file field", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	pageID := strings.TrimSpace(r.FormValue("pageId"))
	if pageID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "pageId is required", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	asset, err := s.service.UploadAsset(r.Context(), session, pageID, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          asset.ID,
		"url":         asset.URL,
		"contentType": asset.ContentType,
		"size":        asset.Size,
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.corsOrigin == "*" || origin == s.corsOrigin
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}
