package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nexcrm/builder/internal/assets"
	"nexcrm/builder/internal/auth"
	"nexcrm/builder/internal/config"
	"nexcrm/builder/internal/draft"
	"nexcrm/builder/internal/editor"
	"nexcrm/builder/internal/export"
	"nexcrm/builder/internal/gitrepo"
	"nexcrm/builder/internal/page"
	"nexcrm/builder/internal/rbac"
	"nexcrm/builder/internal/schema"
	"nexcrm/builder/internal/search"
	"nexcrm/builder/internal/store"
	"nexcrm/builder/internal/util"
)

// Session is the verified caller of a request.
type Session struct {
	UserID    string
	UserName  string
	TenantID  string
	Role      string
	ExpiresAt time.Time
}

type pageStore interface {
	Ping(context.Context) error
	ListPages(context.Context, string) ([]store.Page, error)
	GetPage(context.Context, string, string) (store.Page, error)
	InsertPage(context.Context, store.Page) error
	SaveDocument(context.Context, string, string, []byte, string, string, string) (bool, error)
	MarkPublished(context.Context, string, string, string, string) (bool, error)
	DeletePage(context.Context, string, string) (bool, error)
	InsertAsset(context.Context, store.Asset) error
	ListAssets(context.Context, string, string) ([]store.Asset, error)
}

type draftStore interface {
	Save(context.Context, draft.Draft) error
	Load(context.Context, string, string) (draft.Draft, error)
	Delete(context.Context, string, string) error
}

type versionStore interface {
	Publish(string, string, gitrepo.Content, string, string) (gitrepo.Version, error)
	Versions(string, string, int) ([]gitrepo.Version, error)
	Content(string, string, string) (gitrepo.Content, error)
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexPage(search.PageRecord)
	DeletePage(string)
}

type assetStore interface {
	Upload(context.Context, string, string, string, io.Reader, int64, string) (assets.Object, error)
	Remove(context.Context, string) error
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

// Deps are the collaborators of a Service. Drafts, Search and Assets are
// optional.
type Deps struct {
	Pages    pageStore
	Drafts   draftStore
	Versions versionStore
	Search   searchIndex
	Assets   assetStore
	Exporter exporter
}

type Service struct {
	cfg    config.Config
	logger zerolog.Logger

	pages    pageStore
	drafts   draftStore
	versions versionStore
	search   searchIndex
	assets   assetStore
	exporter exporter

	mu       sync.Mutex
	sessions map[string]*editorSession
}

func New(cfg config.Config, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger.With().Str("component", "service").Logger(),
		pages:    deps.Pages,
		drafts:   deps.Drafts,
		versions: deps.Versions,
		search:   deps.Search,
		assets:   deps.Assets,
		exporter: deps.Exporter,
		sessions: make(map[string]*editorSession),
	}
}

// PageSummary is a page without its document.
type PageSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Status        string    `json:"status"`
	Hash          string    `json:"hash"`
	PublishedHash string    `json:"publishedHash,omitempty"`
	UpdatedBy     string    `json:"updatedBy"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PageDetail is a saved page with its document.
type PageDetail struct {
	PageSummary
	Document json.RawMessage `json:"document"`
}

// EditorView is the JSON form of an editor.View.
type EditorView struct {
	Document   *page.Node `json:"document"`
	SelectedID string     `json:"selectedId,omitempty"`
	Cursor     int        `json:"cursor"`
	Length     int        `json:"length"`
	CanUndo    bool       `json:"canUndo"`
	CanRedo    bool       `json:"canRedo"`
	Revision   uint64     `json:"revision"`
	CreatedID  string     `json:"createdId,omitempty"`
	Restored   bool       `json:"restored,omitempty"`
}

// CommandInput is one editor command as sent by the client.
type CommandInput struct {
	Op        string          `json:"op"`
	ID        string          `json:"id"`
	ParentID  string          `json:"parentId"`
	Type      string          `json:"type"`
	Template  string          `json:"template"`
	Structure json.RawMessage `json:"structure"`
	Props     page.Props      `json:"props"`
	Content   page.Props      `json:"content"`
	Index     *int            `json:"index"`
}

// SaveResult reports the outcome of a save.
type SaveResult struct {
	Hash  string `json:"hash"`
	Saved bool   `json:"saved"`
}

// TypeInfo describes one node type for the component palette.
type TypeInfo struct {
	Type          string         `json:"type"`
	Container     bool           `json:"container"`
	Fields        []schema.Field `json:"fields"`
	ContentFields []schema.Field `json:"contentFields,omitempty"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	session := Session{
		UserID:   claims.Subject,
		UserName: name,
		TenantID: claims.Tenant,
		Role:     string(rbac.Normalize(claims.Role)),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.pages.Ping(ctx)
}

// PingDrafts checks the draft store. It reports false when drafts are not
// configured.
func (s *Service) PingDrafts(ctx context.Context) (bool, error) {
	pinger, ok := s.drafts.(interface{ Ping(context.Context) error })
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

// Schema lists node types and template names for the editor palette.
func (s *Service) Schema() map[string]any {
	types := make([]TypeInfo, 0, len(schema.Types()))
	for _, name := range schema.Types() {
		sc, _ := schema.Describe(name)
		types = append(types, TypeInfo{
			Type:          sc.Type,
			Container:     sc.Container,
			Fields:        sc.Fields,
			ContentFields: sc.ContentFields,
		})
	}
	return map[string]any{
		"types":     types,
		"templates": page.Templates(),
	}
}

func (s *Service) ListPages(ctx context.Context, session Session) ([]PageSummary, error) {
	pages, err := s.pages.ListPages(ctx, session.TenantID)
	if err != nil {
		return nil, err
	}
	items := make([]PageSummary, 0, len(pages))
	for _, p := range pages {
		items = append(items, summaryOf(p))
	}
	return items, nil
}

func (s *Service) GetPage(ctx context.Context, session Session, pageID string) (PageDetail, error) {
	p, err := s.pages.GetPage(ctx, session.TenantID, pageID)
	if err != nil {
		return PageDetail{}, err
	}
	return PageDetail{PageSummary: summaryOf(p), Document: p.Document}, nil
}

// CreatePage stores a new page holding the starter document. An empty slug
// is derived from the title.
func (s *Service) CreatePage(ctx context.Context, session Session, title, slug string) (PageDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return PageDetail{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = slugify(title)
	}
	if !slugPattern.MatchString(slug) {
		return PageDetail{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "slug must be lowercase words separated by hyphens", map[string]any{"slug": slug})
	}

	doc := page.Starter()
	data, hash, err := encode(doc)
	if err != nil {
		return PageDetail{}, err
	}
	p := store.Page{
		ID:         util.NewID("pg"),
		TenantID:   session.TenantID,
		Title:      title,
		Slug:       slug,
		Status:     store.StatusDraft,
		Document:   data,
		Hash:       hash,
		SearchText: search.TextOf(doc),
		UpdatedBy:  session.UserName,
	}
	if err := s.pages.InsertPage(ctx, p); err != nil {
		return PageDetail{}, err
	}
	s.index(p.TenantID, p.ID, p.Title, p.Slug, p.Status, p.SearchText)

	created, err := s.pages.GetPage(ctx, session.TenantID, p.ID)
	if err != nil {
		return PageDetail{}, err
	}
	return PageDetail{PageSummary: summaryOf(created), Document: created.Document}, nil
}

// OpenEditor returns the current view of the page's editor, opening a
// session when none is active.
func (s *Service) OpenEditor(ctx context.Context, session Session, pageID string) (EditorView, error) {
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return EditorView{}, err
	}
	view := toEditorView(es.store.View())
	view.Restored = es.restored
	return view, nil
}

// Command applies one editor command.
func (s *Service) Command(ctx context.Context, session Session, pageID string, input CommandInput) (EditorView, error) {
	cmd, err := commandFrom(input)
	if err != nil {
		return EditorView{}, err
	}
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return EditorView{}, err
	}
	es.touch(session.UserName)
	v, created := es.store.Apply(cmd)
	view := toEditorView(v)
	view.CreatedID = created
	return view, nil
}

// LoadDocument replaces the editor's document with raw JSON from the code
// editor. A rejected document leaves the session untouched.
func (s *Service) LoadDocument(ctx context.Context, session Session, pageID string, raw []byte) (EditorView, error) {
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return EditorView{}, err
	}
	if err := es.store.LoadJSON(raw); err != nil {
		return EditorView{}, domainError(http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error(), nil)
	}
	es.touch(session.UserName)
	return toEditorView(es.store.View()), nil
}

// Watch streams every view the page's editor publishes until cancel is
// called or the session closes.
func (s *Service) Watch(ctx context.Context, session Session, pageID string) (<-chan editor.View, func(), error) {
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return nil, nil, err
	}
	views, cancel := es.store.Subscribe()
	return views, cancel, nil
}

// Save writes the active document to the page. ifMatch, when set, must be
// the hash of the currently saved document.
func (s *Service) Save(ctx context.Context, session Session, pageID, ifMatch string) (SaveResult, error) {
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return SaveResult{}, err
	}
	es.saveMu.Lock()
	defer es.saveMu.Unlock()
	return s.save(ctx, session, es, ifMatch)
}

func (s *Service) save(ctx context.Context, session Session, es *editorSession, ifMatch string) (SaveResult, error) {
	current, err := s.pages.GetPage(ctx, session.TenantID, es.pageID)
	if err != nil {
		return SaveResult{}, err
	}
	if ifMatch != "" && ifMatch != current.Hash {
		return SaveResult{}, domainError(http.StatusPreconditionFailed, "STALE_DOCUMENT", "The page was saved by someone else", map[string]any{"hash": current.Hash})
	}

	doc := es.store.Document()
	data, hash, err := encode(doc)
	if err != nil {
		return SaveResult{}, err
	}
	if hash == current.Hash {
		es.setBase(hash)
		s.dropDraft(ctx, es)
		return SaveResult{Hash: hash, Saved: false}, nil
	}

	text := search.TextOf(doc)
	ok, err := s.pages.SaveDocument(ctx, session.TenantID, es.pageID, data, hash, text, session.UserName)
	if err != nil {
		return SaveResult{}, err
	}
	if !ok {
		return SaveResult{}, domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}
	es.setBase(hash)
	s.dropDraft(ctx, es)
	s.index(session.TenantID, es.pageID, current.Title, current.Slug, current.Status, text)
	return SaveResult{Hash: hash, Saved: true}, nil
}

// Publish saves the active document and commits it as the page's next
// published version.
func (s *Service) Publish(ctx context.Context, session Session, pageID, message string) (gitrepo.Version, error) {
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return gitrepo.Version{}, err
	}
	es.saveMu.Lock()
	defer es.saveMu.Unlock()

	saved, err := s.save(ctx, session, es, "")
	if err != nil {
		return gitrepo.Version{}, err
	}
	p, err := s.pages.GetPage(ctx, session.TenantID, pageID)
	if err != nil {
		return gitrepo.Version{}, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = fmt.Sprintf("Publish %s", p.Title)
	}
	version, err := s.versions.Publish(session.TenantID, pageID, gitrepo.Content{
		Title:    p.Title,
		Slug:     p.Slug,
		Document: p.Document,
	}, session.UserName, message)
	if err != nil {
		return gitrepo.Version{}, fmt.Errorf("publish version: %w", err)
	}
	if _, err := s.pages.MarkPublished(ctx, session.TenantID, pageID, saved.Hash, session.UserName); err != nil {
		return gitrepo.Version{}, err
	}
	s.index(session.TenantID, pageID, p.Title, p.Slug, store.StatusPublished, p.SearchText)
	s.logger.Info().Str("page", pageID).Str("version", version.Tag).Str("user", session.UserID).Msg("page published")
	return version, nil
}

func (s *Service) Versions(ctx context.Context, session Session, pageID string, limit int) ([]gitrepo.Version, error) {
	if _, err := s.pages.GetPage(ctx, session.TenantID, pageID); err != nil {
		return nil, err
	}
	return s.versions.Versions(session.TenantID, pageID, limit)
}

// RestoreVersion loads a published version into the editor. The restored
// document is unsaved until the next save.
func (s *Service) RestoreVersion(ctx context.Context, session Session, pageID, hash string) (EditorView, error) {
	es, err := s.editorSession(ctx, session, pageID)
	if err != nil {
		return EditorView{}, err
	}
	content, err := s.versions.Content(session.TenantID, pageID, hash)
	if err != nil {
		return EditorView{}, err
	}
	doc, err := page.Parse(content.Document)
	if err != nil {
		return EditorView{}, fmt.Errorf("restore version %s: %w", hash, err)
	}
	if err := es.store.Load(doc); err != nil {
		return EditorView{}, err
	}
	es.touch(session.UserName)
	return toEditorView(es.store.View()), nil
}

// Export renders the page. An open editor's unsaved document wins over the
// stored one.
func (s *Service) Export(ctx context.Context, session Session, pageID string, format export.Format) (*export.Result, error) {
	p, err := s.pages.GetPage(ctx, session.TenantID, pageID)
	if err != nil {
		return nil, err
	}
	var doc *page.Node
	if es := s.lookupSession(session.TenantID, pageID); es != nil {
		doc = es.store.Document()
	} else if doc, err = page.Parse(p.Document); err != nil {
		return nil, fmt.Errorf("parse stored page %s: %w", pageID, err)
	}
	return s.exporter.Export(ctx, export.Request{
		Title:     p.Title,
		UpdatedBy: p.UpdatedBy,
		Document:  doc,
		Format:    format,
	})
}

func (s *Service) Search(_ context.Context, session Session, text, status string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:         text,
		TenantID:     session.TenantID,
		FilterStatus: status,
		Limit:        limit,
		Offset:       offset,
	})
}

// UploadAsset stores an image for the page and records it. The content type
// is sniffed from the payload, not trusted from the client.
func (s *Service) UploadAsset(ctx context.Context, session Session, pageID string, r io.Reader, size int64, declaredType string) (store.Asset, error) {
	if s.assets == nil {
		return store.Asset{}, domainError(http.StatusServiceUnavailable, "ASSETS_DISABLED", "Asset storage is not configured", nil)
	}
	if _, err := s.pages.GetPage(ctx, session.TenantID, pageID); err != nil {
		return store.Asset{}, err
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return store.Asset{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	contentType := assets.Sniff(head, declaredType)
	if err := assets.Check(contentType, size); err != nil {
		return store.Asset{}, err
	}

	id := util.NewID("as")
	obj, err := s.assets.Upload(ctx, session.TenantID, pageID, id, io.MultiReader(bytes.NewReader(head), r), size, contentType)
	if err != nil {
		return store.Asset{}, err
	}
	asset := store.Asset{
		ID:          id,
		TenantID:    session.TenantID,
		PageID:      pageID,
		ObjectKey:   obj.Key,
		URL:         obj.URL,
		ContentType: obj.ContentType,
		Size:        obj.Size,
		UploadedBy:  session.UserName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.pages.InsertAsset(ctx, asset); err != nil {
		if rmErr := s.assets.Remove(ctx, obj.Key); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("key", obj.Key).Msg("remove orphaned asset")
		}
		return store.Asset{}, err
	}
	return asset, nil
}

func (s *Service) ListAssets(ctx context.Context, session Session, pageID string) ([]store.Asset, error) {
	return s.pages.ListAssets(ctx, session.TenantID, pageID)
}

// DeletePage removes the page, its draft, its uploaded files and its search
// entry. Published versions stay in the page's git repository.
func (s *Service) DeletePage(ctx context.Context, session Session, pageID string) error {
	if _, err := s.pages.GetPage(ctx, session.TenantID, pageID); err != nil {
		return err
	}
	s.CloseEditor(session, pageID)

	items, err := s.pages.ListAssets(ctx, session.TenantID, pageID)
	if err != nil {
		return err
	}
	ok, err := s.pages.DeletePage(ctx, session.TenantID, pageID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}

	if s.assets != nil {
		for _, a := range items {
			if err := s.assets.Remove(ctx, a.ObjectKey); err != nil {
				s.logger.Warn().Err(err).Str("key", a.ObjectKey).Msg("remove asset of deleted page")
			}
		}
	}
	if s.drafts != nil {
		if err := s.drafts.Delete(ctx, session.TenantID, pageID); err != nil {
			s.logger.Warn().Err(err).Str("page", pageID).Msg("delete draft of deleted page")
		}
	}
	if s.search != nil {
		s.search.DeletePage(pageID)
	}
	s.logger.Info().Str("page", pageID).Str("user", session.UserID).Msg("page deleted")
	return nil
}

// CloseEditor ends the page's editor session. Unsaved changes stay in the
// draft store.
func (s *Service) CloseEditor(session Session, pageID string) {
	key := sessionKey(session.TenantID, pageID)
	s.mu.Lock()
	es, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()
	if ok {
		es.close()
	}
}

// Close ends every editor session.
func (s *Service) Close() {
	s.mu.Lock()
	open := s.sessions
	s.sessions = make(map[string]*editorSession)
	s.mu.Unlock()
	for _, es := range open {
		es.close()
	}
}

func (s *Service) index(tenantID, pageID, title, slug, status, text string) {
	if s.search == nil {
		return
	}
	s.search.IndexPage(search.PageRecord{
		ID:       pageID,
		TenantID: tenantID,
		Title:    title,
		Slug:     slug,
		Status:   status,
		Text:     text,
	})
}

func commandFrom(in CommandInput) (editor.Command, error) {
	index := -1
	if in.Index != nil {
		index = *in.Index
	}
	switch in.Op {
	case "add":
		switch {
		case len(in.Structure) > 0:
			structure, err := page.Parse(in.Structure)
			if err != nil {
				return nil, domainError(http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error(), nil)
			}
			return editor.AddNode{ParentID: in.ParentID, Structure: structure, Index: index}, nil
		case in.Template != "":
			structure, ok := page.Template(in.Template)
			if !ok {
				return nil, domainError(http.StatusBadRequest, "UNKNOWN_TEMPLATE", "Unknown template", map[string]any{"template": in.Template, "available": page.Templates()})
			}
			return editor.AddNode{ParentID: in.ParentID, Structure: structure, Index: index}, nil
		default:
			return editor.AddNode{ParentID: in.ParentID, Type: in.Type, Props: in.Props, Index: index}, nil
		}
	case "update":
		return editor.UpdateProps{ID: in.ID, Props: in.Props}, nil
	case "updateContent":
		return editor.UpdateContent{ID: in.ID, Content: in.Content}, nil
	case "delete":
		return editor.DeleteNode{ID: in.ID}, nil
	case "move":
		return editor.MoveNode{ID: in.ID, ParentID: in.ParentID, Index: index}, nil
	case "duplicate":
		return editor.DuplicateNode{ID: in.ID}, nil
	case "select":
		return editor.Select{ID: in.ID}, nil
	case "undo":
		return editor.Undo{}, nil
	case "redo":
		return editor.Redo{}, nil
	}
	return nil, domainError(http.StatusBadRequest, "INVALID_COMMAND", "Unknown editor command", map[string]any{"op": in.Op})
}

func toEditorView(v editor.View) EditorView {
	return EditorView{
		Document:   v.Document,
		SelectedID: v.SelectedID,
		Cursor:     v.Cursor,
		Length:     v.Length,
		CanUndo:    v.CanUndo,
		CanRedo:    v.CanRedo,
		Revision:   v.Revision,
	}
}

func summaryOf(p store.Page) PageSummary {
	return PageSummary{
		ID:            p.ID,
		Title:         p.Title,
		Slug:          p.Slug,
		Status:        p.Status,
		Hash:          p.Hash,
		PublishedHash: p.PublishedHash,
		UpdatedBy:     p.UpdatedBy,
		UpdatedAt:     p.UpdatedAt,
	}
}

func encode(doc *page.Node) ([]byte, string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("encode document: %w", err)
	}
	hash, err := page.Hash(doc)
	if err != nil {
		return nil, "", err
	}
	return data, hash, nil
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "page"
	}
	return slug
}
