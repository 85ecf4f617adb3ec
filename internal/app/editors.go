package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"nexcrm/builder/internal/draft"
	"nexcrm/builder/internal/editor"
	"nexcrm/builder/internal/page"
)

const draftTimeout = 5 * time.Second

// editorSession is the open editor of one page. The store serializes
// commands; mu guards the bookkeeping the autosave goroutine reads.
type editorSession struct {
	tenantID string
	pageID   string
	store    *editor.Store
	restored bool

	// saveMu serializes save and publish for the page.
	saveMu sync.Mutex

	mu        sync.Mutex
	baseHash  string
	updatedBy string

	stop func()
	done chan struct{}
}

func sessionKey(tenantID, pageID string) string {
	return tenantID + "/" + pageID
}

func (e *editorSession) touch(userName string) {
	e.mu.Lock()
	e.updatedBy = userName
	e.mu.Unlock()
}

func (e *editorSession) setBase(hash string) {
	e.mu.Lock()
	e.baseHash = hash
	e.mu.Unlock()
}

func (e *editorSession) snapshot() (baseHash, updatedBy string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseHash, e.updatedBy
}

func (e *editorSession) close() {
	e.stop()
	e.store.Close()
	<-e.done
}

func (s *Service) lookupSession(tenantID, pageID string) *editorSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(tenantID, pageID)]
}

// editorSession returns the page's open session or opens one from the saved
// page, restoring a draft that was started from the same saved version.
func (s *Service) editorSession(ctx context.Context, session Session, pageID string) (*editorSession, error) {
	if es := s.lookupSession(session.TenantID, pageID); es != nil {
		return es, nil
	}

	p, err := s.pages.GetPage(ctx, session.TenantID, pageID)
	if err != nil {
		return nil, err
	}
	doc, err := page.Parse(p.Document)
	if err != nil {
		return nil, err
	}

	restored := false
	if d, ok := s.loadDraft(ctx, session.TenantID, pageID); ok {
		switch {
		case d.BaseHash != p.Hash:
			s.logger.Info().Str("page", pageID).Str("draft_base", d.BaseHash).Str("saved", p.Hash).Msg("discarding stale draft")
			_ = s.drafts.Delete(ctx, session.TenantID, pageID)
		case d.Hash != p.Hash:
			if draftDoc, err := page.Parse(d.Document); err == nil {
				doc = draftDoc
				restored = true
			} else {
				s.logger.Warn().Err(err).Str("page", pageID).Msg("discarding unreadable draft")
				_ = s.drafts.Delete(ctx, session.TenantID, pageID)
			}
		}
	}

	es := &editorSession{
		tenantID:  session.TenantID,
		pageID:    pageID,
		store:     editor.NewStore(doc, editor.Options{HistoryLimit: s.cfg.HistoryLimit, Logger: s.logger.With().Str("page", pageID).Logger()}),
		restored:  restored,
		baseHash:  p.Hash,
		updatedBy: session.UserName,
		done:      make(chan struct{}),
	}

	// es is fully started before it is published to other requests.
	views, cancel := es.store.Subscribe()
	es.stop = cancel
	go s.autosave(es, views)

	key := sessionKey(session.TenantID, pageID)
	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		s.mu.Unlock()
		es.close()
		return existing, nil
	}
	s.sessions[key] = es
	s.mu.Unlock()
	return es, nil
}

func (s *Service) loadDraft(ctx context.Context, tenantID, pageID string) (draft.Draft, bool) {
	if s.drafts == nil {
		return draft.Draft{}, false
	}
	d, err := s.drafts.Load(ctx, tenantID, pageID)
	if err != nil {
		if !errors.Is(err, draft.ErrNotFound) {
			s.logger.Warn().Err(err).Str("page", pageID).Msg("load draft")
		}
		return draft.Draft{}, false
	}
	return d, true
}

// autosave writes every published document to the draft store until the
// session closes. Views are latest-wins, so a slow Redis only skips
// intermediate states.
func (s *Service) autosave(es *editorSession, views <-chan editor.View) {
	defer close(es.done)
	if s.drafts == nil {
		for range views {
		}
		return
	}
	lastHash := ""
	for v := range views {
		data, err := json.Marshal(v.Document)
		if err != nil {
			s.logger.Error().Err(err).Str("page", es.pageID).Msg("encode draft")
			continue
		}
		hash, err := page.Hash(v.Document)
		if err != nil || hash == lastHash {
			continue
		}
		lastHash = hash

		baseHash, updatedBy := es.snapshot()
		ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
		if hash == baseHash {
			err = s.drafts.Delete(ctx, es.tenantID, es.pageID)
		} else {
			err = s.drafts.Save(ctx, draft.Draft{
				TenantID:  es.tenantID,
				PageID:    es.pageID,
				Document:  data,
				Hash:      hash,
				BaseHash:  baseHash,
				UpdatedBy: updatedBy,
				SavedAt:   time.Now().UTC(),
			})
		}
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("page", es.pageID).Msg("autosave draft")
		}
	}
}

func (s *Service) dropDraft(ctx context.Context, es *editorSession) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.Delete(ctx, es.tenantID, es.pageID); err != nil {
		s.logger.Warn().Err(err).Str("page", es.pageID).Msg("delete draft after save")
	}
}
