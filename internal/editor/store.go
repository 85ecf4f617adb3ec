package editor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"nexcrm/builder/internal/history"
	"nexcrm/builder/internal/page"
)

// View is what collaborators read: the active document and selection plus
// the history position. Views are immutable and safe to share.
type View struct {
	Document   *page.Node
	SelectedID string
	Cursor     int
	Length     int
	CanUndo    bool
	CanRedo    bool
	// Revision increases every time the store applies a command that changes
	// the view.
	Revision uint64
}

type request struct {
	cmd      Command
	response chan result
}

type result struct {
	view    View
	created string
}

// Store owns one editing session. A single goroutine applies commands in
// arrival order; View may be called from any goroutine.
type Store struct {
	requests chan request
	done     chan struct{}
	closing  sync.Once
	logger   zerolog.Logger

	current atomic.Pointer[View]

	subMu sync.Mutex
	subs  map[chan View]struct{}
}

// Options configures a Store.
type Options struct {
	HistoryLimit int
	Logger       zerolog.Logger
}

// NewStore starts a session on doc, or on the starter document when doc is
// nil. A zero HistoryLimit uses history.DefaultLimit; a negative limit keeps
// every snapshot.
func NewStore(doc *page.Node, opts Options) *Store {
	if doc == nil {
		doc = page.Starter()
	}
	limit := opts.HistoryLimit
	switch {
	case limit == 0:
		limit = history.DefaultLimit
	case limit < 0:
		limit = 0
	}
	s := &Store{
		requests: make(chan request, 64),
		done:     make(chan struct{}),
		logger:   opts.Logger,
		subs:     make(map[chan View]struct{}),
	}
	state := NewState(doc, limit)
	initial := viewOf(state, 0)
	s.current.Store(&initial)
	go s.loop(state)
	return s
}

// loop is the only goroutine that touches State.
func (s *Store) loop(state State) {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			before := state
			state = Reduce(state, req.cmd)
			view := *s.current.Load()
			if changed(before, state) {
				view = viewOf(state, view.Revision+1)
				s.current.Store(&view)
				s.publish(view)
			} else {
				s.logger.Debug().Str("command", commandName(req.cmd)).Msg("editor command had no effect")
			}
			req.response <- result{view: view, created: state.Created}
		}
	}
}

func (s *Store) dispatch(cmd Command) result {
	select {
	case <-s.done:
		return result{view: s.View()}
	default:
	}
	resp := make(chan result, 1)
	select {
	case s.requests <- request{cmd: cmd, response: resp}:
	case <-s.done:
		return result{view: s.View()}
	}
	select {
	case r := <-resp:
		return r
	case <-s.done:
		return result{view: s.View()}
	}
}

// Dispatch applies cmd and returns the resulting view.
func (s *Store) Dispatch(cmd Command) View {
	return s.dispatch(cmd).view
}

// Apply is Dispatch that also reports the id of a node the command created.
func (s *Store) Apply(cmd Command) (View, string) {
	r := s.dispatch(cmd)
	return r.view, r.created
}

// View returns the latest published view without waiting for the owner
// goroutine.
func (s *Store) View() View {
	return *s.current.Load()
}

// Document returns the active document.
func (s *Store) Document() *page.Node {
	return s.View().Document
}

func (s *Store) Select(id string) View {
	return s.Dispatch(Select{ID: id})
}

// Add builds a node of nodeType under parentID, appended, and returns its id.
// The id is empty when nothing was added.
func (s *Store) Add(parentID, nodeType string, extra page.Props) string {
	return s.dispatch(AddNode{ParentID: parentID, Type: nodeType, Props: extra, Index: -1}).created
}

// AddStructure inserts a fresh-id clone of structure and returns the id of
// the clone's root. The id is empty when the clone fails validation.
func (s *Store) AddStructure(parentID string, structure *page.Node, index int) string {
	return s.dispatch(AddNode{ParentID: parentID, Structure: structure, Index: index}).created
}

func (s *Store) Update(id string, props page.Props) View {
	return s.Dispatch(UpdateProps{ID: id, Props: props})
}

func (s *Store) UpdateContent(id string, content page.Props) View {
	return s.Dispatch(UpdateContent{ID: id, Content: content})
}

func (s *Store) Delete(id string) View {
	return s.Dispatch(DeleteNode{ID: id})
}

func (s *Store) Move(id, parentID string, index int) View {
	return s.Dispatch(MoveNode{ID: id, ParentID: parentID, Index: index})
}

// Duplicate copies the node next to itself and returns the copy's id.
func (s *Store) Duplicate(id string) string {
	return s.dispatch(DuplicateNode{ID: id}).created
}

// Load validates doc and makes it the only history entry. An invalid
// document is rejected and the session is left as it was.
func (s *Store) Load(doc *page.Node) error {
	if err := page.Validate(doc); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	s.Dispatch(LoadDocument{Document: doc})
	return nil
}

// LoadJSON parses data and loads it.
func (s *Store) LoadJSON(data []byte) error {
	doc, err := page.Parse(data)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	s.Dispatch(LoadDocument{Document: doc})
	return nil
}

func (s *Store) Undo() View {
	return s.Dispatch(Undo{})
}

func (s *Store) Redo() View {
	return s.Dispatch(Redo{})
}

// Subscribe returns a channel that receives every new view. A slow reader
// only sees the latest one. The channel is closed by the returned cancel
// function or by Close.
func (s *Store) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	s.subMu.Lock()
	select {
	case <-s.done:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

func (s *Store) publish(v View) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		// drop the stale view, if any, so the newest always fits
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close stops the owner goroutine and closes every subscription. Actions
// after Close return the last view.
func (s *Store) Close() {
	s.closing.Do(func() {
		s.subMu.Lock()
		close(s.done)
		for ch := range s.subs {
			close(ch)
		}
		s.subs = map[chan View]struct{}{}
		s.subMu.Unlock()
	})
}

func viewOf(state State, revision uint64) View {
	h := state.History
	return View{
		Document:   h.Current(),
		SelectedID: state.Selected,
		Cursor:     h.Cursor(),
		Length:     h.Len(),
		CanUndo:    h.CanUndo(),
		CanRedo:    h.CanRedo(),
		Revision:   revision,
	}
}

func changed(before, after State) bool {
	return before.Document() != after.Document() ||
		before.Selected != after.Selected ||
		before.History.Cursor() != after.History.Cursor() ||
		before.History.Len() != after.History.Len()
}

func commandName(cmd Command) string {
	switch cmd.(type) {
	case AddNode:
		return "add"
	case UpdateProps:
		return "update"
	case UpdateContent:
		return "updateContent"
	case DeleteNode:
		return "delete"
	case MoveNode:
		return "move"
	case DuplicateNode:
		return "duplicate"
	case LoadDocument:
		return "load"
	case Undo:
		return "undo"
	case Redo:
		return "redo"
	case Select:
		return "select"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}
