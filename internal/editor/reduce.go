package editor

import (
	"nexcrm/builder/internal/history"
	"nexcrm/builder/internal/page"
)

// State is everything an editing session holds. Selection lives outside the
// history, so undo and redo never change it.
type State struct {
	History  history.History[*page.Node]
	Selected string
	// Created is the id of the node added by the last AddNode or
	// DuplicateNode, empty when that command was a no-op.
	Created string
}

// NewState starts a session on doc with the given history limit.
func NewState(doc *page.Node, limit int) State {
	return State{History: history.New(doc, limit)}
}

// Document returns the active snapshot.
func (s State) Document() *page.Node {
	return s.History.Current()
}

// Reduce applies cmd to s. It never fails: a command that refers to a
// missing node, or that would break a document invariant, returns s with
// its history unchanged.
func Reduce(s State, cmd Command) State {
	s.Created = ""
	doc := s.Document()

	switch c := cmd.(type) {
	case AddNode:
		child := newChild(c)
		if child == nil {
			return s
		}
		if next := page.Insert(doc, c.ParentID, child, c.Index); next != doc {
			s.History = s.History.Commit(next)
			s.Created = child.ID()
		}
	case UpdateProps:
		s = commit(s, page.UpdateProps(doc, c.ID, c.Props))
	case UpdateContent:
		s = commit(s, page.UpdateContent(doc, c.ID, c.Content))
	case DeleteNode:
		next := page.Remove(doc, c.ID)
		if next == doc {
			return s
		}
		s.History = s.History.Commit(next)
		if s.Selected != "" {
			if _, ok := page.Locate(next, s.Selected); !ok {
				s.Selected = ""
			}
		}
	case MoveNode:
		s = commit(s, page.Move(doc, c.ID, c.ParentID, c.Index))
	case DuplicateNode:
		next, id := page.Duplicate(doc, c.ID)
		if next != doc {
			s.History = s.History.Commit(next)
			s.Created = id
		}
	case LoadDocument:
		if page.Validate(c.Document) != nil {
			return s
		}
		s.History = s.History.Reset(c.Document)
		s.Selected = ""
	case Undo:
		s.History = s.History.Undo()
	case Redo:
		s.History = s.History.Redo()
	case Select:
		s.Selected = c.ID
	}
	return s
}

func commit(s State, next *page.Node) State {
	if next != s.Document() {
		s.History = s.History.Commit(next)
	}
	return s
}

// newChild returns nil when the structure, once given fresh ids, would not
// pass document validation.
func newChild(c AddNode) *page.Node {
	if c.Structure != nil {
		clone := page.CloneWithFreshIDs(c.Structure)
		if page.Validate(clone) != nil {
			return nil
		}
		return clone
	}
	n, ok := page.Build(c.Type, c.Props)
	if !ok {
		return nil
	}
	return n
}
