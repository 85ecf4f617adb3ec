// Package editor composes the document engine into an editing session: a
// pure reducer over explicit state and a single-owner store that applies
// commands one at a time.
package editor

import "nexcrm/builder/internal/page"

// Command is one editor action. The concrete types below are the only
// implementations.
type Command interface {
	command()
}

// AddNode inserts a new node under ParentID. When Structure is set it is
// cloned with fresh ids; otherwise a node of Type is built from the schema
// with Props overlaid. A negative Index appends.
type AddNode struct {
	ParentID  string
	Type      string
	Props     page.Props
	Structure *page.Node
	Index     int
}

type UpdateProps struct {
	ID    string
	Props page.Props
}

type UpdateContent struct {
	ID      string
	Content page.Props
}

type DeleteNode struct {
	ID string
}

// MoveNode re-parents or reorders ID, keeping its id. Index counts positions
// after the node is detached; a negative Index appends.
type MoveNode struct {
	ID       string
	ParentID string
	Index    int
}

type DuplicateNode struct {
	ID string
}

// LoadDocument replaces the document and discards history. Document must
// already be validated.
type LoadDocument struct {
	Document *page.Node
}

type Undo struct{}

type Redo struct{}

// Select sets the selected node id; an empty ID clears the selection.
type Select struct {
	ID string
}

func (AddNode) command()       {}
func (UpdateProps) command()   {}
func (UpdateContent) command() {}
func (DeleteNode) command()    {}
func (MoveNode) command()      {}
func (DuplicateNode) command() {}
func (LoadDocument) command()  {}
func (Undo) command()          {}
func (Redo) command()          {}
func (Select) command()        {}
