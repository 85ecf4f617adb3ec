package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexcrm/builder/internal/page"
	"nexcrm/builder/internal/schema"
)

func starterState() State {
	return NewState(page.Starter(), 0)
}

func TestReduceAddThenDeleteScenario(t *testing.T) {
	s := starterState()
	before := s.Document()

	s = Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeHeading, Index: -1})
	newID := s.Created
	require.NotEmpty(t, newID)
	afterAdd := s.Document()

	section, ok := page.Locate(afterAdd, "s1")
	require.True(t, ok)
	assert.Equal(t, 2, section.Node.Len())
	for _, id := range page.IDs(before) {
		assert.NotEqual(t, id, newID)
	}
	added, ok := page.Locate(afterAdd, newID)
	require.True(t, ok)
	heading, _ := schema.Describe(schema.TypeHeading)
	assert.Equal(t, page.Props(heading.DefaultProps()), added.Node.Props())

	s = Reduce(s, DeleteNode{ID: newID})
	assert.True(t, page.Equal(before, s.Document()))
	assert.Equal(t, 3, s.History.Len())
	assert.Equal(t, 2, s.History.Cursor())

	s = Reduce(s, Undo{})
	assert.True(t, page.Equal(afterAdd, s.Document()))
}

func TestReduceNoOpOnBadReference(t *testing.T) {
	s := starterState()
	doc := s.Document()

	for _, cmd := range []Command{
		UpdateProps{ID: "nonexistent-id", Props: page.Props{"text": "x"}},
		UpdateContent{ID: "nonexistent-id", Content: page.Props{"heading": "x"}},
		DeleteNode{ID: "nonexistent-id"},
		DeleteNode{ID: page.RootID},
		AddNode{ParentID: "nonexistent-id", Type: schema.TypeText, Index: -1},
		AddNode{ParentID: "h1", Type: schema.TypeText, Index: -1},
		AddNode{ParentID: "s1", Type: "Marquee", Index: -1},
		MoveNode{ID: "s1", ParentID: "nonexistent-id", Index: 0},
		MoveNode{ID: page.RootID, ParentID: "s1", Index: 0},
		DuplicateNode{ID: page.RootID},
		LoadDocument{},
	} {
		next := Reduce(s, cmd)
		assert.Same(t, doc, next.Document(), "%T", cmd)
		assert.Equal(t, 1, next.History.Len(), "%T", cmd)
		assert.Empty(t, next.Created, "%T", cmd)
	}
}

func TestReduceUndoRedoInverse(t *testing.T) {
	s := starterState()
	commands := []Command{
		AddNode{ParentID: "s1", Type: schema.TypeButton, Index: 0},
		UpdateProps{ID: "h1", Props: page.Props{"text": "Changed"}},
		AddNode{ParentID: page.RootID, Type: schema.TypeSection, Index: -1},
		MoveNode{ID: "h1", ParentID: page.RootID, Index: 0},
		DuplicateNode{ID: "s1"},
		DeleteNode{ID: "s1"},
	}
	for _, cmd := range commands {
		before := s.Document()
		s = Reduce(s, cmd)
		after := s.Document()
		require.NotSame(t, before, after, "%T", cmd)

		s = Reduce(s, Undo{})
		assert.True(t, page.Equal(before, s.Document()), "undo %T", cmd)
		s = Reduce(s, Redo{})
		assert.True(t, page.Equal(after, s.Document()), "redo %T", cmd)
	}
}

func TestReduceHistoryTruncation(t *testing.T) {
	s := starterState()
	s = Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeText, Index: -1})
	s = Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeImage, Index: -1})
	s = Reduce(s, Undo{})
	s = Reduce(s, Undo{})
	s = Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeButton, Index: -1})
	latest := s.Document()

	s = Reduce(s, Redo{})
	assert.Same(t, latest, s.Document())
	assert.Equal(t, 2, s.History.Len())
	assert.False(t, s.History.CanRedo())
}

func TestReduceSelection(t *testing.T) {
	s := starterState()
	s = Reduce(s, Select{ID: "h1"})
	assert.Equal(t, "h1", s.Selected)

	s = Reduce(s, UpdateProps{ID: "h1", Props: page.Props{"text": "x"}})
	s = Reduce(s, Undo{})
	assert.Equal(t, "h1", s.Selected, "undo keeps selection")

	s = Reduce(s, DeleteNode{ID: "s1"})
	assert.Empty(t, s.Selected, "ancestor deleted")

	s = Reduce(s, Undo{})
	assert.Empty(t, s.Selected, "undo does not restore selection")

	s = Reduce(s, Select{ID: "s1"})
	s = Reduce(s, AddNode{ParentID: page.RootID, Type: schema.TypeSection, Index: -1})
	s = Reduce(s, DeleteNode{ID: s.Created})
	assert.Equal(t, "s1", s.Selected, "unrelated delete keeps selection")
}

func TestReduceAddStructureClonesTemplate(t *testing.T) {
	tpl, ok := page.Template(page.TemplateFeatureGrid)
	require.True(t, ok)

	s := starterState()
	s = Reduce(s, AddNode{ParentID: "s1", Structure: tpl, Index: 0})
	first := s.Created
	s = Reduce(s, AddNode{ParentID: "s1", Structure: tpl, Index: 0})
	second := s.Created

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, tpl.ID(), first)
	section, _ := page.Locate(s.Document(), "s1")
	assert.Equal(t, second, section.Node.Child(0).ID())
	assert.Equal(t, first, section.Node.Child(1).ID())
	assert.NoError(t, page.Validate(s.Document()))
}

func TestReduceRejectsInvalidStructure(t *testing.T) {
	s := starterState()
	doc := s.Document()

	for name, structure := range map[string]*page.Node{
		"leaf with children": page.NewNode("x", schema.TypeHeading, nil, page.NewNode("y", schema.TypeText, nil)),
		"untyped node":       page.NewNode("z", "", nil),
		"untyped descendant": page.NewNode("c", schema.TypeContainer, nil, page.NewNode("w", "", nil)),
	} {
		next := Reduce(s, AddNode{ParentID: "s1", Structure: structure, Index: -1})
		assert.Same(t, doc, next.Document(), name)
		assert.Empty(t, next.Created, name)
		assert.Equal(t, 1, next.History.Len(), name)
	}
}

func TestReduceIgnoresInvalidLoad(t *testing.T) {
	s := starterState()
	doc := s.Document()

	invalid := page.NewNode("root", schema.TypeBody, nil,
		page.NewNode("h", schema.TypeHeading, nil, page.NewNode("t", schema.TypeText, nil)))
	next := Reduce(s, LoadDocument{Document: invalid})
	assert.Same(t, doc, next.Document())

	next = Reduce(s, LoadDocument{Document: page.NewNode("", schema.TypeBody, nil)})
	assert.Same(t, doc, next.Document())
}

func TestReduceLoadResetsHistory(t *testing.T) {
	s := starterState()
	s = Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeText, Index: -1})
	s = Reduce(s, Select{ID: "h1"})

	doc := page.NewNode("other", schema.TypeBody, nil)
	s = Reduce(s, LoadDocument{Document: doc})
	assert.Same(t, doc, s.Document())
	assert.Equal(t, 1, s.History.Len())
	assert.Equal(t, 0, s.History.Cursor())
	assert.Empty(t, s.Selected)
}

func TestReduceLeavesInputStateUsable(t *testing.T) {
	s := starterState()
	s = Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeText, Index: -1})
	s = Reduce(s, Undo{})

	branchA := Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeImage, Index: -1})
	branchB := Reduce(s, AddNode{ParentID: "s1", Type: schema.TypeButton, Index: -1})

	assert.NotSame(t, branchA.Document(), branchB.Document())
	assert.True(t, s.History.CanRedo(), "original state still has its redo entry")
}
