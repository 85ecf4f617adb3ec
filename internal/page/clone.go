package page

import (
	"nexcrm/builder/internal/schema"
	"nexcrm/builder/internal/util"
)

const idPrefix = "el"

// NewID returns a fresh node id.
func NewID() string {
	return util.NewID(idPrefix)
}

// CloneWithFreshIDs deep-copies n and every descendant, giving each copy a
// new id. Attributes are copied by value, so the clone shares nothing with
// the source.
func CloneWithFreshIDs(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		id:      NewID(),
		typ:     n.typ,
		props:   n.props.Clone(),
		content: n.content.Clone(),
	}
	if c.props == nil {
		c.props = Props{}
	}
	if len(n.children) > 0 {
		c.children = make([]*Node, len(n.children))
		for i, child := range n.children {
			c.children[i] = CloneWithFreshIDs(child)
		}
	}
	return c
}

// Build creates a fresh node of a registered type: schema defaults overlaid
// with the valid entries of extra, plus the type's default children. Unknown
// types cannot be built.
func Build(nodeType string, extra Props) (*Node, bool) {
	s, ok := schema.Describe(nodeType)
	if !ok {
		return nil, false
	}
	props := Props(s.DefaultProps())
	for key, value := range extra {
		if normalized, ok := schema.Check(s.Fields, key, value); ok {
			props[key] = normalized
		}
	}
	n := &Node{
		id:      NewID(),
		typ:     nodeType,
		props:   props,
		content: Props(s.DefaultContent()),
	}
	for _, child := range s.DefaultChildren {
		if built, ok := buildChild(child); ok {
			n.children = append(n.children, built)
		}
	}
	return n, true
}

func buildChild(c schema.Child) (*Node, bool) {
	n, ok := Build(c.Type, c.Props)
	if !ok {
		return nil, false
	}
	if len(c.Children) == 0 {
		return n, true
	}
	if !schema.IsContainer(c.Type) {
		return n, true
	}
	n.children = nil
	for _, grandchild := range c.Children {
		if built, ok := buildChild(grandchild); ok {
			n.children = append(n.children, built)
		}
	}
	return n, true
}
