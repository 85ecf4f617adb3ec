// Package page holds the page-builder document tree: the immutable node type,
// the navigator every component uses to find nodes, the clone service and
// the pure mutations the editor reducer is built from.
//
// A *Node is never modified after construction. Mutations return a new root
// that shares every untouched subtree with the previous one, so any number of
// readers may hold old roots without synchronization.
package page

import (
	"reflect"

	"nexcrm/builder/internal/schema"
)

// Props is an attribute map. Values are JSON scalars: string, float64, bool.
type Props map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (p Props) Clone() Props {
	return p.copyWith(func(v any) any { return v })
}

// normalized copies p, converting Go numerics to float64. Values that are not
// scalars are kept as they are and rejected later by Validate.
func (p Props) normalized() Props {
	return p.copyWith(func(v any) any {
		if n, ok := schema.Normalize(v); ok {
			return n
		}
		return v
	})
}

func (p Props) copyWith(fn func(any) any) Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = fn(v)
	}
	return out
}

// Node is one element of a page document.
type Node struct {
	id       string
	typ      string
	props    Props
	content  Props
	children []*Node
}

// NewNode builds a node from the given parts. Props and the children slice
// are copied and numbers normalized to float64; children themselves are
// shared, which is safe because nodes are immutable. NewNode does not check
// invariants; see Validate.
func NewNode(id, nodeType string, props Props, children ...*Node) *Node {
	n := &Node{id: id, typ: nodeType, props: props.normalized()}
	if n.props == nil {
		n.props = Props{}
	}
	if len(children) > 0 {
		n.children = append([]*Node(nil), children...)
	}
	return n
}

// WithContent returns a copy of n carrying the given content map.
func (n *Node) WithContent(content Props) *Node {
	c := n.shallow()
	c.content = content.normalized()
	return c
}

func (n *Node) ID() string   { return n.id }
func (n *Node) Type() string { return n.typ }
func (n *Node) Len() int     { return len(n.children) }

// Props returns a copy of the node's attributes.
func (n *Node) Props() Props { return n.props.Clone() }

// Prop returns a single attribute.
func (n *Node) Prop(key string) (any, bool) {
	v, ok := n.props[key]
	return v, ok
}

// Content returns a copy of the structured content map, nil when absent.
func (n *Node) Content() Props { return n.content.Clone() }

// Children returns a copy of the child slice.
func (n *Node) Children() []*Node {
	if len(n.children) == 0 {
		return nil
	}
	return append([]*Node(nil), n.children...)
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Equal reports whether two trees have the same ids, types, attributes and
// shape.
func Equal(a, b *Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.id != b.id || a.typ != b.typ || len(a.children) != len(b.children) {
		return false
	}
	if !propsEqual(a.props, b.props) || !propsEqual(a.content, b.content) {
		return false
	}
	for i := range a.children {
		if !Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

func propsEqual(a, b Props) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// shallow copies the node header. The props map and children slice are still
// shared with n and must be replaced, not written, by the caller.
func (n *Node) shallow() *Node {
	c := *n
	return &c
}
