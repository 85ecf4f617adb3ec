package page

import (
	"bytes"
	"encoding/json"
	"fmt"

	"nexcrm/builder/internal/schema"
)

type wireNode struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Props    Props       `json:"props,omitempty"`
	Content  Props       `json:"content,omitempty"`
	Children []*wireNode `json:"children,omitempty"`
}

func toWire(n *Node) *wireNode {
	w := &wireNode{ID: n.id, Type: n.typ, Props: n.props, Content: n.content}
	if len(n.children) > 0 {
		w.Children = make([]*wireNode, len(n.children))
		for i, child := range n.children {
			w.Children[i] = toWire(child)
		}
	}
	return w
}

func fromWire(w *wireNode) (*Node, error) {
	n := &Node{id: w.ID, typ: w.Type, props: w.Props, content: w.Content}
	if n.props == nil {
		n.props = Props{}
	}
	if len(w.Children) > 0 {
		n.children = make([]*Node, 0, len(w.Children))
		for i, child := range w.Children {
			if child == nil {
				return nil, fmt.Errorf("%w: node %q child %d is null", ErrMalformed, w.ID, i)
			}
			c, err := fromWire(child)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, c)
		}
	}
	return n, nil
}

// MarshalJSON encodes the node as {"id","type","props","content","children"}.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(n))
}

// UnmarshalJSON decodes and validates a document. A node that fails
// validation leaves the receiver untouched.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// Parse decodes a JSON document and validates it. Numbers are decoded as
// float64 so a parsed tree equals one built in code.
func Parse(data []byte) (*Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrEmptyDocument
	}
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root, err := fromWire(&w)
	if err != nil {
		return nil, err
	}
	if err := Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

// Validate checks every document invariant: each node has an id and a type,
// ids are unique, registered leaf types have no children, and attribute
// values are scalars matching the registry. Unknown types pass and may keep
// their children.
func Validate(root *Node) error {
	if root == nil {
		return ErrEmptyDocument
	}
	seen := make(map[string]struct{})
	var err error
	Walk(root, func(n, _ *Node, _ int) bool {
		if err != nil {
			return false
		}
		err = validateNode(n, seen)
		return err == nil
	})
	return err
}

func validateNode(n *Node, seen map[string]struct{}) error {
	if n.id == "" {
		return fmt.Errorf("node of type %q: %w", n.typ, ErrMissingID)
	}
	if n.typ == "" {
		return fmt.Errorf("node %q: %w", n.id, ErrMissingType)
	}
	if _, dup := seen[n.id]; dup {
		return fmt.Errorf("node %q: %w", n.id, ErrDuplicateID)
	}
	seen[n.id] = struct{}{}

	s, known := schema.Describe(n.typ)
	if known && !s.Container && len(n.children) > 0 {
		return fmt.Errorf("node %q (%s): %w", n.id, n.typ, ErrLeafChildren)
	}
	for key, value := range n.props {
		if _, ok := schema.Check(s.Fields, key, value); !ok {
			return fmt.Errorf("node %q prop %q: %w", n.id, key, ErrInvalidProp)
		}
	}
	if len(n.content) == 0 {
		return nil
	}
	if known && !s.HasContent() {
		return fmt.Errorf("node %q (%s) carries content: %w", n.id, n.typ, ErrInvalidContent)
	}
	for key, value := range n.content {
		if _, ok := schema.Check(s.ContentFields, key, value); !ok {
			return fmt.Errorf("node %q content %q: %w", n.id, key, ErrInvalidContent)
		}
	}
	return nil
}
