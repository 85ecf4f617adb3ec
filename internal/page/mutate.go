package page

import (
	"reflect"

	"nexcrm/builder/internal/schema"
)

// The mutations below never modify their input. Each returns the new root;
// when the operation does not apply (missing id, wrong node kind, nothing to
// change) it returns root itself, so callers detect a no-op with ==.

// Insert places child under the node parentID at index. An index below zero
// or past the end appends. The parent must be a container and child must not
// reuse an id already present in the tree.
func Insert(root *Node, parentID string, child *Node, index int) *Node {
	if child == nil {
		return root
	}
	parent, ok := Locate(root, parentID)
	if !ok || !schema.IsContainer(parent.Node.typ) {
		return root
	}
	if collides(root, child) {
		return root
	}
	return replaceAt(root, parent.Path, func(p *Node) *Node {
		return withChildAt(p, child, index)
	})
}

// UpdateProps shallow-merges partial into the node's props. Entries that are
// not scalars, or that do not fit a declared field, are dropped.
func UpdateProps(root *Node, id string, partial Props) *Node {
	loc, ok := Locate(root, id)
	if !ok {
		return root
	}
	var fields []schema.Field
	if s, known := schema.Describe(loc.Node.typ); known {
		fields = s.Fields
	}
	merged, changed := merge(loc.Node.props, partial, fields)
	if !changed {
		return root
	}
	return replaceAt(root, loc.Path, func(n *Node) *Node {
		c := n.shallow()
		c.props = merged
		return c
	})
}

// UpdateContent shallow-merges partial into the content map of a node whose
// type registers a content schema.
func UpdateContent(root *Node, id string, partial Props) *Node {
	loc, ok := Locate(root, id)
	if !ok {
		return root
	}
	s, known := schema.Describe(loc.Node.typ)
	if !known || !s.HasContent() {
		return root
	}
	merged, changed := merge(loc.Node.content, partial, s.ContentFields)
	if !changed {
		return root
	}
	return replaceAt(root, loc.Path, func(n *Node) *Node {
		c := n.shallow()
		c.content = merged
		return c
	})
}

// Remove detaches the node and its subtree. The root cannot be removed.
func Remove(root *Node, id string) *Node {
	loc, ok := Locate(root, id)
	if !ok || loc.Parent == nil {
		return root
	}
	return replaceAt(root, loc.Path[:len(loc.Path)-1], func(p *Node) *Node {
		return withoutChildAt(p, loc.Index)
	})
}

// Move re-parents or reorders a node, keeping its id and subtree. index is a
// position in the target's child list after the node has been detached.
// Moving the root, or moving a node into itself or its own subtree, is a
// no-op.
func Move(root *Node, id, newParentID string, index int) *Node {
	loc, ok := Locate(root, id)
	if !ok || loc.Parent == nil {
		return root
	}
	target, ok := Locate(root, newParentID)
	if !ok || !schema.IsContainer(target.Node.typ) {
		return root
	}
	if isPrefix(loc.Path, target.Path) {
		return root
	}

	if target.Node == loc.Parent {
		remaining := len(loc.Parent.children) - 1
		if index < 0 || index > remaining {
			index = remaining
		}
		if index == loc.Index {
			return root
		}
	}

	detached := replaceAt(root, loc.Path[:len(loc.Path)-1], func(p *Node) *Node {
		return withoutChildAt(p, loc.Index)
	})
	target, ok = Locate(detached, newParentID)
	if !ok {
		return root
	}
	return replaceAt(detached, target.Path, func(p *Node) *Node {
		return withChildAt(p, loc.Node, index)
	})
}

// Duplicate inserts a fresh-id clone of the node right after it and returns
// the new root together with the clone's id. The root cannot be duplicated.
func Duplicate(root *Node, id string) (*Node, string) {
	loc, ok := Locate(root, id)
	if !ok || loc.Parent == nil {
		return root, ""
	}
	clone := CloneWithFreshIDs(loc.Node)
	next := replaceAt(root, loc.Path[:len(loc.Path)-1], func(p *Node) *Node {
		return withChildAt(p, clone, loc.Index+1)
	})
	return next, clone.id
}

// replaceAt rebuilds the ancestors along path around fn's result. Siblings
// off the path are shared with the old tree.
func replaceAt(n *Node, path []int, fn func(*Node) *Node) *Node {
	if len(path) == 0 {
		return fn(n)
	}
	child := n.children[path[0]]
	updated := replaceAt(child, path[1:], fn)
	if updated == child {
		return n
	}
	c := n.shallow()
	c.children = append([]*Node(nil), n.children...)
	c.children[path[0]] = updated
	return c
}

func withChildAt(p *Node, child *Node, index int) *Node {
	if index < 0 || index > len(p.children) {
		index = len(p.children)
	}
	children := make([]*Node, 0, len(p.children)+1)
	children = append(children, p.children[:index]...)
	children = append(children, child)
	children = append(children, p.children[index:]...)
	c := p.shallow()
	c.children = children
	return c
}

func withoutChildAt(p *Node, index int) *Node {
	children := make([]*Node, 0, len(p.children)-1)
	children = append(children, p.children[:index]...)
	children = append(children, p.children[index+1:]...)
	c := p.shallow()
	if len(children) == 0 {
		children = nil
	}
	c.children = children
	return c
}

func merge(current, partial Props, fields []schema.Field) (Props, bool) {
	merged := current.Clone()
	if merged == nil {
		merged = Props{}
	}
	changed := false
	for key, value := range partial {
		normalized, ok := schema.Check(fields, key, value)
		if !ok {
			continue
		}
		if existing, present := merged[key]; present && reflect.DeepEqual(existing, normalized) {
			continue
		}
		merged[key] = normalized
		changed = true
	}
	return merged, changed
}

func collides(root, child *Node) bool {
	existing := make(map[string]struct{})
	Walk(root, func(n, _ *Node, _ int) bool {
		existing[n.id] = struct{}{}
		return true
	})
	found := false
	Walk(child, func(n, _ *Node, _ int) bool {
		if _, ok := existing[n.id]; ok {
			found = true
		}
		existing[n.id] = struct{}{}
		return !found
	})
	return found
}
