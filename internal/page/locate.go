package page

// Location is where a node sits in a tree.
type Location struct {
	Node   *Node
	Parent *Node // nil for the root
	Index  int   // position among Parent's children, -1 for the root
	Path   []int // child indexes from the root down to Node
}

// Locate finds the node with the given id by depth-first search. A missing id
// is an ordinary outcome, reported as false.
func Locate(root *Node, id string) (Location, bool) {
	if root == nil {
		return Location{}, false
	}
	stack := []Location{{Node: root, Index: -1}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.Node.id == id {
			return top, true
		}
		// push in reverse so children are visited in document order
		for i := len(top.Node.children) - 1; i >= 0; i-- {
			path := make([]int, len(top.Path)+1)
			copy(path, top.Path)
			path[len(top.Path)] = i
			stack = append(stack, Location{
				Node:   top.Node.children[i],
				Parent: top.Node,
				Index:  i,
				Path:   path,
			})
		}
	}
	return Location{}, false
}

// Walk visits every node in pre-order. Returning false from fn skips the
// node's subtree.
func Walk(root *Node, fn func(n, parent *Node, depth int) bool) {
	if root == nil {
		return
	}
	walk(root, nil, 0, fn)
}

func walk(n, parent *Node, depth int, fn func(n, parent *Node, depth int) bool) {
	if !fn(n, parent, depth) {
		return
	}
	for _, child := range n.children {
		walk(child, n, depth+1, fn)
	}
}

// IDs returns every id in the tree in pre-order.
func IDs(root *Node) []string {
	var ids []string
	Walk(root, func(n, _ *Node, _ int) bool {
		ids = append(ids, n.id)
		return true
	})
	return ids
}

// Count returns the number of nodes in the tree.
func Count(root *Node) int {
	count := 0
	Walk(root, func(*Node, *Node, int) bool {
		count++
		return true
	})
	return count
}

func isPrefix(prefix, path []int) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}
