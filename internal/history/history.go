// Package history is a linear undo/redo log of immutable snapshots.
package history

// DefaultLimit is the number of snapshots kept when no limit is given.
const DefaultLimit = 100

// History is a value type: every transition returns a new History and leaves
// the receiver valid. Snapshots must themselves be immutable. The zero
// History is not usable; start from New.
type History[T any] struct {
	entries []T
	cursor  int
	limit   int
}

// New starts a history holding only initial. A limit of zero or less keeps
// every snapshot.
func New[T any](initial T, limit int) History[T] {
	return History[T]{entries: []T{initial}, limit: limit}
}

// Commit drops any redo branch, appends s and moves the cursor onto it. When
// the log grows past the limit the oldest snapshots are discarded.
func (h History[T]) Commit(s T) History[T] {
	keep := h.entries[:h.cursor+1]
	start := 0
	if h.limit > 0 && len(keep)+1 > h.limit {
		start = len(keep) + 1 - h.limit
	}
	// always copy: entries may share a backing array with other History values
	entries := make([]T, 0, len(keep)-start+1)
	entries = append(entries, keep[start:]...)
	entries = append(entries, s)
	return History[T]{entries: entries, cursor: len(entries) - 1, limit: h.limit}
}

// Undo moves the cursor back one snapshot. It is a no-op at the start.
func (h History[T]) Undo() History[T] {
	if h.cursor > 0 {
		h.cursor--
	}
	return h
}

// Redo moves the cursor forward one snapshot. It is a no-op at the end.
func (h History[T]) Redo() History[T] {
	if h.cursor < len(h.entries)-1 {
		h.cursor++
	}
	return h
}

// Reset discards every snapshot and starts over from s.
func (h History[T]) Reset(s T) History[T] {
	return New(s, h.limit)
}

// Current returns the active snapshot.
func (h History[T]) Current() T {
	return h.entries[h.cursor]
}

func (h History[T]) Cursor() int   { return h.cursor }
func (h History[T]) Len() int      { return len(h.entries) }
func (h History[T]) Limit() int    { return h.limit }
func (h History[T]) CanUndo() bool { return h.cursor > 0 }
func (h History[T]) CanRedo() bool { return h.cursor < len(h.entries)-1 }
