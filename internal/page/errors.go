package page

import "errors"

// Document validation errors. Each is wrapped with the offending node id.
var (
	// ErrMalformed indicates the document is not valid JSON for a node tree.
	ErrMalformed = errors.New("malformed document")

	// ErrEmptyDocument indicates a nil or empty root.
	ErrEmptyDocument = errors.New("empty document")

	// ErrMissingID indicates a node without an id.
	ErrMissingID = errors.New("node has no id")

	// ErrMissingType indicates a node without a type.
	ErrMissingType = errors.New("node has no type")

	// ErrDuplicateID indicates two nodes share an id.
	ErrDuplicateID = errors.New("duplicate node id")

	// ErrLeafChildren indicates children under a registered leaf type.
	ErrLeafChildren = errors.New("leaf node has children")

	// ErrInvalidProp indicates a prop value that is not a scalar or does not
	// match its declared kind.
	ErrInvalidProp = errors.New("invalid prop value")

	// ErrInvalidContent indicates content on a type without a content schema,
	// or a content value that does not match its declared kind.
	ErrInvalidContent = errors.New("invalid content value")
)
