package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a process-unique identifier. UUIDv7 keeps ids time-ordered
// while the random tail makes collisions between independently built trees
// negligible.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	value := strings.ReplaceAll(id.String(), "-", "")
	if prefix == "" {
		return value
	}
	return prefix + "_" + value
}
