package page

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the hex BLAKE2b-256 digest of the document's JSON encoding.
// encoding/json sorts map keys, so equal trees hash equally.
func Hash(root *Node) (string, error) {
	if root == nil {
		return "", ErrEmptyDocument
	}
	data, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
