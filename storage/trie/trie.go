package trie

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
)

// ErrDuplicateKey is returned when two entries share a key.
var ErrDuplicateKey = errors.New("trie: duplicate key")

// Entry is one key/value leaf of a commitment.
type Entry struct {
	Key   []byte
	Value []byte
}

// Root returns the Merkle Patricia root committing to entries. Keys are
// hashed with keccak256 before insertion, so the root does not depend on the
// order entries are supplied in. Entries with an empty value are skipped.
// The empty set commits to the canonical empty root.
func Root(entries []Entry) (common.Hash, error) {
	type leaf struct {
		key   []byte
		value []byte
	}
	leaves := make([]leaf, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Value) == 0 {
			continue
		}
		leaves = append(leaves, leaf{key: crypto.Keccak256(entry.Key), value: entry.Value})
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i].key, leaves[j].key) < 0 })

	st := gethtrie.NewStackTrie(nil)
	for i, l := range leaves {
		if i > 0 && bytes.Equal(leaves[i-1].key, l.key) {
			return common.Hash{}, fmt.Errorf("%w: %x", ErrDuplicateKey, l.key)
		}
		if err := st.Update(l.key, l.value); err != nil {
			return common.Hash{}, err
		}
	}
	return st.Hash(), nil
}
