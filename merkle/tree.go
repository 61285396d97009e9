package merkle

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrLeafNotFound is matched by every *LeafNotFoundError.
var ErrLeafNotFound = errors.New("merkle: leaf not found")

// LeafNotFoundError reports a proof request for a leaf the tree does not hold.
type LeafNotFoundError struct {
	Leaf common.Hash
}

func (e *LeafNotFoundError) Error() string {
	return fmt.Sprintf("merkle: leaf %s not found", e.Leaf.Hex())
}

func (e *LeafNotFoundError) Is(target error) bool { return target == ErrLeafNotFound }

// Tree is an immutable Merkle tree. The zero value is the empty tree.
type Tree struct {
	// layers[0] are the leaves, the last layer holds the root.
	layers [][]common.Hash
}

// Build returns the tree over leaves in the given order.
func Build(leaves []common.Hash) Tree {
	if len(leaves) == 0 {
		return Tree{}
	}
	layer := append([]common.Hash(nil), leaves...)
	layers := [][]common.Hash{layer}
	for len(layer) > 1 {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, HashPair(layer[i], layer[i+1]))
		}
		layers = append(layers, next)
		layer = next
	}
	return Tree{layers: layers}
}

// HashPair is the parent of a and b, independent of their order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Root returns the root, or the zero hash for the empty tree.
func (t Tree) Root() common.Hash {
	if len(t.layers) == 0 {
		return common.Hash{}
	}
	return t.layers[len(t.layers)-1][0]
}

// Leaves returns a copy of the leaves in insertion order.
func (t Tree) Leaves() []common.Hash {
	if len(t.layers) == 0 {
		return nil
	}
	return append([]common.Hash(nil), t.layers[0]...)
}

// Len is the number of leaves.
func (t Tree) Len() int {
	if len(t.layers) == 0 {
		return 0
	}
	return len(t.layers[0])
}

// IndexOf returns the position of the first occurrence of leaf, or -1.
func (t Tree) IndexOf(leaf common.Hash) int {
	if len(t.layers) == 0 {
		return -1
	}
	for i, l := range t.layers[0] {
		if l == leaf {
			return i
		}
	}
	return -1
}

// Contains reports whether leaf is in the tree.
func (t Tree) Contains(leaf common.Hash) bool { return t.IndexOf(leaf) >= 0 }

// Proof returns the sibling path of the first occurrence of leaf, from the
// leaf layer upwards.
func (t Tree) Proof(leaf common.Hash) ([]common.Hash, error) {
	idx := t.IndexOf(leaf)
	if idx < 0 {
		return nil, &LeafNotFoundError{Leaf: leaf}
	}
	proof := []common.Hash{}
	for _, layer := range t.layers {
		sibling := idx + 1
		if idx%2 == 1 {
			sibling = idx - 1
		}
		// A promoted odd node has no sibling on this layer.
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// Append returns a new tree with leaves added after the existing ones. The
// tree is rebuilt in full.
func (t Tree) Append(leaves ...common.Hash) Tree {
	all := make([]common.Hash, 0, t.Len()+len(leaves))
	if t.Len() > 0 {
		all = append(all, t.layers[0]...)
	}
	return Build(append(all, leaves...))
}

// Verify reports whether proof links leaf to root.
func Verify(proof []common.Hash, leaf, root common.Hash) bool {
	h := leaf
	for _, p := range proof {
		h = HashPair(h, p)
	}
	return h == root
}
