package merkle

import (
	"fmt"
	"sync"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// Ledger holds the current tree of one account. The tree is only ever
// replaced as a whole, under the ledger's lock.
type Ledger struct {
	mu   sync.Mutex
	tree Tree
}

// NewLedger returns a ledger holding the empty tree.
func NewLedger() *Ledger { return &Ledger{} }

// Snapshot returns the current tree.
func (l *Ledger) Snapshot() Tree {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree
}

// Root returns the current root.
func (l *Ledger) Root() common.Hash { return l.Snapshot().Root() }

// Proof returns the proof of leaf in the current tree.
func (l *Ledger) Proof(leaf common.Hash) ([]common.Hash, error) {
	return l.Snapshot().Proof(leaf)
}

// Mutate computes the next tree from the current one and installs it only if
// fn succeeds. fn runs while the ledger is locked, so persisting the new root
// inside fn makes "compute and publish root" a single step with respect to
// other mutations of this ledger.
func (l *Ledger) Mutate(fn func(current Tree) (Tree, error)) (Tree, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := fn(l.tree)
	if err != nil {
		return l.tree, err
	}
	l.tree = next
	return next, nil
}

// LeavesOf hashes records in order.
func LeavesOf(records []sessions.Record) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(records))
	for _, r := range records {
		h, err := r.LeafHash()
		if err != nil {
			return nil, fmt.Errorf("merkle: leaf of session %s: %w", r.SessionID, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// FromRecords builds the tree of a complete leaf set.
func FromRecords(records []sessions.Record) (Tree, error) {
	leaves, err := LeavesOf(records)
	if err != nil {
		return Tree{}, err
	}
	return Build(leaves), nil
}

// Publish runs write under the ledger's lock with a sessions.RootFunc that
// builds the tree of the leaf set it is given. write is expected to hand that
// function to a store mutation, which then persists the root together with
// the leaves. The tree of the last successful root computation is installed
// once write succeeds.
func (l *Ledger) Publish(write func(root sessions.RootFunc) error) (Tree, error) {
	return l.Mutate(func(cur Tree) (Tree, error) {
		var (
			next  Tree
			built bool
		)
		err := write(func(records []sessions.Record) (common.Hash, error) {
			t, err := FromRecords(records)
			if err != nil {
				return common.Hash{}, err
			}
			next, built = t, true
			return t.Root(), nil
		})
		if err != nil {
			return cur, err
		}
		if !built {
			return cur, nil
		}
		return next, nil
	})
}
