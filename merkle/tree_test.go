package merkle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func leaves(n int) []common.Hash {
	out := make([]common.Hash, n)
	for i := range out {
		out[i] = crypto.Keccak256Hash([]byte{byte(i + 1)})
	}
	return out
}

func TestKnownRoots(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{0, "0x0000000000000000000000000000000000000000000000000000000000000000"},
		{1, "0x5fe7f977e71dba2ea1a68e21057beebb9be2ac30c6410aa38d4f3fbe41dcffd2"},
		{2, "0x71d8979cbfae9b197a4fbcc7d387b1fae9560e2f284d30b4e90c80f6bc074f57"},
		{3, "0x1d381df987f19770b1e761d81bddf641a0ff3273ee7c58476cdb59abdfb0b0d8"},
	}
	for _, tc := range cases {
		if got := Build(leaves(tc.n)).Root(); got != common.HexToHash(tc.want) {
			t.Fatalf("root of %d leaves = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestPairOrderIndependent(t *testing.T) {
	l := leaves(2)
	if HashPair(l[0], l[1]) != HashPair(l[1], l[0]) {
		t.Fatalf("pair hashing depends on order")
	}
}

func TestProofsVerify(t *testing.T) {
	for n := 1; n <= 9; n++ {
		ls := leaves(n)
		tree := Build(ls)
		for _, leaf := range ls {
			proof, err := tree.Proof(leaf)
			if err != nil {
				t.Fatalf("n=%d Proof: %v", n, err)
			}
			if !Verify(proof, leaf, tree.Root()) {
				t.Fatalf("n=%d proof for %s does not verify", n, leaf)
			}
		}
	}
}

func TestProofRejectsForeignLeaf(t *testing.T) {
	tree := Build(leaves(4))
	_, err := tree.Proof(crypto.Keccak256Hash([]byte("other")))
	if !errors.Is(err, ErrLeafNotFound) {
		t.Fatalf("expected ErrLeafNotFound, got %v", err)
	}
	proof, _ := tree.Proof(leaves(4)[1])
	if Verify(proof, crypto.Keccak256Hash([]byte("other")), tree.Root()) {
		t.Fatalf("proof verified a leaf outside the tree")
	}
}

func TestAppendMatchesBatchBuild(t *testing.T) {
	all := leaves(7)
	incremental := Tree{}
	incremental = incremental.Append(all[:2]...)
	incremental = incremental.Append(all[2:3]...)
	incremental = incremental.Append(all[3:]...)
	if incremental.Root() != Build(all).Root() {
		t.Fatalf("incremental append differs from batch build")
	}
	if incremental.Len() != 7 {
		t.Fatalf("expected 7 leaves, got %d", incremental.Len())
	}
}

func TestTreeIsImmutable(t *testing.T) {
	ls := leaves(3)
	tree := Build(ls)
	root := tree.Root()
	ls[0] = common.Hash{}
	got := tree.Leaves()
	got[1] = common.Hash{}
	if tree.Root() != root || tree.Leaves()[1] == (common.Hash{}) {
		t.Fatalf("tree shares memory with callers")
	}
	_ = tree.Append(leaves(1)...)
	if tree.Len() != 3 {
		t.Fatalf("Append modified the receiver")
	}
}
