package account

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSelectors(t *testing.T) {
	cases := map[string]struct {
		got  []byte
		want string
	}{
		"execute":          {selectorExecute, "b61d27f6"},
		"execute_ncC":      {selectorExecuteNcC, "0000189a"},
		"executeBatch":     {selectorExecuteBatch, "47e1da2a"},
		"executeBatch_y6U": {selectorExecuteBatchY6U, "00004680"},
		"setMerkleRoot":    {selectorSetMerkleRoot, "7cb64759"},
		"enableModule":     {selectorEnableModule, "610b5925"},
	}
	for name, tc := range cases {
		if got := hex.EncodeToString(tc.got); got != tc.want {
			t.Errorf("%s selector = %s, want %s", name, got, tc.want)
		}
	}
}

func TestDecodeBatchCallCount(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	txs := []Transaction{
		{To: to, Value: big.NewInt(1), Data: []byte{1, 2, 3}},
		{To: to, Data: nil},
		{To: to, Value: big.NewInt(0), Data: make([]byte, 100)},
	}
	for n := 1; n <= len(txs); n++ {
		data, err := EncodeExecuteBatch(txs[:n])
		if err != nil {
			t.Fatalf("EncodeExecuteBatch: %v", err)
		}
		got, err := DecodeBatchCallCount(data)
		if err != nil {
			t.Fatalf("DecodeBatchCallCount: %v", err)
		}
		if got != n {
			t.Fatalf("count = %d, want %d", got, n)
		}
	}

	single, err := EncodeExecute(txs[0])
	if err != nil {
		t.Fatalf("EncodeExecute: %v", err)
	}
	if got, err := DecodeBatchCallCount(single); err != nil || got != 1 {
		t.Fatalf("single execute count = %d, %v", got, err)
	}

	if _, err := DecodeBatchCallCount([]byte{0xde, 0xad, 0xbe, 0xef}); !errors.Is(err, ErrUnknownCallData) {
		t.Fatalf("unknown selector err = %v", err)
	}
	if _, err := DecodeBatchCallCount(nil); !errors.Is(err, ErrUnknownCallData) {
		t.Fatalf("empty call data err = %v", err)
	}
}

func TestEncodeCallsPicksEntryPoint(t *testing.T) {
	tx := Transaction{To: common.HexToAddress("0x01")}
	one, _ := EncodeCalls([]Transaction{tx})
	if hex.EncodeToString(one[:4]) != "0000189a" {
		t.Fatalf("single call selector = %x", one[:4])
	}
	two, _ := EncodeCalls([]Transaction{tx, tx})
	if hex.EncodeToString(two[:4]) != "00004680" {
		t.Fatalf("batch selector = %x", two[:4])
	}
}

func TestEncodeSetMerkleRoot(t *testing.T) {
	root := common.HexToHash("0x71d8979cbfae9b197a4fbcc7d387b1fae9560e2f284d30b4e90c80f6bc074f57")
	data := EncodeSetMerkleRoot(root)
	if len(data) != 36 {
		t.Fatalf("len = %d", len(data))
	}
	if hex.EncodeToString(data[:4]) != "7cb64759" || common.BytesToHash(data[4:]) != root {
		t.Fatalf("unexpected call data %x", data)
	}
}

func TestEncodeEnableModule(t *testing.T) {
	mod := common.HexToAddress("0x000002FbFfedd9B33F4E7156F2DE8D48945E7489")
	data := EncodeEnableModule(mod)
	if len(data) != 36 || common.BytesToAddress(data[4:]) != mod {
		t.Fatalf("unexpected call data %x", data)
	}
}
