package account

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transaction is one call the smart account makes.
type Transaction struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// ErrUnknownCallData is returned when call data is not one of the account's
// execute entry points.
var ErrUnknownCallData = errors.New("account: unrecognized execute call data")

var (
	selectorExecute         = selector("execute(address,uint256,bytes)")
	selectorExecuteNcC      = selector("execute_ncC(address,uint256,bytes)")
	selectorExecuteBatch    = selector("executeBatch(address[],uint256[],bytes[])")
	selectorExecuteBatchY6U = selector("executeBatch_y6U(address[],uint256[],bytes[])")
	selectorSetMerkleRoot   = selector("setMerkleRoot(bytes32)")
	selectorEnableModule    = selector("enableModule(address)")

	executeArgs      = mustArgs("address", "uint256", "bytes")
	executeBatchArgs = mustArgs("address[]", "uint256[]", "bytes[]")
	addressArgs      = mustArgs("address")
)

func selector(sig string) []byte { return crypto.Keccak256([]byte(sig))[:4] }

// EncodeExecute returns execute_ncC(to, value, data) call data.
func EncodeExecute(tx Transaction) ([]byte, error) {
	args, err := executeArgs.Pack(tx.To, orZero(tx.Value), []byte(nonNil(tx.Data)))
	if err != nil {
		return nil, fmt.Errorf("account: encode execute: %w", err)
	}
	return append(common.CopyBytes(selectorExecuteNcC), args...), nil
}

// EncodeExecuteBatch returns executeBatch_y6U(dest[], value[], func[]) call data.
func EncodeExecuteBatch(txs []Transaction) ([]byte, error) {
	dest := make([]common.Address, len(txs))
	values := make([]*big.Int, len(txs))
	data := make([][]byte, len(txs))
	for i, tx := range txs {
		dest[i] = tx.To
		values[i] = orZero(tx.Value)
		data[i] = nonNil(tx.Data)
	}
	args, err := executeBatchArgs.Pack(dest, values, data)
	if err != nil {
		return nil, fmt.Errorf("account: encode executeBatch: %w", err)
	}
	return append(common.CopyBytes(selectorExecuteBatchY6U), args...), nil
}

// EncodeCalls picks the single or batch execute entry point.
func EncodeCalls(txs []Transaction) ([]byte, error) {
	if len(txs) == 1 {
		return EncodeExecute(txs[0])
	}
	return EncodeExecuteBatch(txs)
}

// DecodeBatchCallCount returns how many calls the execute call data performs.
func DecodeBatchCallCount(callData []byte) (int, error) {
	if len(callData) < 4 {
		return 0, ErrUnknownCallData
	}
	sel, body := callData[:4], callData[4:]
	switch {
	case bytes.Equal(sel, selectorExecute), bytes.Equal(sel, selectorExecuteNcC):
		return 1, nil
	case bytes.Equal(sel, selectorExecuteBatch), bytes.Equal(sel, selectorExecuteBatchY6U):
		vals, err := executeBatchArgs.Unpack(body)
		if err != nil {
			return 0, fmt.Errorf("account: decode executeBatch: %w", err)
		}
		dest, ok := vals[0].([]common.Address)
		if !ok {
			return 0, fmt.Errorf("account: decode executeBatch: unexpected destination type %T", vals[0])
		}
		return len(dest), nil
	}
	return 0, fmt.Errorf("%w: selector %x", ErrUnknownCallData, sel)
}

// EncodeSetMerkleRoot returns setMerkleRoot(root) call data for the session
// key manager module.
func EncodeSetMerkleRoot(root common.Hash) []byte {
	return append(common.CopyBytes(selectorSetMerkleRoot), root.Bytes()...)
}

// EncodeEnableModule returns enableModule(module) call data for the account.
func EncodeEnableModule(module common.Address) []byte {
	args, _ := addressArgs.Pack(module)
	return append(common.CopyBytes(selectorEnableModule), args...)
}
