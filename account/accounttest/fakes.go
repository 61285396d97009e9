// Package accounttest provides in-memory smart account, bundler and paymaster
// fakes for tests.
package accounttest

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/ethereum/go-ethereum/common"
)

// Account is a fake account.SmartAccount. Owner-signed transactions are
// recorded and applied: an enableModule call to the account itself marks the
// module enabled and deploys the account.
type Account struct {
	ChainID    uint64
	EntryPoint common.Address

	mu       sync.Mutex
	addr     common.Address
	deployed bool
	enabled  map[common.Address]bool
	nonce    uint64
	sent     [][]account.Transaction
}

var _ account.SmartAccount = (*Account)(nil)

// NewAccount returns an undeployed account at addr.
func NewAccount(addr common.Address, chainID uint64) *Account {
	return &Account{
		ChainID:    chainID,
		EntryPoint: account.DefaultEntryPoint,
		addr:       addr,
		enabled:    make(map[common.Address]bool),
	}
}

// SetDeployed marks the account deployed.
func (a *Account) SetDeployed(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deployed = v
}

// EnableModule marks module enabled without a transaction.
func (a *Account) EnableModule(module common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled[module] = true
}

// Sent returns the batches passed to SendTransaction, in order.
func (a *Account) Sent() [][]account.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]account.Transaction, len(a.sent))
	copy(out, a.sent)
	return out
}

func (a *Account) Address(context.Context) (common.Address, error) { return a.addr, nil }

func (a *Account) IsAccountDeployed(context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deployed, nil
}

func (a *Account) IsModuleEnabled(_ context.Context, module common.Address) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled[module], nil
}

func (a *Account) EnableModuleData(_ context.Context, module common.Address) (account.Transaction, error) {
	return account.Transaction{To: a.addr, Value: new(big.Int), Data: account.EncodeEnableModule(module)}, nil
}

func (a *Account) BuildUserOp(ctx context.Context, txs []account.Transaction, opts account.BuildUserOpOptions) (*account.UserOperation, error) {
	callData, err := account.EncodeCalls(txs)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	nonce := new(big.Int).SetUint64(a.nonce)
	a.nonce++
	a.mu.Unlock()
	if opts.Nonce != nil {
		nonce = new(big.Int).Set(opts.Nonce)
	}
	return &account.UserOperation{
		Sender:               a.addr,
		Nonce:                nonce,
		CallData:             callData,
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(50_000),
		MaxFeePerGas:         big.NewInt(1_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000),
	}, nil
}

func (a *Account) SendTransaction(ctx context.Context, txs []account.Transaction, opts account.BuildUserOpOptions) (*account.UserOpResponse, error) {
	op, err := a.BuildUserOp(ctx, txs, opts)
	if err != nil {
		return nil, err
	}
	hash, err := account.UserOpHash(op, a.EntryPoint, a.ChainID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := make([]account.Transaction, len(txs))
	copy(batch, txs)
	a.sent = append(a.sent, batch)
	for _, tx := range txs {
		if tx.To == a.addr && len(tx.Data) == 36 && bytes.Equal(tx.Data[:4], account.EncodeEnableModule(common.Address{})[:4]) {
			a.enabled[common.BytesToAddress(tx.Data[4:])] = true
		}
	}
	a.deployed = true
	return &account.UserOpResponse{UserOpHash: hash}, nil
}

// Bundler is a fake account.Bundler that records submitted operations.
type Bundler struct {
	ChainID    uint64
	EntryPoint common.Address
	// Estimate, when set, is returned by EstimateUserOpGas.
	Estimate *account.GasEstimate

	mu        sync.Mutex
	ops       []*account.UserOperation
	estimated []*account.UserOperation
}

var _ account.Bundler = (*Bundler)(nil)

func NewBundler(chainID uint64) *Bundler {
	return &Bundler{ChainID: chainID, EntryPoint: account.DefaultEntryPoint}
}

func (b *Bundler) EstimateUserOpGas(_ context.Context, op *account.UserOperation) (*account.GasEstimate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estimated = append(b.estimated, op.Copy())
	if b.Estimate != nil {
		est := *b.Estimate
		return &est, nil
	}
	return &account.GasEstimate{
		CallGasLimit:         big.NewInt(120_000),
		VerificationGasLimit: big.NewInt(250_000),
		PreVerificationGas:   big.NewInt(60_000),
	}, nil
}

func (b *Bundler) SendUserOp(_ context.Context, op *account.UserOperation) (*account.UserOpResponse, error) {
	hash, err := account.UserOpHash(op, b.EntryPoint, b.ChainID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, op.Copy())
	return &account.UserOpResponse{UserOpHash: hash}, nil
}

// Sent returns copies of the submitted operations.
func (b *Bundler) Sent() []*account.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*account.UserOperation, len(b.ops))
	copy(out, b.ops)
	return out
}

// Estimated returns copies of the operations passed to EstimateUserOpGas.
func (b *Bundler) Estimated() []*account.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*account.UserOperation, len(b.estimated))
	copy(out, b.estimated)
	return out
}

// Paymaster returns fixed paymasterAndData.
type Paymaster struct {
	Data []byte
}

var _ account.Paymaster = (*Paymaster)(nil)

func (p *Paymaster) GetPaymasterAndData(context.Context, *account.UserOperation) ([]byte, error) {
	return common.CopyBytes(p.Data), nil
}
