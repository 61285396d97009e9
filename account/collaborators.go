package account

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BuildUserOpOptions tune how an account builds a user operation.
type BuildUserOpOptions struct {
	// Nonce overrides the account's next nonce.
	Nonce *big.Int
	// SkipBundlerGasEstimation keeps the gas values the account filled in.
	SkipBundlerGasEstimation bool
	// SponsorWithPaymaster asks the paymaster for paymasterAndData.
	SponsorWithPaymaster bool
}

// UserOpResponse is the bundler's acknowledgement of a submitted operation.
type UserOpResponse struct {
	UserOpHash common.Hash
}

// GasEstimate is the bundler's gas estimate for an operation.
type GasEstimate struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	// Fee fields are optional; nil keeps the account's values.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Apply copies the estimate onto op.
func (g *GasEstimate) Apply(op *UserOperation) {
	if g.CallGasLimit != nil {
		op.CallGasLimit = g.CallGasLimit
	}
	if g.VerificationGasLimit != nil {
		op.VerificationGasLimit = g.VerificationGasLimit
	}
	if g.PreVerificationGas != nil {
		op.PreVerificationGas = g.PreVerificationGas
	}
	if g.MaxFeePerGas != nil {
		op.MaxFeePerGas = g.MaxFeePerGas
	}
	if g.MaxPriorityFeePerGas != nil {
		op.MaxPriorityFeePerGas = g.MaxPriorityFeePerGas
	}
}

// SmartAccount is the account the sessions are granted on.
type SmartAccount interface {
	Address(ctx context.Context) (common.Address, error)
	IsAccountDeployed(ctx context.Context) (bool, error)
	IsModuleEnabled(ctx context.Context, module common.Address) (bool, error)
	// EnableModuleData returns the transaction that enables module on the account.
	EnableModuleData(ctx context.Context, module common.Address) (Transaction, error)
	// BuildUserOp builds an unsigned user operation executing txs.
	BuildUserOp(ctx context.Context, txs []Transaction, opts BuildUserOpOptions) (*UserOperation, error)
	// SendTransaction builds, signs with the account owner and submits txs.
	SendTransaction(ctx context.Context, txs []Transaction, opts BuildUserOpOptions) (*UserOpResponse, error)
}

// Bundler relays user operations to the entry point.
type Bundler interface {
	EstimateUserOpGas(ctx context.Context, op *UserOperation) (*GasEstimate, error)
	SendUserOp(ctx context.Context, op *UserOperation) (*UserOpResponse, error)
}

// Paymaster sponsors user operations.
type Paymaster interface {
	GetPaymasterAndData(ctx context.Context, op *UserOperation) ([]byte, error)
}
