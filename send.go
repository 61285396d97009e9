package biconomy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/internal/logctx"
	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
	"github.com/ethereum/go-ethereum/common"
)

// SendOptions tune SendSessionTransaction.
type SendOptions struct {
	// LeafIndex selects the sessions when Params is nil.
	LeafIndex LeafIndex
	// Params, when set, are used instead of resolving LeafIndex.
	Params *modules.Params
	account.BuildUserOpOptions
}

// SendSessionTransaction executes txs from the account, signed by a session
// of the given kind instead of the owner. The operation is built by the
// account, sponsored if requested, estimated with the module's dummy
// signature, signed by the module and submitted to the bundler.
func (c *Client) SendSessionTransaction(ctx context.Context, kind modules.Kind, txs []account.Transaction, opts SendOptions) (*account.UserOpResponse, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("biconomy: no transactions")
	}
	ctx = c.withAccount(ctx)
	module, err := c.Module(kind)
	if err != nil {
		return nil, err
	}

	var params modules.Params
	if opts.Params != nil {
		params = *opts.Params
	} else {
		p, err := c.SessionTxParams(ctx, kind, txs, opts.LeafIndex)
		if err != nil {
			return nil, err
		}
		params = *p
	}
	if params.ChainID == 0 {
		params.ChainID = c.chainID
	}
	if params.EntryPoint == (common.Address{}) {
		params.EntryPoint = c.entryPoint
	}
	if params.SessionID != "" {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: params.SessionID, Kind: kind.String()})
	}

	op, err := c.account.BuildUserOp(ctx, txs, opts.BuildUserOpOptions)
	if err != nil {
		return nil, fmt.Errorf("biconomy: build user op: %w", err)
	}
	params.UserOp = op

	if op.Signature, err = module.DummySignature(ctx, params); err != nil {
		return nil, err
	}
	if opts.SponsorWithPaymaster && c.paymaster != nil {
		if op.PaymasterAndData, err = c.paymaster.GetPaymasterAndData(ctx, op); err != nil {
			return nil, fmt.Errorf("biconomy: paymaster: %w", err)
		}
	}
	if !opts.SkipBundlerGasEstimation {
		est, err := c.bundler.EstimateUserOpGas(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("biconomy: estimate gas: %w", err)
		}
		est.Apply(op)
	}

	hash, err := account.UserOpHash(op, params.EntryPoint, params.ChainID)
	if err != nil {
		return nil, err
	}
	if op.Signature, err = module.SignUserOpHash(ctx, hash, params); err != nil {
		return nil, err
	}
	resp, err := c.bundler.SendUserOp(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("biconomy: send user op: %w", err)
	}
	c.log.InfoContext(ctx, "session transaction sent",
		slog.String("kind", kind.String()),
		slog.Int("calls", len(txs)),
		slog.String("user_op_hash", resp.UserOpHash.Hex()),
	)
	return resp, nil
}
