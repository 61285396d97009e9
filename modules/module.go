package modules

import (
	"context"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// Module is a validation module the account can route signature checks to.
type Module interface {
	Kind() Kind
	Address() common.Address
	// DummySignature returns a signature with the exact shape and length of a
	// real one, for gas estimation. It never signs and never calls the network.
	DummySignature(ctx context.Context, p Params) ([]byte, error)
	// SignUserOpHash returns the wrapped signature to place in the operation.
	SignUserOpHash(ctx context.Context, userOpHash common.Hash, p Params) ([]byte, error)
	InitData(ctx context.Context) ([]byte, error)
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

var (
	_ Module = (*SessionKeyManager)(nil)
	_ Module = (*BatchedSessionRouter)(nil)
	_ Module = (*DANSessionKeyManager)(nil)
)

// SessionParams identifies one session and how to sign for it.
type SessionParams struct {
	SessionID               string
	SessionValidationModule common.Address
	// Signer is the local session key. Distributed sessions leave it nil.
	Signer sessions.Signer
	// AdditionalSessionData is appended to the session envelope (single and
	// distributed) or carried as the per-call data of a batch entry.
	AdditionalSessionData []byte
}

func (p SessionParams) search() (sessions.SearchParam, error) {
	switch {
	case p.SessionID != "":
		return sessions.SearchParam{SessionID: p.SessionID}, nil
	case p.SessionValidationModule != (common.Address{}):
		if p.Signer == nil {
			return sessions.SearchParam{}, ErrMissingSigner
		}
		return sessions.SearchParam{
			SessionValidationModule: p.SessionValidationModule,
			SessionPublicKey:        p.Signer.Address(),
		}, nil
	}
	return sessions.SearchParam{}, ErrMissingSession
}

// Params carries everything a module may need to sign one user operation.
type Params struct {
	SessionParams
	// Batch lists one session per call for the batched router.
	Batch []SessionParams
	// UserOp is the operation being signed. The router checks its call count
	// and the distributed manager signs its fields.
	UserOp *account.UserOperation
	// ChainID is the chain the operation targets.
	ChainID uint64
	// EntryPoint defaults to account.DefaultEntryPoint.
	EntryPoint common.Address
}

func (p Params) entryPoint() common.Address {
	if p.EntryPoint == (common.Address{}) {
		return account.DefaultEntryPoint
	}
	return p.EntryPoint
}

// CreateSessionDataResponse is the result of registering new session leaves.
type CreateSessionDataResponse struct {
	// Data is setMerkleRoot(root) call data for the session key manager.
	Data       []byte
	SessionIDs []string
	Root       common.Hash
}
