package biconomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
	"github.com/blockchain-hcj/biconomy-client-sdk/permission"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/common"
)

// SessionGrant is the outcome of creating sessions.
type SessionGrant struct {
	// SessionIDs of the new leaves, in policy order.
	SessionIDs []string
	Root       common.Hash
	// SessionKey is the key generated for the grant: a new local signer for
	// policies without a session key, or the distributed key's address.
	SessionKey common.Address
	// UserOp is the owner-signed operation that enabled the module (if needed)
	// and published the root.
	UserOp *account.UserOpResponse
}

// Revocation is the outcome of RevokeSessions.
type Revocation struct {
	// TombstoneIDs are the session IDs of the tombstone leaves.
	TombstoneIDs []string
	Root         common.Hash
	UserOp       *account.UserOpResponse
}

// CreateSession grants the policies to their session keys. Policies without a
// session key share one freshly generated signer kept in the store. The
// leaves are stored PENDING and the new root is sent in an owner-signed
// operation that also enables the session key manager when the account needs
// it.
//
// If sending fails the leaves stay PENDING in the store; ClearPendingSessions
// drops them.
func (c *Client) CreateSession(ctx context.Context, policies []permission.Policy, opts account.BuildUserOpOptions) (*SessionGrant, error) {
	if len(policies) == 0 {
		return nil, errors.New("biconomy: no policies")
	}
	ctx = c.withAccount(ctx)
	unlock := lockAccount(c.address)
	defer unlock()

	// The generated key is stored only once every policy has compiled.
	var generated *sessions.SignerData
	data := make([]permission.Datum, len(policies))
	for i, p := range policies {
		if p.SessionKeyAddress == (common.Address{}) {
			if generated == nil {
				sd, err := sessions.NewRandomSigner(c.chainID)
				if err != nil {
					return nil, fmt.Errorf("biconomy: add session signer: %w", err)
				}
				generated = &sd
			}
			p.SessionKeyAddress = generated.PublicKey
		}
		d, err := permission.NewABISessionDatum(p)
		if err != nil {
			return nil, fmt.Errorf("biconomy: policy %d: %w", i, err)
		}
		data[i] = d
	}
	var sessionKey common.Address
	if generated != nil {
		signer, err := c.store.AddSigner(ctx, generated, c.chainID)
		if err != nil {
			return nil, fmt.Errorf("biconomy: add session signer: %w", err)
		}
		sessionKey = signer.Address()
	}

	records := make([]sessions.Record, len(data))
	for i, d := range data {
		records[i] = sessions.NewRecord(d)
	}
	grant, err := c.grant(ctx, records, opts)
	if err != nil {
		return nil, err
	}
	grant.SessionKey = sessionKey
	return grant, nil
}

// CreateSessionWithDistributedKey generates a distributed session key
// authorized by owner and grants the policies to it. The key lives as long
// as the first policy's validUntil, or dan.DefaultSessionDuration when that is
// unbounded. Every leaf carries the key's dan module info.
func (c *Client) CreateSessionWithDistributedKey(ctx context.Context, policies []permission.Policy, owner dan.OwnerWallet, opts account.BuildUserOpOptions) (*SessionGrant, error) {
	if c.dan == nil {
		return nil, ErrDistributedUnavailable
	}
	if len(policies) == 0 {
		return nil, errors.New("biconomy: no policies")
	}
	ctx = c.withAccount(ctx)

	duration := dan.DefaultSessionDuration
	if iv := policies[0].Interval; iv != nil && iv.ValidUntil != 0 {
		now := uint64(c.now().Unix())
		if iv.ValidUntil <= now {
			return nil, fmt.Errorf("biconomy: policy 0: validUntil %d is not in the future", iv.ValidUntil)
		}
		duration = iv.ValidUntil - now
	}

	key, err := c.dan.GenerateSessionKey(ctx, dan.KeyGenRequest{
		Owner:           owner,
		DurationSeconds: duration,
		ChainID:         c.chainID,
	})
	if err != nil {
		return nil, err
	}

	records := make([]sessions.Record, len(policies))
	for i, p := range policies {
		p.SessionKeyAddress = key.SessionKeyEOA
		d, err := permission.NewABISessionDatum(p)
		if err != nil {
			return nil, fmt.Errorf("biconomy: policy %d: %w", i, err)
		}
		info := key.ModuleInfo()
		records[i] = sessions.NewRecord(d)
		records[i].DanModuleInfo = &info
	}

	unlock := lockAccount(c.address)
	defer unlock()
	grant, err := c.grant(ctx, records, opts)
	if err != nil {
		return nil, err
	}
	grant.SessionKey = key.SessionKeyEOA
	return grant, nil
}

// grant inserts records and sends the enable and setMerkleRoot transactions.
// The caller holds the account lock.
func (c *Client) grant(ctx context.Context, records []sessions.Record, opts account.BuildUserOpOptions) (*SessionGrant, error) {
	txs, err := c.enableTxs(ctx, c.skm.Address())
	if err != nil {
		return nil, err
	}
	resp, err := c.skm.CreateSessionRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	txs = append(txs, account.Transaction{To: c.skm.Address(), Value: new(big.Int), Data: resp.Data})

	sent, err := c.account.SendTransaction(ctx, txs, opts)
	if err != nil {
		c.log.WarnContext(ctx, "session grant not sent",
			slog.Any("session_ids", resp.SessionIDs),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("biconomy: send session grant: %w", err)
	}
	c.log.InfoContext(ctx, "session granted",
		slog.Any("session_ids", resp.SessionIDs),
		slog.String("root", resp.Root.Hex()),
		slog.String("user_op_hash", sent.UserOpHash.Hex()),
	)
	return &SessionGrant{SessionIDs: resp.SessionIDs, Root: resp.Root, UserOp: sent}, nil
}

// enableTxs returns the transaction enabling module, or none when the
// deployed account already has it enabled.
func (c *Client) enableTxs(ctx context.Context, module common.Address) ([]account.Transaction, error) {
	deployed, err := c.account.IsAccountDeployed(ctx)
	if err != nil {
		return nil, fmt.Errorf("biconomy: account deployment: %w", err)
	}
	if deployed {
		enabled, err := c.account.IsModuleEnabled(ctx, module)
		if err != nil {
			return nil, fmt.Errorf("biconomy: module status: %w", err)
		}
		if enabled {
			return nil, nil
		}
	}
	tx, err := c.account.EnableModuleData(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("biconomy: enable module data: %w", err)
	}
	return []account.Transaction{tx}, nil
}

// EnableBatchedRouter sends an owner-signed operation enabling the batched
// session router, if the account does not have it enabled yet. It returns nil
// when nothing had to be sent.
func (c *Client) EnableBatchedRouter(ctx context.Context, opts account.BuildUserOpOptions) (*account.UserOpResponse, error) {
	ctx = c.withAccount(ctx)
	txs, err := c.enableTxs(ctx, c.router.Address())
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	resp, err := c.account.SendTransaction(ctx, txs, opts)
	if err != nil {
		return nil, fmt.Errorf("biconomy: enable batched router: %w", err)
	}
	return resp, nil
}

// RevokeSessions revokes the sessions and publishes the root including their
// tombstone leaves in an owner-signed operation.
func (c *Client) RevokeSessions(ctx context.Context, sessionIDs []string, opts account.BuildUserOpOptions) (*Revocation, error) {
	if len(sessionIDs) == 0 {
		return nil, errors.New("biconomy: no session ids")
	}
	ctx = c.withAccount(ctx)
	unlock := lockAccount(c.address)
	defer unlock()

	resp, err := c.skm.RevokeSessions(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}
	sent, err := c.account.SendTransaction(ctx, []account.Transaction{{
		To:    c.skm.Address(),
		Value: new(big.Int),
		Data:  resp.Data,
	}}, opts)
	if err != nil {
		return nil, fmt.Errorf("biconomy: send revocation: %w", err)
	}
	return &Revocation{TombstoneIDs: resp.SessionIDs, Root: resp.Root, UserOp: sent}, nil
}

// MarkSessionsActive records that the operation publishing the sessions'
// root was confirmed. Either every session becomes ACTIVE or none does; a
// revoked session fails the call with modules.ErrSessionRevoked.
func (c *Client) MarkSessionsActive(ctx context.Context, sessionIDs []string) error {
	ctx = c.withAccount(ctx)
	unlock := lockAccount(c.address)
	defer unlock()

	for _, id := range sessionIDs {
		r, err := c.store.GetSessionData(ctx, sessions.SearchParam{SessionID: id})
		if err != nil {
			return err
		}
		if r.Status == sessions.StatusRevoked {
			return fmt.Errorf("%w: %s", modules.ErrSessionRevoked, id)
		}
	}
	return c.skm.UpdateSessionStatuses(ctx, sessionIDs, sessions.StatusActive)
}

// ClearPendingSessions drops every PENDING session and rebuilds the ledger.
func (c *Client) ClearPendingSessions(ctx context.Context) error {
	ctx = c.withAccount(ctx)
	unlock := lockAccount(c.address)
	defer unlock()
	return c.skm.ClearPendingSessions(ctx)
}

// ResumeSession returns the IDs of the account's sessions that can still
// sign, oldest first.
func (c *Client) ResumeSession(ctx context.Context) ([]string, error) {
	all, err := c.store.GetAllSessionData(ctx, sessions.SearchParam{})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range sessions.Live(all) {
		if r.Status == sessions.StatusRevoked {
			continue
		}
		ids = append(ids, r.SessionID)
	}
	return ids, nil
}
