package biconomy

import (
	"context"
	"fmt"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
)

// LeafIndex selects sessions by their position among the account's live
// sessions, oldest first. The zero value is LastLeaf.
type LeafIndex struct {
	indexes []int
}

// LastLeaf selects the most recently added session, or for a batch the most
// recently added sessions, one per call.
var LastLeaf = LeafIndex{}

// AtIndex selects sessions explicitly: one index for a single session, one per
// call for a batch.
func AtIndex(indexes ...int) LeafIndex {
	return LeafIndex{indexes: append([]int(nil), indexes...)}
}

// IsLast reports whether l is LastLeaf.
func (l LeafIndex) IsLast() bool { return len(l.indexes) == 0 }

// resolve returns n records selected by l from the live records.
func (l LeafIndex) resolve(live []sessions.Record, n int) ([]sessions.Record, error) {
	if len(live) == 0 {
		return nil, ErrNoSessions
	}
	if l.IsLast() {
		if n > len(live) {
			return nil, &BatchMismatchError{Sessions: len(live), Calls: n}
		}
		return live[len(live)-n:], nil
	}
	if len(l.indexes) != n {
		return nil, &BatchMismatchError{Sessions: len(l.indexes), Calls: n}
	}
	out := make([]sessions.Record, n)
	for i, idx := range l.indexes {
		if idx < 0 || idx >= len(live) {
			return nil, fmt.Errorf("%w: %d of %d", ErrLeafIndex, idx, len(live))
		}
		out[i] = live[idx]
	}
	return out, nil
}

func (c *Client) liveSessions(ctx context.Context) ([]sessions.Record, error) {
	all, err := c.store.GetAllSessionData(ctx, sessions.SearchParam{})
	if err != nil {
		return nil, err
	}
	return sessions.Live(all), nil
}

func (c *Client) baseParams() modules.Params {
	return modules.Params{ChainID: c.chainID, EntryPoint: c.entryPoint}
}

// GetSingleSessionTxParams resolves the session and local signer a
// single-session operation is signed with.
func (c *Client) GetSingleSessionTxParams(ctx context.Context, idx LeafIndex) (*modules.Params, error) {
	live, err := c.liveSessions(ctx)
	if err != nil {
		return nil, err
	}
	picked, err := idx.resolve(live, 1)
	if err != nil {
		return nil, err
	}
	sp, err := c.localSession(ctx, picked[0])
	if err != nil {
		return nil, err
	}
	p := c.baseParams()
	p.SessionParams = sp
	return &p, nil
}

// GetBatchSessionTxParams resolves one session per transaction for the
// batched router. The number of sessions must equal the number of txs.
func (c *Client) GetBatchSessionTxParams(ctx context.Context, txs []account.Transaction, idx LeafIndex) (*modules.Params, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no transactions", ErrBatchMismatch)
	}
	live, err := c.liveSessions(ctx)
	if err != nil {
		return nil, err
	}
	picked, err := idx.resolve(live, len(txs))
	if err != nil {
		return nil, err
	}
	p := c.baseParams()
	p.Batch = make([]modules.SessionParams, len(picked))
	for i, r := range picked {
		if p.Batch[i], err = c.localSession(ctx, r); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// GetDanSessionTxParams resolves a distributed-key session. The session must
// carry dan module info for the client's chain.
func (c *Client) GetDanSessionTxParams(ctx context.Context, idx LeafIndex) (*modules.Params, error) {
	live, err := c.liveSessions(ctx)
	if err != nil {
		return nil, err
	}
	picked, err := idx.resolve(live, 1)
	if err != nil {
		return nil, err
	}
	r := picked[0]
	if !r.IsDistributed() {
		return nil, fmt.Errorf("%w: %s", modules.ErrNotDistributed, r.SessionID)
	}
	if r.DanModuleInfo.ChainID != c.chainID {
		return nil, &ChainMismatchError{SessionID: r.SessionID, SessionChain: r.DanModuleInfo.ChainID, TargetChain: c.chainID}
	}
	p := c.baseParams()
	p.SessionID = r.SessionID
	return &p, nil
}

// SessionTxParams dispatches to the resolver for kind.
func (c *Client) SessionTxParams(ctx context.Context, kind modules.Kind, txs []account.Transaction, idx LeafIndex) (*modules.Params, error) {
	switch kind {
	case modules.KindSingle:
		return c.GetSingleSessionTxParams(ctx, idx)
	case modules.KindBatched:
		return c.GetBatchSessionTxParams(ctx, txs, idx)
	case modules.KindDistributed:
		return c.GetDanSessionTxParams(ctx, idx)
	}
	return nil, fmt.Errorf("biconomy: unknown session kind %s", kind)
}

func (c *Client) localSession(ctx context.Context, r sessions.Record) (modules.SessionParams, error) {
	if r.IsDistributed() {
		return modules.SessionParams{}, fmt.Errorf("biconomy: session %s has a distributed key", r.SessionID)
	}
	signer, err := c.store.GetSignerBySession(ctx, sessions.SearchParam{SessionID: r.SessionID}, c.chainID)
	if err != nil {
		return modules.SessionParams{}, err
	}
	return modules.SessionParams{SessionID: r.SessionID, Signer: signer}, nil
}
