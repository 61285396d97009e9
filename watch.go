package biconomy

import (
	"context"
	"log/slog"
)

// Watch rebuilds the ledger each time the store reports a change, so proofs
// follow sessions added or revoked by other processes. It returns when ctx is
// done or the store is closed.
func (c *Client) Watch(ctx context.Context) error {
	ctx = c.withAccount(ctx)
	changes := c.store.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			unlock := lockAccount(c.address)
			root, err := c.skm.Rebuild(ctx)
			unlock()
			if err != nil {
				c.log.WarnContext(ctx, "ledger rebuild failed", slog.String("err", err.Error()))
				continue
			}
			c.log.DebugContext(ctx, "ledger follows store", slog.String("root", root.Hex()))
		}
	}
}
