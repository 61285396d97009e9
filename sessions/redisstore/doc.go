// Package redisstore implements sessions.Store on Redis so that several
// processes can share the session leaves of an account.
//
// Design Notes
//   - Document: one JSON value per account at "<prefix>account:<address>"
//   - Updates: WATCH + MULTI/EXEC optimistic transactions, retried on conflict
//   - Changes: every committed update is published on
//     "<prefix>changes:<address>"; each store subscribes at construction and
//     surfaces the messages through Store.Changes
//
// Example:
//
//	store, err := redisstore.New(redisstore.Config{RedisAddr: "localhost:6379"}, account)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
package redisstore
