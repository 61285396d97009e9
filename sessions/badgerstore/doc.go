// Package badgerstore implements sessions.Store on an embedded Badger
// database. One database holds any number of accounts, each as a single JSON
// document under "session-doc/<address>".
//
// Example:
//
//	db, err := badgerstore.Open(badgerstore.Config{Dir: "/var/lib/sessions"})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//	store := db.Store(account)
package badgerstore
