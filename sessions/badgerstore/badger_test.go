package badgerstore

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/storetest"
	"github.com/ethereum/go-ethereum/common"
)

func TestBadgerStore(t *testing.T) {
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	storetest.RunStoreTests(t, func(t *testing.T, account common.Address) sessions.Store {
		return db.Store(account)
	})
}

func TestBadgerStorePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	account := storetest.NewAccount()
	ctx := context.Background()

	s1, err := New(Config{Dir: dir}, account)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := s1.AddSessionData(ctx, sessions.Record{SessionKeyData: []byte{7}})
	if err != nil {
		t.Fatalf("AddSessionData: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(Config{Dir: dir}, account)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetSessionData(ctx, sessions.SearchParam{SessionID: r.SessionID}); err != nil {
		t.Fatalf("record lost across reopen: %v", err)
	}
}

func TestBadgerStoreCrossStoreChanges(t *testing.T) {
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	account := storetest.NewAccount()
	writer := db.Store(account)
	reader := db.Store(account)
	defer writer.Close()
	defer reader.Close()

	ch := reader.Changes()
	// The database subscription is registered asynchronously.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := writer.SetMerkleRoot(context.Background(), common.BigToHash(common.Big1)); err != nil {
			t.Fatalf("SetMerkleRoot: %v", err)
		}
		select {
		case <-ch:
			return
		case <-deadline:
			t.Fatal("reader saw no change from the writer")
		case <-tick.C:
		}
	}
}

func TestBadgerStoreLogsThroughStoreLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	account := storetest.NewAccount()

	s, err := New(Config{InMemory: true}, account, sessions.WithLogger(log))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if _, err := s.AddSessionData(context.Background(), sessions.Record{SessionKeyData: []byte{1}}); err != nil {
		t.Fatalf("AddSessionData: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"badgerstore backend opened", "session leaf added", account.Hex()} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
