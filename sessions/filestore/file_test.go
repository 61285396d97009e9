package filestore

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/storetest"
	"github.com/ethereum/go-ethereum/common"
)

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	storetest.RunStoreTests(t, func(t *testing.T, account common.Address) sessions.Store {
		s, err := New(Config{Dir: dir, Watch: true}, account)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	account := storetest.NewAccount()
	ctx := context.Background()

	s1, err := New(Config{Dir: dir}, account)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := s1.AddSessionData(ctx, sessions.Record{SessionKeyData: []byte{1}, SessionPublicKey: account})
	if err != nil {
		t.Fatalf("AddSessionData: %v", err)
	}
	root := common.HexToHash("0xabcdef")
	if err := s1.SetMerkleRoot(ctx, root); err != nil {
		t.Fatalf("SetMerkleRoot: %v", err)
	}
	_ = s1.Close()

	s2, err := New(Config{Dir: dir}, account)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetSessionData(ctx, sessions.SearchParam{SessionID: r.SessionID})
	if err != nil {
		t.Fatalf("GetSessionData after reopen: %v", err)
	}
	if got.SessionPublicKey != account {
		t.Fatalf("unexpected record %+v", got)
	}
	if have, _ := s2.GetMerkleRoot(ctx); have != root {
		t.Fatalf("root not persisted: %s", have)
	}
}

func TestFileStoreSeesExternalWrites(t *testing.T) {
	dir := t.TempDir()
	account := storetest.NewAccount()

	b, err := NewBackend(Config{Dir: dir, Watch: true}, account, nil)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()
	ch := b.Changes()

	doc := &sessions.Document{MerkleRoot: common.HexToHash("0x01")}
	raw, _ := doc.Encode()
	if err := os.WriteFile(b.Path(), raw, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("external write not observed")
	}
	got, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MerkleRoot != doc.MerkleRoot {
		t.Fatalf("expected externally written root, got %s", got.MerkleRoot)
	}
}

func TestFileStoreLogsThroughStoreLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	account := storetest.NewAccount()

	s, err := New(Config{Dir: t.TempDir()}, account, sessions.WithLogger(log))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if _, err := s.AddSessionData(context.Background(), sessions.Record{SessionKeyData: []byte{1}}); err != nil {
		t.Fatalf("AddSessionData: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"filestore backend opened", "session leaf added", account.Hex()} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
