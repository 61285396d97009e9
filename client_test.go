package biconomy

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/account"
	"github.com/blockchain-hcj/biconomy-client-sdk/account/accounttest"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan/dantest"
	"github.com/blockchain-hcj/biconomy-client-sdk/modules"
	"github.com/blockchain-hcj/biconomy-client-sdk/permission"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions/memorystore"
	ethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const testChain = 80002

var (
	nftContract = common.HexToAddress("0xdd526eba63ef200ed95f0f0fb8993fe3e20a23d0")
	safeMintTx  = account.Transaction{
		To:    nftContract,
		Value: new(big.Int),
		Data:  append(common.FromHex("0x40d097c3"), common.LeftPadBytes(common.FromHex("0x9406Cc6185a346906296840746125a0E44976454"), 32)...),
	}
)

type fixture struct {
	client  *Client
	account *accounttest.Account
	bundler *accounttest.Bundler
	store   *sessions.DocumentStore
}

// newAccountAddress returns a fresh address so fixtures never share the
// process-wide account lock.
func newAccountAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

func newFixture(t *testing.T, mutate func(*ClientConfig)) *fixture {
	t.Helper()
	addr := newAccountAddress(t)
	store := memorystore.New(addr)
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureOn(t, addr, store, testChain, mutate)
}

func newFixtureOn(t *testing.T, addr common.Address, store *sessions.DocumentStore, chainID uint64, mutate func(*ClientConfig)) *fixture {
	t.Helper()
	f := &fixture{
		account: accounttest.NewAccount(addr, chainID),
		bundler: accounttest.NewBundler(chainID),
		store:   store,
	}
	cfg := ClientConfig{
		Account:    f.account,
		Bundler:    f.bundler,
		Store:      store,
		ChainID:    chainID,
		LogHandler: slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	f.client = c
	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func safeMintPolicy(validAfter uint64) permission.Policy {
	return permission.Policy{
		ContractAddress:  nftContract,
		FunctionSelector: "safeMint(address)",
		Rules: []permission.Rule{{
			Offset:         0,
			Condition:      permission.Equal,
			ReferenceValue: common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454"),
		}},
		Interval:   &permission.Interval{ValidAfter: validAfter},
		ValueLimit: big.NewInt(0),
	}
}

var (
	envelopeArgs = mustTestArgs("uint48", "uint48", "address", "bytes", "bytes32[]", "bytes")
	routerArgs   = abi.Arguments{
		{Type: mustTestType("address", nil)},
		{Type: mustTestType("tuple[]", []abi.ArgumentMarshaling{
			{Name: "validUntil", Type: "uint48"},
			{Name: "validAfter", Type: "uint48"},
			{Name: "sessionValidationModule", Type: "address"},
			{Name: "sessionKeyData", Type: "bytes"},
			{Name: "merkleProof", Type: "bytes32[]"},
			{Name: "callSpecificData", Type: "bytes"},
		})},
		{Type: mustTestType("bytes", nil)},
	}
)

func mustTestType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustTestArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: mustTestType(t, nil)}
	}
	return args
}

// sessionSignature unwraps a single-session signature and returns the outer
// module and the inner session key signature.
func sessionSignature(t *testing.T, wrapped []byte) (common.Address, []byte) {
	t.Helper()
	inner, module, err := modules.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	vals, err := envelopeArgs.Unpack(inner)
	if err != nil {
		t.Fatalf("unpack envelope: %v", err)
	}
	return module, vals[5].([]byte)
}

func recoverPersonal(t *testing.T, hash common.Hash, sig []byte) common.Address {
	t.Helper()
	if len(sig) != 65 {
		t.Fatalf("signature length %d", len(sig))
	}
	rsv := append([]byte(nil), sig...)
	rsv[64] -= 27
	pub, err := crypto.SigToPub(ethaccounts.TextHash(hash.Bytes()), rsv)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	return crypto.PubkeyToAddress(*pub)
}

func lastSent(t *testing.T, b *accounttest.Bundler) (*account.UserOperation, common.Hash) {
	t.Helper()
	sent := b.Sent()
	if len(sent) == 0 {
		t.Fatal("no user operation reached the bundler")
	}
	op := sent[len(sent)-1]
	hash, err := account.UserOpHash(op, account.DefaultEntryPoint, testChain)
	if err != nil {
		t.Fatalf("UserOpHash: %v", err)
	}
	return op, hash
}

func TestNewClientValidation(t *testing.T) {
	addr := newAccountAddress(t)
	store := memorystore.New(addr)
	defer store.Close()
	acct := accounttest.NewAccount(addr, testChain)
	bundler := accounttest.NewBundler(testChain)

	tests := []struct {
		name  string
		cfg   ClientConfig
		field string
	}{
		{"no account", ClientConfig{Bundler: bundler, Store: store, ChainID: testChain}, "account"},
		{"no bundler", ClientConfig{Account: acct, Store: store, ChainID: testChain}, "bundler"},
		{"no store", ClientConfig{Account: acct, Bundler: bundler, ChainID: testChain}, "store"},
		{"no chain", ClientConfig{Account: acct, Bundler: bundler, Store: store}, "chainId"},
		{"foreign store", ClientConfig{Account: acct, Bundler: bundler, Store: memorystore.New(newAccountAddress(t)), ChainID: testChain}, "store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tt.cfg)
			var ce *ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Fatalf("err = %v, want ConfigError on %s", err, tt.field)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v does not match ErrInvalidConfig", err)
			}
		})
	}
}

func TestModuleSelection(t *testing.T) {
	f := newFixture(t, nil)
	if m, err := f.client.Module(modules.KindSingle); err != nil || m.Address() != modules.DefaultSessionKeyManager {
		t.Fatalf("single = %v, %v", m, err)
	}
	if m, err := f.client.Module(modules.KindBatched); err != nil || m.Address() != modules.DefaultBatchedSessionRouter {
		t.Fatalf("batched = %v, %v", m, err)
	}
	if _, err := f.client.Module(modules.KindDistributed); !errors.Is(err, ErrDistributedUnavailable) {
		t.Fatalf("distributed err = %v", err)
	}
}

func TestCreateSessionOnUndeployedAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	grant, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(grant.SessionIDs) != 1 || grant.SessionKey == (common.Address{}) {
		t.Fatalf("grant = %+v", grant)
	}
	sent := f.account.Sent()
	if len(sent) != 1 || len(sent[0]) != 2 {
		t.Fatalf("owner batches = %v, want one batch of enable + setMerkleRoot", sent)
	}
	if want := account.EncodeEnableModule(modules.DefaultSessionKeyManager); string(sent[0][0].Data) != string(want) {
		t.Fatalf("first tx is not enableModule(sessionKeyManager)")
	}
	setRoot := sent[0][1]
	if setRoot.To != modules.DefaultSessionKeyManager || string(setRoot.Data) != string(account.EncodeSetMerkleRoot(grant.Root)) {
		t.Fatalf("second tx is not setMerkleRoot(%s)", grant.Root.Hex())
	}
	if stored, _ := f.store.GetMerkleRoot(ctx); stored != grant.Root {
		t.Fatalf("stored root = %s, want %s", stored.Hex(), grant.Root.Hex())
	}
	rec, err := f.store.GetSessionData(ctx, sessions.SearchParam{SessionID: grant.SessionIDs[0]})
	if err != nil || rec.Status != sessions.StatusPending || rec.SessionPublicKey != grant.SessionKey {
		t.Fatalf("record = %+v, %v", rec, err)
	}
	if _, err := f.store.GetSignerByKey(ctx, grant.SessionKey, testChain); err != nil {
		t.Fatalf("generated signer not stored: %v", err)
	}

	// The account is deployed with the module enabled now.
	again, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(1), safeMintPolicy(2)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatalf("second CreateSession: %v", err)
	}
	if sent := f.account.Sent(); len(sent) != 2 || len(sent[1]) != 1 {
		t.Fatalf("second grant batches = %v, want setMerkleRoot only", sent)
	}
	if len(again.SessionIDs) != 2 || again.SessionKey == grant.SessionKey {
		t.Fatalf("second grant = %+v", again)
	}
	if ids, _ := f.client.ResumeSession(ctx); len(ids) != 3 {
		t.Fatalf("ResumeSession = %v", ids)
	}
}

func TestCreateSessionWithExplicitKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.account.SetDeployed(true)
	f.account.EnableModule(modules.DefaultSessionKeyManager)

	key := newAccountAddress(t)
	p := safeMintPolicy(0)
	p.SessionKeyAddress = key
	grant, err := f.client.CreateSession(ctx, []permission.Policy{p}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if grant.SessionKey != (common.Address{}) {
		t.Fatalf("no key should be generated, got %s", grant.SessionKey.Hex())
	}
	if sent := f.account.Sent(); len(sent) != 1 || len(sent[0]) != 1 {
		t.Fatalf("owner batches = %v", sent)
	}
	if _, err := f.client.CreateSession(ctx, nil, account.BuildUserOpOptions{}); err == nil {
		t.Fatal("expected error for empty policy list")
	}
}

func TestCreateSessionPolicyErrorStoresNothing(t *testing.T) {
	ctx := context.Background()
	bad := safeMintPolicy(0)
	bad.FunctionSelector = "safeMint(address"

	cases := []struct {
		name     string
		policies []permission.Policy
	}{
		{name: "only policy invalid", policies: []permission.Policy{bad}},
		{name: "later policy invalid", policies: []permission.Policy{safeMintPolicy(0), bad}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr := newAccountAddress(t)
			backend := memorystore.NewBackend()
			store := sessions.NewDocumentStore(addr, backend)
			t.Cleanup(func() { _ = store.Close() })
			f := newFixtureOn(t, addr, store, testChain, nil)

			if _, err := f.client.CreateSession(ctx, tc.policies, account.BuildUserOpOptions{}); err == nil {
				t.Fatal("expected policy error")
			}
			doc, err := backend.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(doc.Signers) != 0 || len(doc.Leaves) != 0 {
				t.Fatalf("failed grant stored %d signers and %d leaves", len(doc.Signers), len(doc.Leaves))
			}
		})
	}
}

func TestMarkSessionsActiveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	grant, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0), safeMintPolicy(1)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.RevokeSessions(ctx, grant.SessionIDs[1:], account.BuildUserOpOptions{}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		ids     []string
		wantErr error
	}{
		{name: "unknown id", ids: []string{grant.SessionIDs[0], "missing"}, wantErr: sessions.ErrSessionNotFound},
		{name: "revoked id", ids: []string{grant.SessionIDs[0], grant.SessionIDs[1]}, wantErr: modules.ErrSessionRevoked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := f.client.MarkSessionsActive(ctx, tc.ids); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			r, _ := f.store.GetSessionData(ctx, sessions.SearchParam{SessionID: grant.SessionIDs[0]})
			if r.Status != sessions.StatusPending {
				t.Fatalf("failed call activated %s", grant.SessionIDs[0])
			}
		})
	}
}

func TestSendSingleSessionTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	grant, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.client.SendSessionTransaction(ctx, modules.KindSingle, []account.Transaction{safeMintTx}, SendOptions{}); err != nil {
		t.Fatalf("SendSessionTransaction: %v", err)
	}
	op, hash := lastSent(t, f.bundler)
	module, sig := sessionSignature(t, op.Signature)
	if module != modules.DefaultSessionKeyManager {
		t.Fatalf("outer module = %s", module.Hex())
	}
	if got := recoverPersonal(t, hash, sig); got != grant.SessionKey {
		t.Fatalf("signature recovers to %s, want %s", got.Hex(), grant.SessionKey.Hex())
	}
	if op.CallGasLimit.Int64() != 120_000 || op.VerificationGasLimit.Int64() != 250_000 || op.PreVerificationGas.Int64() != 60_000 {
		t.Fatalf("gas not taken from the estimate: %v %v %v", op.CallGasLimit, op.VerificationGasLimit, op.PreVerificationGas)
	}
	est := f.bundler.Estimated()
	if len(est) != 1 {
		t.Fatalf("estimated %d ops", len(est))
	}
	if len(est[0].Signature) != len(op.Signature) {
		t.Fatalf("dummy signature length %d, real %d", len(est[0].Signature), len(op.Signature))
	}
}

func TestSendSponsoredSkippingEstimation(t *testing.T) {
	ctx := context.Background()
	pm := &accounttest.Paymaster{Data: common.FromHex("0x00000f79b7faf42eebadba19acc07cd08af44789")}
	f := newFixture(t, func(cfg *ClientConfig) { cfg.Paymaster = pm })
	if _, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{}); err != nil {
		t.Fatal(err)
	}
	_, err := f.client.SendSessionTransaction(ctx, modules.KindSingle, []account.Transaction{safeMintTx}, SendOptions{
		BuildUserOpOptions: account.BuildUserOpOptions{SponsorWithPaymaster: true, SkipBundlerGasEstimation: true},
	})
	if err != nil {
		t.Fatalf("SendSessionTransaction: %v", err)
	}
	op, _ := lastSent(t, f.bundler)
	if string(op.PaymasterAndData) != string(pm.Data) {
		t.Fatalf("paymasterAndData = %x", op.PaymasterAndData)
	}
	if op.CallGasLimit.Int64() != 100_000 {
		t.Fatalf("gas should be the account's, got %v", op.CallGasLimit)
	}
	if n := len(f.bundler.Estimated()); n != 0 {
		t.Fatalf("estimated %d ops, want none", n)
	}
}

func TestSendBatchedSessionTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	grant, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0), safeMintPolicy(1)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp, err := f.client.EnableBatchedRouter(ctx, account.BuildUserOpOptions{}); err != nil || resp == nil {
		t.Fatalf("EnableBatchedRouter = %v, %v", resp, err)
	}
	if resp, err := f.client.EnableBatchedRouter(ctx, account.BuildUserOpOptions{}); err != nil || resp != nil {
		t.Fatalf("second EnableBatchedRouter = %v, %v; want no-op", resp, err)
	}

	txs := []account.Transaction{safeMintTx, safeMintTx}
	if _, err := f.client.SendSessionTransaction(ctx, modules.KindBatched, txs, SendOptions{}); err != nil {
		t.Fatalf("SendSessionTransaction: %v", err)
	}
	op, hash := lastSent(t, f.bundler)
	inner, module, err := modules.Unwrap(op.Signature)
	if err != nil || module != modules.DefaultBatchedSessionRouter {
		t.Fatalf("outer module = %s, %v", module.Hex(), err)
	}
	vals, err := routerArgs.Unpack(inner)
	if err != nil {
		t.Fatalf("unpack router envelope: %v", err)
	}
	if vals[0].(common.Address) != modules.DefaultSessionKeyManager {
		t.Fatalf("session key manager = %v", vals[0])
	}
	if got := recoverPersonal(t, hash, vals[2].([]byte)); got != grant.SessionKey {
		t.Fatalf("router signature recovers to %s", got.Hex())
	}

	three := []account.Transaction{safeMintTx, safeMintTx, safeMintTx}
	var mismatch *BatchMismatchError
	if _, err := f.client.SendSessionTransaction(ctx, modules.KindBatched, three, SendOptions{}); !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want BatchMismatchError", err)
	}
	if _, err := f.client.SendSessionTransaction(ctx, modules.KindBatched, txs, SendOptions{LeafIndex: AtIndex(0)}); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("err = %v, want ErrBatchMismatch", err)
	}
	if _, err := f.client.SendSessionTransaction(ctx, modules.KindBatched, txs, SendOptions{LeafIndex: AtIndex(1, 0)}); err != nil {
		t.Fatalf("explicit indexes: %v", err)
	}
	if _, err := f.client.GetBatchSessionTxParams(ctx, nil, LastLeaf); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("empty batch err = %v", err)
	}
}

func TestSendWithoutSessions(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.client.SendSessionTransaction(context.Background(), modules.KindSingle, []account.Transaction{safeMintTx}, SendOptions{})
	if !errors.Is(err, ErrNoSessions) {
		t.Fatalf("err = %v, want ErrNoSessions", err)
	}
}

func TestRevokeSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	grant, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.client.MarkSessionsActive(ctx, grant.SessionIDs); err != nil {
		t.Fatalf("MarkSessionsActive: %v", err)
	}

	rev, err := f.client.RevokeSessions(ctx, grant.SessionIDs, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	if len(rev.TombstoneIDs) != 1 || rev.Root == grant.Root {
		t.Fatalf("revocation = %+v", rev)
	}
	sent := f.account.Sent()
	last := sent[len(sent)-1]
	if len(last) != 1 || string(last[0].Data) != string(account.EncodeSetMerkleRoot(rev.Root)) {
		t.Fatalf("revocation did not publish the new root")
	}

	p := &modules.Params{SessionParams: modules.SessionParams{SessionID: grant.SessionIDs[0]}}
	signer, err := f.store.GetSignerByKey(ctx, grant.SessionKey, testChain)
	if err != nil {
		t.Fatal(err)
	}
	p.Signer = signer
	if _, err := f.client.SendSessionTransaction(ctx, modules.KindSingle, []account.Transaction{safeMintTx}, SendOptions{Params: p}); !errors.Is(err, modules.ErrSessionRevoked) {
		t.Fatalf("err = %v, want ErrSessionRevoked", err)
	}
	if ids, _ := f.client.ResumeSession(ctx); len(ids) != 0 {
		t.Fatalf("ResumeSession = %v, want none", ids)
	}
	if err := f.client.MarkSessionsActive(ctx, grant.SessionIDs); !errors.Is(err, modules.ErrSessionRevoked) {
		t.Fatalf("MarkSessionsActive err = %v", err)
	}
}

func TestClearPendingSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.client.MarkSessionsActive(ctx, first.SessionIDs); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(9)}, account.BuildUserOpOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := f.client.ClearPendingSessions(ctx); err != nil {
		t.Fatalf("ClearPendingSessions: %v", err)
	}
	if root := f.client.SessionKeyManager().Ledger().Root(); root != first.Root {
		t.Fatalf("root = %s, want %s", root.Hex(), first.Root.Hex())
	}
	if ids, _ := f.client.ResumeSession(ctx); len(ids) != 1 || ids[0] != first.SessionIDs[0] {
		t.Fatalf("ResumeSession = %v", ids)
	}
}

func TestDistributedSession(t *testing.T) {
	ctx := context.Background()
	network := dantest.NewNetwork()
	defer network.Close()
	f := newFixture(t, func(cfg *ClientConfig) { cfg.DAN = dan.New(network.URL()) })

	owner, err := dan.NewKeyWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatal(err)
	}
	grant, err := f.client.CreateSessionWithDistributedKey(ctx, []permission.Policy{safeMintPolicy(0)}, owner, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatalf("CreateSessionWithDistributedKey: %v", err)
	}
	rec, err := f.store.GetSessionData(ctx, sessions.SearchParam{SessionID: grant.SessionIDs[0]})
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsDistributed() || rec.DanModuleInfo.ChainID != testChain || rec.DanModuleInfo.EOAAddress != owner.Address() {
		t.Fatalf("record dan info = %+v", rec.DanModuleInfo)
	}
	if rec.SessionPublicKey != grant.SessionKey {
		t.Fatalf("session key = %s, want %s", rec.SessionPublicKey.Hex(), grant.SessionKey.Hex())
	}

	if _, err := f.client.SendSessionTransaction(ctx, modules.KindDistributed, []account.Transaction{safeMintTx}, SendOptions{}); err != nil {
		t.Fatalf("SendSessionTransaction: %v", err)
	}
	op, hash := lastSent(t, f.bundler)
	module, sig := sessionSignature(t, op.Signature)
	if module != modules.DefaultSessionKeyManager {
		t.Fatalf("outer module = %s", module.Hex())
	}
	if got := recoverPersonal(t, hash, sig); got != grant.SessionKey {
		t.Fatalf("signature recovers to %s, want %s", got.Hex(), grant.SessionKey.Hex())
	}
	if network.SignCalls() != 1 {
		t.Fatalf("sign calls = %d", network.SignCalls())
	}

	// Local kinds refuse the distributed session.
	if _, err := f.client.GetSingleSessionTxParams(ctx, LastLeaf); err == nil {
		t.Fatal("expected the single-session resolver to reject a distributed session")
	}
}

func TestDistributedSessionOtherChain(t *testing.T) {
	ctx := context.Background()
	network := dantest.NewNetwork()
	defer network.Close()
	withDAN := func(cfg *ClientConfig) { cfg.DAN = dan.New(network.URL()) }
	f := newFixture(t, withDAN)

	owner, err := dan.NewKeyWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.CreateSessionWithDistributedKey(ctx, []permission.Policy{safeMintPolicy(0)}, owner, account.BuildUserOpOptions{}); err != nil {
		t.Fatal(err)
	}

	other := newFixtureOn(t, f.client.Address(), f.store, 137, withDAN)
	_, err = other.client.SendSessionTransaction(ctx, modules.KindDistributed, []account.Transaction{safeMintTx}, SendOptions{})
	var mismatch *ChainMismatchError
	if !errors.As(err, &mismatch) || mismatch.SessionChain != testChain || mismatch.TargetChain != 137 {
		t.Fatalf("err = %v, want ChainMismatchError", err)
	}
	if !errors.Is(err, ErrChainMismatch) {
		t.Fatalf("err = %v does not match ErrChainMismatch", err)
	}
	if network.SignCalls() != 0 {
		t.Fatalf("network was asked to sign %d times", network.SignCalls())
	}
}

func TestDistributedRequiresNetworkAndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	owner, _ := dan.NewKeyWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if _, err := f.client.CreateSessionWithDistributedKey(ctx, []permission.Policy{safeMintPolicy(0)}, owner, account.BuildUserOpOptions{}); !errors.Is(err, ErrDistributedUnavailable) {
		t.Fatalf("err = %v, want ErrDistributedUnavailable", err)
	}

	if _, err := f.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.GetDanSessionTxParams(ctx, LastLeaf); !errors.Is(err, modules.ErrNotDistributed) {
		t.Fatalf("err = %v, want ErrNotDistributed", err)
	}
}

func TestDistributedExpiredInterval(t *testing.T) {
	network := dantest.NewNetwork()
	defer network.Close()
	f := newFixture(t, func(cfg *ClientConfig) { cfg.DAN = dan.New(network.URL()) })
	owner, _ := dan.NewKeyWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	p := safeMintPolicy(0)
	p.Interval = &permission.Interval{ValidUntil: uint64(time.Now().Add(-time.Hour).Unix())}
	if _, err := f.client.CreateSessionWithDistributedKey(context.Background(), []permission.Policy{p}, owner, account.BuildUserOpOptions{}); err == nil {
		t.Fatal("expected error for a validUntil in the past")
	}
	if network.KeyGenCalls() != 0 {
		t.Fatalf("keygen calls = %d", network.KeyGenCalls())
	}
}

func TestLeafIndexResolve(t *testing.T) {
	live := make([]sessions.Record, 3)
	for i := range live {
		live[i] = sessions.Record{SessionID: string(rune('a' + i))}
	}
	ids := func(rs []sessions.Record) string {
		var s string
		for _, r := range rs {
			s += r.SessionID
		}
		return s
	}

	tests := []struct {
		name    string
		idx     LeafIndex
		live    []sessions.Record
		n       int
		want    string
		wantErr error
	}{
		{"last single", LastLeaf, live, 1, "c", nil},
		{"last batch", LastLeaf, live, 2, "bc", nil},
		{"last batch too large", LastLeaf, live, 4, "", ErrBatchMismatch},
		{"explicit", AtIndex(0), live, 1, "a", nil},
		{"explicit batch", AtIndex(2, 0), live, 2, "ca", nil},
		{"explicit count mismatch", AtIndex(0), live, 2, "", ErrBatchMismatch},
		{"out of range", AtIndex(3), live, 1, "", ErrLeafIndex},
		{"negative", AtIndex(-1), live, 1, "", ErrLeafIndex},
		{"empty store", LastLeaf, nil, 1, "", ErrNoSessions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.idx.resolve(tt.live, tt.n)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if ids(got) != tt.want {
				t.Fatalf("got %q, want %q", ids(got), tt.want)
			}
		})
	}
	if !LastLeaf.IsLast() || AtIndex(0).IsLast() {
		t.Fatal("IsLast")
	}
}

func TestWatchFollowsOtherClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer := newFixture(t, nil)
	reader := newFixtureOn(t, writer.client.Address(), writer.store, testChain, nil)

	done := make(chan error, 1)
	go func() { done <- reader.client.Watch(ctx) }()

	grant, err := writer.client.CreateSession(ctx, []permission.Policy{safeMintPolicy(0)}, account.BuildUserOpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for reader.client.SessionKeyManager().Ledger().Root() != grant.Root {
		if time.Now().After(deadline) {
			t.Fatalf("reader root = %s, want %s", reader.client.SessionKeyManager().Ledger().Root().Hex(), grant.Root.Hex())
		}
		// Re-notify in case the watcher subscribed after the grant.
		if err := writer.store.SetMerkleRoot(ctx, grant.Root); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
