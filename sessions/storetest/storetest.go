package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blockchain-hcj/biconomy-client-sdk/permission"
	"github.com/blockchain-hcj/biconomy-client-sdk/sessions"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// StoreFactory creates a new Store for account. Each call within a test gets a
// fresh account, so backends sharing a server stay isolated between tests.
type StoreFactory func(t *testing.T, account common.Address) sessions.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Leaves_AddAndGet", func(t *testing.T) { testAddAndGet(t, factory) })
	t.Run("Leaves_EmptyIDIsAssigned", func(t *testing.T) { testEmptyIDAssigned(t, factory) })
	t.Run("Leaves_DuplicateIDRejected", func(t *testing.T) { testDuplicateID(t, factory) })
	t.Run("Leaves_ConcurrentAdds", func(t *testing.T) { testConcurrentAdds(t, factory) })
	t.Run("Leaves_BatchAllOrNothing", func(t *testing.T) { testBatchAllOrNothing(t, factory) })
	t.Run("Leaves_BatchWritesRoot", func(t *testing.T) { testBatchWritesRoot(t, factory) })

	t.Run("Search_EmptyParamRejected", func(t *testing.T) { testEmptySearch(t, factory) })
	t.Run("Search_CriteriaAreANDed", func(t *testing.T) { testSearchAND(t, factory) })
	t.Run("Search_UnknownIDNotFound", func(t *testing.T) { testUnknownID(t, factory) })
	t.Run("Search_MostRecentMatchWins", func(t *testing.T) { testMostRecentWins(t, factory) })

	t.Run("Status_Update", func(t *testing.T) { testStatusUpdate(t, factory) })
	t.Run("Status_InvalidRejected", func(t *testing.T) { testInvalidStatus(t, factory) })
	t.Run("Status_RevokedNotSettable", func(t *testing.T) { testRevokedNotSettable(t, factory) })
	t.Run("Status_BatchAllOrNothing", func(t *testing.T) { testStatusBatch(t, factory) })
	t.Run("Status_ClearPending", func(t *testing.T) { testClearPending(t, factory) })

	t.Run("Revoke_AppendsTombstones", func(t *testing.T) { testRevokeAppendsTombstones(t, factory) })
	t.Run("Revoke_UnknownIDWritesNothing", func(t *testing.T) { testRevokeUnknown(t, factory) })
	t.Run("Revoke_Idempotent", func(t *testing.T) { testRevokeIdempotent(t, factory) })
	t.Run("Revoke_WritesRoot", func(t *testing.T) { testRevokeWritesRoot(t, factory) })

	t.Run("Root_SetAndGet", func(t *testing.T) { testRoot(t, factory) })

	t.Run("Signers_GenerateAndLookup", func(t *testing.T) { testGenerateSigner(t, factory) })
	t.Run("Signers_Import", func(t *testing.T) { testImportSigner(t, factory) })
	t.Run("Signers_BySession", func(t *testing.T) { testSignerBySession(t, factory) })
	t.Run("Signers_NotFound", func(t *testing.T) { testSignerNotFound(t, factory) })

	t.Run("Accounts_Isolated", func(t *testing.T) { testAccountIsolation(t, factory) })
	t.Run("Changes_SignalledOnMutation", func(t *testing.T) { testChanges(t, factory) })
}

// NewAccount returns a random account address.
func NewAccount() common.Address {
	id := uuid.New()
	return common.BytesToAddress(id[:])
}

func open(t *testing.T, factory StoreFactory) sessions.Store {
	t.Helper()
	s := factory(t, NewAccount())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// record builds a PENDING record whose leaf hash depends on seed.
func record(seed uint64, key common.Address) sessions.Record {
	return sessions.Record{
		ValidUntil:              0,
		ValidAfter:              seed,
		SessionValidationModule: permission.DefaultABISessionValidationModule,
		SessionKeyData:          append(key.Bytes(), byte(seed)),
		SessionPublicKey:        key,
		Status:                  sessions.StatusPending,
	}
}

func mustAdd(t *testing.T, ctx context.Context, s sessions.Store, r sessions.Record) sessions.Record {
	t.Helper()
	out, err := s.AddSessionData(ctx, r)
	if err != nil {
		t.Fatalf("AddSessionData: %v", err)
	}
	return out
}

var (
	keyA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	keyB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	svmB = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func testAddAndGet(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	in := record(1, keyA)
	in.SessionID = "sess-1"
	in.DanModuleInfo = &sessions.DanModuleInfo{MPCKeyID: "k1", EphemeralSecret: "{}", PartiesNumber: 5, Threshold: 3, EOAAddress: keyB, ChainID: 80001}
	mustAdd(t, ctx, s, in)

	got, err := s.GetSessionData(ctx, sessions.SearchParam{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("GetSessionData: %v", err)
	}
	if got.SessionPublicKey != keyA || got.Status != sessions.StatusPending || got.ValidAfter != 1 {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.DanModuleInfo == nil || got.DanModuleInfo.MPCKeyID != "k1" || got.DanModuleInfo.ChainID != 80001 {
		t.Fatalf("dan module info not round-tripped: %+v", got.DanModuleInfo)
	}
	want, _ := in.LeafHash()
	have, _ := got.LeafHash()
	if want != have {
		t.Fatalf("leaf hash changed through the store")
	}
	if s.AccountAddress() == (common.Address{}) {
		t.Fatalf("store has no account address")
	}
}

func testEmptyIDAssigned(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	a := mustAdd(t, ctx, s, record(1, keyA))
	b := mustAdd(t, ctx, s, record(2, keyA))
	if a.SessionID == "" || b.SessionID == "" || a.SessionID == b.SessionID {
		t.Fatalf("expected distinct generated ids, got %q and %q", a.SessionID, b.SessionID)
	}
}

func testDuplicateID(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	r := record(1, keyA)
	r.SessionID = "dup"
	mustAdd(t, ctx, s, r)
	if _, err := s.AddSessionData(ctx, r); !errors.Is(err, sessions.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	all, _ := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if len(all) != 1 {
		t.Fatalf("expected 1 record, got %d", len(all))
	}
}

func testConcurrentAdds(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := record(uint64(i), keyA)
			r.SessionID = fmt.Sprintf("c-%d", i)
			if _, err := s.AddSessionData(ctx, r); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add: %v", err)
	}
	all, err := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if err != nil {
		t.Fatalf("GetAllSessionData: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d records, got %d", n, len(all))
	}
}

// rootOfLeaves is a RootFunc that commits to every leaf hash in order.
func rootOfLeaves(leaves []sessions.Record) (common.Hash, error) {
	var buf []byte
	for _, r := range leaves {
		h, err := r.LeafHash()
		if err != nil {
			return common.Hash{}, err
		}
		buf = append(buf, h.Bytes()...)
	}
	return crypto.Keccak256Hash(buf), nil
}

func assertRootCoversLeaves(t *testing.T, ctx context.Context, s sessions.Store) {
	t.Helper()
	all, err := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if err != nil {
		t.Fatalf("GetAllSessionData: %v", err)
	}
	want, _ := rootOfLeaves(all)
	if got, _ := s.GetMerkleRoot(ctx); got != want {
		t.Fatalf("stored root %s does not cover the %d stored leaves (%s)", got, len(all), want)
	}
}

func testBatchAllOrNothing(t *testing.T, factory StoreFactory) {
	cases := []struct {
		name    string
		batch   func(existing string) []sessions.Record
		root    sessions.RootFunc
		wantErr error
	}{
		{
			name: "duplicate of stored id",
			batch: func(existing string) []sessions.Record {
				a, b := record(2, keyA), record(3, keyA)
				a.SessionID, b.SessionID = "new", existing
				return []sessions.Record{a, b}
			},
			wantErr: sessions.ErrDuplicateSession,
		},
		{
			name: "duplicate within batch",
			batch: func(string) []sessions.Record {
				a, b := record(2, keyA), record(3, keyA)
				a.SessionID, b.SessionID = "twin", "twin"
				return []sessions.Record{a, b}
			},
			wantErr: sessions.ErrDuplicateSession,
		},
		{
			name: "invalid status",
			batch: func(string) []sessions.Record {
				bad := record(3, keyA)
				bad.Status = "BOGUS"
				return []sessions.Record{record(2, keyA), bad}
			},
			wantErr: sessions.ErrInvalidStatus,
		},
		{
			name:  "root failure",
			batch: func(string) []sessions.Record { return []sessions.Record{record(2, keyA)} },
			root: func([]sessions.Record) (common.Hash, error) {
				return common.Hash{}, errRoot
			},
			wantErr: errRoot,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t, factory)
			ctx := testCtx(t)
			existing := mustAdd(t, ctx, s, record(1, keyA))
			if err := s.SetMerkleRoot(ctx, common.HexToHash("0x01")); err != nil {
				t.Fatalf("SetMerkleRoot: %v", err)
			}

			if _, err := s.AddSessionDataBatch(ctx, tc.batch(existing.SessionID), tc.root); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			all, _ := s.GetAllSessionData(ctx, sessions.SearchParam{})
			if len(all) != 1 || all[0].SessionID != existing.SessionID {
				t.Fatalf("failed batch wrote records: %+v", all)
			}
			if got, _ := s.GetMerkleRoot(ctx); got != common.HexToHash("0x01") {
				t.Fatalf("failed batch wrote root %s", got)
			}
		})
	}
}

var errRoot = errors.New("root computation failed")

func testBatchWritesRoot(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	mustAdd(t, ctx, s, record(1, keyA))
	out, err := s.AddSessionDataBatch(ctx, []sessions.Record{record(2, keyA), record(3, keyB)}, rootOfLeaves)
	if err != nil {
		t.Fatalf("AddSessionDataBatch: %v", err)
	}
	if len(out) != 2 || out[0].SessionID == "" || out[0].SessionID == out[1].SessionID {
		t.Fatalf("unexpected stored batch %+v", out)
	}
	assertRootCoversLeaves(t, ctx, s)

	if err := s.SetMerkleRoot(ctx, common.HexToHash("0x02")); err != nil {
		t.Fatalf("SetMerkleRoot: %v", err)
	}
	if _, err := s.AddSessionDataBatch(ctx, nil, rootOfLeaves); err != nil {
		t.Fatalf("empty AddSessionDataBatch: %v", err)
	}
	assertRootCoversLeaves(t, ctx, s)
}

func testEmptySearch(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)
	mustAdd(t, ctx, s, record(1, keyA))

	if _, err := s.GetSessionData(ctx, sessions.SearchParam{}); !errors.Is(err, sessions.ErrInvalidSearch) {
		t.Fatalf("expected ErrInvalidSearch, got %v", err)
	}
	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{}, sessions.StatusActive); !errors.Is(err, sessions.ErrInvalidSearch) {
		t.Fatalf("expected ErrInvalidSearch from update, got %v", err)
	}
}

func testSearchAND(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	a := mustAdd(t, ctx, s, record(1, keyA))
	b := record(2, keyA)
	b.SessionValidationModule = svmB
	b = mustAdd(t, ctx, s, b)
	mustAdd(t, ctx, s, record(3, keyB))

	got, err := s.GetSessionData(ctx, sessions.SearchParam{SessionPublicKey: keyA, SessionValidationModule: permission.DefaultABISessionValidationModule})
	if err != nil {
		t.Fatalf("GetSessionData: %v", err)
	}
	if got.SessionID != a.SessionID {
		t.Fatalf("expected %s, got %s", a.SessionID, got.SessionID)
	}

	all, err := s.GetAllSessionData(ctx, sessions.SearchParam{SessionPublicKey: keyA})
	if err != nil {
		t.Fatalf("GetAllSessionData: %v", err)
	}
	if len(all) != 2 || all[0].SessionID != a.SessionID || all[1].SessionID != b.SessionID {
		t.Fatalf("unexpected matches %+v", all)
	}

	none, _ := s.GetAllSessionData(ctx, sessions.SearchParam{SessionPublicKey: keyB, SessionValidationModule: svmB})
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %d", len(none))
	}
}

func testUnknownID(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)
	mustAdd(t, ctx, s, record(1, keyA))

	_, err := s.GetSessionData(ctx, sessions.SearchParam{SessionID: "missing"})
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	var nf *sessions.SessionNotFoundError
	if !errors.As(err, &nf) || nf.Param.SessionID != "missing" {
		t.Fatalf("expected SessionNotFoundError, got %T", err)
	}
}

func testMostRecentWins(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	mustAdd(t, ctx, s, record(1, keyA))
	second := mustAdd(t, ctx, s, record(2, keyA))

	got, err := s.GetSessionData(ctx, sessions.SearchParam{SessionPublicKey: keyA})
	if err != nil {
		t.Fatalf("GetSessionData: %v", err)
	}
	if got.SessionID != second.SessionID {
		t.Fatalf("expected most recent record %s, got %s", second.SessionID, got.SessionID)
	}
}

func testStatusUpdate(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)
	r := mustAdd(t, ctx, s, record(1, keyA))

	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{SessionID: r.SessionID}, sessions.StatusActive); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	got, _ := s.GetSessionData(ctx, sessions.SearchParam{SessionID: r.SessionID})
	if got.Status != sessions.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", got.Status)
	}
	active, _ := s.GetAllSessionData(ctx, sessions.SearchParam{Status: sessions.StatusActive})
	if len(active) != 1 {
		t.Fatalf("expected 1 active record, got %d", len(active))
	}
	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{SessionID: "missing"}, sessions.StatusActive); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testInvalidStatus(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)
	r := mustAdd(t, ctx, s, record(1, keyA))

	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{SessionID: r.SessionID}, "BOGUS"); !errors.Is(err, sessions.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	bad := record(2, keyA)
	bad.Status = "BOGUS"
	if _, err := s.AddSessionData(ctx, bad); !errors.Is(err, sessions.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on add, got %v", err)
	}
}

func testRevokedNotSettable(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)
	r := mustAdd(t, ctx, s, record(1, keyA))

	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{SessionID: r.SessionID}, sessions.StatusRevoked); !errors.Is(err, sessions.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	got, _ := s.GetSessionData(ctx, sessions.SearchParam{SessionID: r.SessionID})
	if got.Status != sessions.StatusPending {
		t.Fatalf("status changed to %s", got.Status)
	}

	if _, err := s.RevokeSessions(ctx, []string{r.SessionID}, nil); err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{SessionID: r.SessionID}, sessions.StatusActive); !errors.Is(err, sessions.ErrInvalidStatus) {
		t.Fatalf("expected revoked session to keep its status, got %v", err)
	}
}

func testStatusBatch(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)
	a := mustAdd(t, ctx, s, record(1, keyA))
	b := mustAdd(t, ctx, s, record(2, keyA))

	cases := []struct {
		name    string
		ids     []string
		status  sessions.Status
		wantErr error
	}{
		{name: "unknown id", ids: []string{a.SessionID, "missing"}, status: sessions.StatusActive, wantErr: sessions.ErrSessionNotFound},
		{name: "empty id", ids: []string{a.SessionID, ""}, status: sessions.StatusActive, wantErr: sessions.ErrInvalidSearch},
		{name: "revoked", ids: []string{a.SessionID, b.SessionID}, status: sessions.StatusRevoked, wantErr: sessions.ErrInvalidStatus},
		{name: "unknown status", ids: []string{a.SessionID}, status: "BOGUS", wantErr: sessions.ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.UpdateSessionStatuses(ctx, tc.ids, tc.status); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			pending, _ := s.GetAllSessionData(ctx, sessions.SearchParam{Status: sessions.StatusPending})
			if len(pending) != 2 {
				t.Fatalf("failed update wrote statuses, %d pending", len(pending))
			}
		})
	}

	if err := s.UpdateSessionStatuses(ctx, []string{a.SessionID, b.SessionID}, sessions.StatusActive); err != nil {
		t.Fatalf("UpdateSessionStatuses: %v", err)
	}
	active, _ := s.GetAllSessionData(ctx, sessions.SearchParam{Status: sessions.StatusActive})
	if len(active) != 2 {
		t.Fatalf("expected 2 active records, got %d", len(active))
	}
}

func testClearPending(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	mustAdd(t, ctx, s, record(1, keyA))
	active := mustAdd(t, ctx, s, record(2, keyA))
	if err := s.UpdateSessionStatus(ctx, sessions.SearchParam{SessionID: active.SessionID}, sessions.StatusActive); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	mustAdd(t, ctx, s, record(3, keyA))

	if err := s.ClearPendingSessions(ctx, nil); err != nil {
		t.Fatalf("ClearPendingSessions: %v", err)
	}
	all, _ := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if len(all) != 1 || all[0].SessionID != active.SessionID {
		t.Fatalf("expected only the active record to remain, got %+v", all)
	}
}

func testRevokeAppendsTombstones(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	r := mustAdd(t, ctx, s, record(1, keyA))
	other := mustAdd(t, ctx, s, record(2, keyA))

	tombs, err := s.RevokeSessions(ctx, []string{r.SessionID}, nil)
	if err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	if len(tombs) != 1 {
		t.Fatalf("expected 1 tombstone, got %d", len(tombs))
	}
	tomb := tombs[0]
	if !tomb.Tombstone || tomb.Revokes != r.SessionID || tomb.Status != sessions.StatusRevoked || tomb.SessionID == r.SessionID {
		t.Fatalf("unexpected tombstone %+v", tomb)
	}
	h1, _ := r.LeafHash()
	h2, _ := tomb.LeafHash()
	if h1 != h2 {
		t.Fatalf("tombstone must carry the same permission content")
	}

	got, err := s.GetSessionData(ctx, sessions.SearchParam{SessionID: r.SessionID})
	if err != nil {
		t.Fatalf("GetSessionData: %v", err)
	}
	if got.Status != sessions.StatusRevoked {
		t.Fatalf("expected REVOKED, got %s", got.Status)
	}
	if _, err := s.GetSessionData(ctx, sessions.SearchParam{SessionID: tomb.SessionID}); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("tombstones must be invisible to GetSessionData, got %v", err)
	}

	all, _ := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if len(all) != 3 {
		t.Fatalf("expected 3 records after revocation, got %d", len(all))
	}
	untouched, _ := s.GetSessionData(ctx, sessions.SearchParam{SessionID: other.SessionID})
	if untouched.Status != sessions.StatusPending {
		t.Fatalf("revocation touched another session: %s", untouched.Status)
	}
}

func testRevokeUnknown(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	r := mustAdd(t, ctx, s, record(1, keyA))
	if _, err := s.RevokeSessions(ctx, []string{r.SessionID, "missing"}, nil); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	got, _ := s.GetSessionData(ctx, sessions.SearchParam{SessionID: r.SessionID})
	if got.Status != sessions.StatusPending {
		t.Fatalf("failed revocation must not write, status %s", got.Status)
	}
	all, _ := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if len(all) != 1 {
		t.Fatalf("failed revocation must not append, got %d records", len(all))
	}
}

func testRevokeIdempotent(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	r := mustAdd(t, ctx, s, record(1, keyA))
	if _, err := s.RevokeSessions(ctx, []string{r.SessionID}, nil); err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	again, err := s.RevokeSessions(ctx, []string{r.SessionID}, nil)
	if err != nil {
		t.Fatalf("second RevokeSessions: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new tombstones, got %d", len(again))
	}
}

func testRevokeWritesRoot(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	r := mustAdd(t, ctx, s, record(1, keyA))
	mustAdd(t, ctx, s, record(2, keyA))
	if _, err := s.RevokeSessions(ctx, []string{r.SessionID}, rootOfLeaves); err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	assertRootCoversLeaves(t, ctx, s)

	if err := s.ClearPendingSessions(ctx, rootOfLeaves); err != nil {
		t.Fatalf("ClearPendingSessions: %v", err)
	}
	assertRootCoversLeaves(t, ctx, s)
	all, _ := s.GetAllSessionData(ctx, sessions.SearchParam{})
	if len(all) != 2 {
		t.Fatalf("expected the revoked record and its tombstone to remain, got %d", len(all))
	}
}

func testRoot(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	root, err := s.GetMerkleRoot(ctx)
	if err != nil {
		t.Fatalf("GetMerkleRoot: %v", err)
	}
	if root != (common.Hash{}) {
		t.Fatalf("expected zero root for a new account, got %s", root)
	}
	want := crypto.Keccak256Hash([]byte("root"))
	if err := s.SetMerkleRoot(ctx, want); err != nil {
		t.Fatalf("SetMerkleRoot: %v", err)
	}
	if got, _ := s.GetMerkleRoot(ctx); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func verifySigner(t *testing.T, ctx context.Context, signer sessions.Signer) {
	t.Helper()
	msg := crypto.Keccak256([]byte("user op hash"))
	sig, err := signer.SignMessage(ctx, msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape %x", sig)
	}
	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != signer.Address() {
		t.Fatalf("signature does not recover to the signer")
	}
}

func testGenerateSigner(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	signer, err := s.AddSigner(ctx, nil, 80001)
	if err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	got, err := s.GetSignerByKey(ctx, signer.Address(), 80001)
	if err != nil {
		t.Fatalf("GetSignerByKey: %v", err)
	}
	if got.Address() != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address(), got.Address())
	}
	verifySigner(t, ctx, got)
}

func testImportSigner(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)
	signer, err := s.AddSigner(ctx, &sessions.SignerData{PrivateKey: crypto.FromECDSA(key)}, 137)
	if err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	if signer.Address() != addr {
		t.Fatalf("expected %s, got %s", addr, signer.Address())
	}
	if _, err := s.AddSigner(ctx, &sessions.SignerData{PrivateKey: crypto.FromECDSA(key), PublicKey: keyA}, 137); err == nil {
		t.Fatalf("expected mismatched public key to be rejected")
	}
}

func testSignerBySession(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	signer, err := s.AddSigner(ctx, nil, 1)
	if err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	r := mustAdd(t, ctx, s, record(1, signer.Address()))
	got, err := s.GetSignerBySession(ctx, sessions.SearchParam{SessionID: r.SessionID}, 1)
	if err != nil {
		t.Fatalf("GetSignerBySession: %v", err)
	}
	if got.Address() != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address(), got.Address())
	}
	if _, err := s.GetSignerBySession(ctx, sessions.SearchParam{SessionID: "missing"}, 1); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testSignerNotFound(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	if _, err := s.GetSignerByKey(ctx, keyB, 1); !errors.Is(err, sessions.ErrSignerNotFound) {
		t.Fatalf("expected ErrSignerNotFound, got %v", err)
	}
	signer, _ := s.AddSigner(ctx, nil, 1)
	if _, err := s.GetSignerByKey(ctx, signer.Address(), 5); !errors.Is(err, sessions.ErrSignerNotFound) {
		t.Fatalf("expected ErrSignerNotFound for another chain, got %v", err)
	}
}

func testAccountIsolation(t *testing.T, factory StoreFactory) {
	a := open(t, factory)
	b := open(t, factory)
	ctx := testCtx(t)

	mustAdd(t, ctx, a, record(1, keyA))
	if err := a.SetMerkleRoot(ctx, common.HexToHash("0x01")); err != nil {
		t.Fatalf("SetMerkleRoot: %v", err)
	}
	all, _ := b.GetAllSessionData(ctx, sessions.SearchParam{})
	if len(all) != 0 {
		t.Fatalf("records leaked between accounts")
	}
	if root, _ := b.GetMerkleRoot(ctx); root != (common.Hash{}) {
		t.Fatalf("root leaked between accounts")
	}
}

func testChanges(t *testing.T, factory StoreFactory) {
	s := open(t, factory)
	ctx := testCtx(t)

	ch := s.Changes()
	mustAdd(t, ctx, s, record(1, keyA))

	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatalf("changes channel closed before Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification after mutation")
	}
}
