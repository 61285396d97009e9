package sessions

import (
	"fmt"
	"strings"

	"github.com/blockchain-hcj/biconomy-client-sdk/permission"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Status is the lifecycle state of a session leaf.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// DanModuleInfo is the handle to a distributed (threshold) session key. The
// ephemeral secret authenticates signing requests and is never the session key
// itself.
type DanModuleInfo struct {
	MPCKeyID string `json:"mpcKeyId"`
	// EphemeralSecret is the ephemeral Ed25519 private key as a JSON Web Key.
	EphemeralSecret string         `json:"ephSK"`
	PartiesNumber   int            `json:"partiesNumber"`
	Threshold       int            `json:"threshold"`
	EOAAddress      common.Address `json:"eoaAddress"`
	ChainID         uint64         `json:"chainId"`
}

// Validate checks that the info can drive a signing request.
func (d *DanModuleInfo) Validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("sessions: missing dan module info")
	case d.MPCKeyID == "":
		return fmt.Errorf("sessions: dan module info: missing mpc key id")
	case d.EphemeralSecret == "":
		return fmt.Errorf("sessions: dan module info: missing ephemeral secret")
	case d.Threshold <= 0 || d.PartiesNumber < d.Threshold:
		return fmt.Errorf("sessions: dan module info: invalid quorum %d of %d", d.Threshold, d.PartiesNumber)
	case d.EOAAddress == (common.Address{}):
		return fmt.Errorf("sessions: dan module info: missing eoa address")
	case d.ChainID == 0:
		return fmt.Errorf("sessions: dan module info: missing chain id")
	}
	return nil
}

// Record is one session leaf as stored for an account. Only ValidUntil,
// ValidAfter, SessionValidationModule and SessionKeyData contribute to the
// leaf hash.
type Record struct {
	ValidUntil              uint64         `json:"validUntil"`
	ValidAfter              uint64         `json:"validAfter"`
	SessionValidationModule common.Address `json:"sessionValidationModule"`
	SessionKeyData          hexutil.Bytes  `json:"sessionKeyData"`
	SessionPublicKey        common.Address `json:"sessionPublicKey"`
	SessionID               string         `json:"sessionID"`
	Status                  Status         `json:"status"`
	DanModuleInfo           *DanModuleInfo `json:"danModuleInfo,omitempty"`

	// Tombstone marks a record appended by RevokeSessions. Revokes holds the
	// session ID it revokes.
	Tombstone bool   `json:"tombstone,omitempty"`
	Revokes   string `json:"revokes,omitempty"`
}

// NewRecord builds a PENDING record from a compiled datum.
func NewRecord(d permission.Datum) Record {
	return Record{
		ValidUntil:              d.ValidUntil,
		ValidAfter:              d.ValidAfter,
		SessionValidationModule: d.SessionValidationModule,
		SessionKeyData:          append(hexutil.Bytes(nil), d.SessionKeyData...),
		SessionPublicKey:        d.SessionPublicKey,
		SessionID:               d.PreferredSessionID,
		Status:                  StatusPending,
	}
}

// Leaf returns the hashed portion of the record.
func (r Record) Leaf() permission.Leaf {
	return permission.Leaf{
		ValidUntil:              r.ValidUntil,
		ValidAfter:              r.ValidAfter,
		SessionValidationModule: r.SessionValidationModule,
		SessionKeyData:          r.SessionKeyData,
	}
}

// LeafHash is the Merkle leaf of the record.
func (r Record) LeafHash() (common.Hash, error) { return permission.LeafHash(r.Leaf()) }

// IsDistributed reports whether the record's key is held by the threshold network.
func (r Record) IsDistributed() bool { return r.DanModuleInfo != nil }

func (r Record) clone() Record {
	r.SessionKeyData = append(hexutil.Bytes(nil), r.SessionKeyData...)
	if r.DanModuleInfo != nil {
		info := *r.DanModuleInfo
		r.DanModuleInfo = &info
	}
	return r
}

// SearchParam selects records. Zero fields are ignored; set fields are ANDed.
type SearchParam struct {
	SessionID               string
	SessionPublicKey        common.Address
	SessionValidationModule common.Address
	Status                  Status
}

// IsEmpty reports whether no criterion is set.
func (p SearchParam) IsEmpty() bool { return p == SearchParam{} }

func (p SearchParam) String() string {
	var parts []string
	if p.SessionID != "" {
		parts = append(parts, "sessionID="+p.SessionID)
	}
	if p.SessionPublicKey != (common.Address{}) {
		parts = append(parts, "sessionPublicKey="+p.SessionPublicKey.Hex())
	}
	if p.SessionValidationModule != (common.Address{}) {
		parts = append(parts, "sessionValidationModule="+p.SessionValidationModule.Hex())
	}
	if p.Status != "" {
		parts = append(parts, "status="+string(p.Status))
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// SignerData is a locally held session key.
type SignerData struct {
	PrivateKey hexutil.Bytes  `json:"pvKey"`
	PublicKey  common.Address `json:"pbKey"`
	ChainID    uint64         `json:"chainId"`
}
