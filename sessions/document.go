package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Document is the persisted state of one account. Backends treat it as an
// opaque JSON value.
type Document struct {
	Leaves     []Record     `json:"leafNodes"`
	Signers    []SignerData `json:"signers"`
	MerkleRoot common.Hash  `json:"merkleRoot"`
}

// DecodeDocument parses a stored document. Empty input yields an empty document.
func DecodeDocument(b []byte) (*Document, error) {
	doc := &Document{}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("sessions: decode document: %w", err)
	}
	return doc, nil
}

// Encode serializes the document for storage.
func (d *Document) Encode() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("sessions: encode document: %w", err)
	}
	return b, nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{MerkleRoot: d.MerkleRoot}
	if d.Leaves != nil {
		out.Leaves = make([]Record, len(d.Leaves))
		for i, r := range d.Leaves {
			out.Leaves[i] = r.clone()
		}
	}
	if d.Signers != nil {
		out.Signers = make([]SignerData, len(d.Signers))
		for i, s := range d.Signers {
			s.PrivateKey = append([]byte(nil), s.PrivateKey...)
			out.Signers[i] = s
		}
	}
	return out
}

func (d *Document) hasSessionID(id string) bool {
	for _, r := range d.Leaves {
		if r.SessionID == id {
			return true
		}
	}
	return false
}

// applyRoot sets MerkleRoot to root of the current leaves. A nil root leaves
// it unchanged.
func (d *Document) applyRoot(root RootFunc) error {
	if root == nil {
		return nil
	}
	leaves := make([]Record, len(d.Leaves))
	for i, r := range d.Leaves {
		leaves[i] = r.clone()
	}
	h, err := root(leaves)
	if err != nil {
		return fmt.Errorf("sessions: compute merkle root: %w", err)
	}
	d.MerkleRoot = h
	return nil
}

func (d *Document) signer(key common.Address) (SignerData, bool) {
	for _, s := range d.Signers {
		if s.PublicKey == key {
			return s, true
		}
	}
	return SignerData{}, false
}

func (d *Document) putSigner(data SignerData) {
	for i, s := range d.Signers {
		if s.PublicKey == data.PublicKey {
			d.Signers[i] = data
			return
		}
	}
	d.Signers = append(d.Signers, data)
}
