package permission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultABISessionValidationModule is the ABI session validation module that
// decodes the layout produced by EncodeSessionKeyData.
var DefaultABISessionValidationModule = common.HexToAddress("0x000006bC2eCdAe38113929293d241Cf252D91861")

// MaxRules bounds the rule list. Rule offsets are uint16 byte offsets into
// calldata, so no more than 2^16/32 argument words are addressable.
const MaxRules = 1 << 11

// Condition is the comparison the validation module applies between the
// calldata word and the reference value.
type Condition uint8

const (
	Equal Condition = iota
	LessThanOrEqual
	LessThan
	GreaterThanOrEqual
	GreaterThan
	NotEqual
)

var conditionNames = [...]string{
	Equal:              "EQUAL",
	LessThanOrEqual:    "LESS_OR_EQUAL",
	LessThan:           "LESS_THAN",
	GreaterThanOrEqual: "GREATER_OR_EQUAL",
	GreaterThan:        "GREATER_THAN",
	NotEqual:           "NOT_EQUAL",
}

func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return fmt.Sprintf("Condition(%d)", uint8(c))
}

// Valid reports whether c is one of the six conditions the module understands.
func (c Condition) Valid() bool { return int(c) < len(conditionNames) }

// ParseCondition maps a condition name to its value.
func ParseCondition(s string) (Condition, error) {
	for i, n := range conditionNames {
		if strings.EqualFold(n, s) {
			return Condition(i), nil
		}
	}
	return 0, fmt.Errorf("permission: unknown condition %q", s)
}

func (c Condition) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("permission: invalid condition %d", uint8(c))
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts the condition name or its numeric value.
func (c *Condition) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		v, err := ParseCondition(name)
		if err != nil {
			return err
		}
		*c = v
		return nil
	}
	var n uint8
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("permission: condition must be a name or number: %w", err)
	}
	if !Condition(n).Valid() {
		return fmt.Errorf("permission: invalid condition %d", n)
	}
	*c = Condition(n)
	return nil
}

// Rule constrains one 32-byte argument word of the permitted call. Offset is
// the index of the word in the ABI-encoded arguments (0 is the first argument).
type Rule struct {
	Offset         uint16    `json:"offset"`
	Condition      Condition `json:"condition"`
	ReferenceValue any       `json:"referenceValue"`
}

// UnmarshalJSON keeps numeric reference values exact by decoding them as
// json.Number instead of float64.
func (r *Rule) UnmarshalJSON(b []byte) error {
	var raw struct {
		Offset         uint16    `json:"offset"`
		Condition      Condition `json:"condition"`
		ReferenceValue any       `json:"referenceValue"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*r = Rule(raw)
	return nil
}

// MaxRuleIndex is the last argument word a rule can address. The encoded
// byte offset is a uint16.
const MaxRuleIndex = 0xffff / 32

// OffsetByIndex returns the rule offset for the i-th argument word.
func OffsetByIndex(i int) (uint16, error) {
	if i < 0 || i > MaxRuleIndex {
		return 0, encodingErr("offset", fmt.Sprintf("argument index %d outside [0, %d]", i, MaxRuleIndex))
	}
	return uint16(i), nil
}

// Interval is the validity window of a session, in seconds since epoch.
// ValidUntil == 0 means the session never expires.
type Interval struct {
	ValidUntil uint64 `json:"validUntil"`
	ValidAfter uint64 `json:"validAfter"`
}

// Indefinitely is the interval of a session with no time bounds.
var Indefinitely = Interval{}

// NoValueLimit returns the largest value limit the uint128 field can carry.
func NoValueLimit() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
}

// Permission is the resolved content of an ABI SVM session key datum.
type Permission struct {
	DestContract     common.Address
	FunctionSelector [4]byte
	ValueLimit       *big.Int
	Rules            []Rule
}

// EncodeSessionKeyData packs the session key and permission into the layout
// the ABI session validation module decodes:
//
//	sessionKey(20) || destContract(20) || selector(4) || valueLimit(16) || ruleCount(2)
//	then per rule: offset(2) || condition(1) || referenceValue(32)
//
// The offset is written as a byte offset (word index * 32).
func EncodeSessionKeyData(sessionKey common.Address, p Permission) ([]byte, error) {
	if len(p.Rules) > MaxRules {
		return nil, encodingErr("rules", fmt.Sprintf("%d rules exceed the maximum of %d", len(p.Rules), MaxRules))
	}
	limit := p.ValueLimit
	if limit == nil {
		limit = new(big.Int)
	}
	if limit.Sign() < 0 {
		return nil, encodingErr("valueLimit", "negative")
	}
	if limit.BitLen() > 128 {
		return nil, encodingErr("valueLimit", "exceeds uint128")
	}

	out := make([]byte, 0, 20+20+4+16+2+len(p.Rules)*35)
	out = append(out, sessionKey.Bytes()...)
	out = append(out, p.DestContract.Bytes()...)
	out = append(out, p.FunctionSelector[:]...)
	out = append(out, common.LeftPadBytes(limit.Bytes(), 16)...)
	out = append(out, byte(len(p.Rules)>>8), byte(len(p.Rules)))

	for i, r := range p.Rules {
		if !r.Condition.Valid() {
			return nil, encodingErr(fmt.Sprintf("rules[%d].condition", i), r.Condition.String())
		}
		byteOffset := uint32(r.Offset) * 32
		if r.Offset > MaxRuleIndex {
			return nil, encodingErr(fmt.Sprintf("rules[%d].offset", i), "byte offset exceeds uint16")
		}
		word, err := ParseReferenceValue(r.ReferenceValue)
		if err != nil {
			if ee, ok := err.(*EncodingError); ok {
				ee.Field = fmt.Sprintf("rules[%d].%s", i, ee.Field)
			}
			return nil, err
		}
		out = append(out, byte(byteOffset>>8), byte(byteOffset), byte(r.Condition))
		out = append(out, word[:]...)
	}
	return out, nil
}

// Policy is the high-level declaration of one permitted call.
type Policy struct {
	// ContractAddress is the only contract the session may call.
	ContractAddress common.Address `json:"contractAddress"`
	// SessionKeyAddress is the delegate key. It is left zero for distributed
	// key sessions until key generation yields the MPC key address.
	SessionKeyAddress common.Address `json:"sessionKeyAddress"`
	// FunctionSelector is a literal 4-byte selector or a human-readable signature.
	FunctionSelector string `json:"functionSelector"`
	// Rules constrain individual argument words.
	Rules []Rule `json:"rules"`
	// Interval bounds the session in time. Nil means Indefinitely.
	Interval *Interval `json:"interval,omitempty"`
	// ValueLimit caps native value per call. Nil means zero.
	ValueLimit *big.Int `json:"valueLimit"`
}

// Datum is a compiled policy, ready to become a session leaf.
type Datum struct {
	ValidUntil              uint64
	ValidAfter              uint64
	SessionValidationModule common.Address
	SessionPublicKey        common.Address
	SessionKeyData          []byte
	// PreferredSessionID, when set, is used instead of a random session ID.
	PreferredSessionID string
}

// Leaf returns the hashed portion of the datum.
func (d Datum) Leaf() Leaf {
	return Leaf{
		ValidUntil:              d.ValidUntil,
		ValidAfter:              d.ValidAfter,
		SessionValidationModule: d.SessionValidationModule,
		SessionKeyData:          d.SessionKeyData,
	}
}

// NewABISessionDatum compiles a policy for the ABI session validation module.
func NewABISessionDatum(p Policy) (Datum, error) {
	sel, err := ResolveFunctionSelector(p.FunctionSelector)
	if err != nil {
		return Datum{}, err
	}
	iv := Indefinitely
	if p.Interval != nil {
		iv = *p.Interval
	}
	if iv.ValidUntil > MaxUint48 || iv.ValidAfter > MaxUint48 {
		return Datum{}, encodingErr("interval", "exceeds uint48")
	}
	data, err := EncodeSessionKeyData(p.SessionKeyAddress, Permission{
		DestContract:     p.ContractAddress,
		FunctionSelector: sel,
		ValueLimit:       p.ValueLimit,
		Rules:            p.Rules,
	})
	if err != nil {
		return Datum{}, err
	}
	return Datum{
		ValidUntil:              iv.ValidUntil,
		ValidAfter:              iv.ValidAfter,
		SessionValidationModule: DefaultABISessionValidationModule,
		SessionPublicKey:        p.SessionKeyAddress,
		SessionKeyData:          data,
	}, nil
}
