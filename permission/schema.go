package permission

import (
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/invopop/jsonschema"
)

var (
	addressType   = reflect.TypeOf(common.Address{})
	bigIntType    = reflect.TypeOf(big.Int{})
	conditionType = reflect.TypeOf(Condition(0))
)

// PolicySchema returns the JSON Schema of a policy document as accepted by
// json.Unmarshal into a Policy.
func PolicySchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
		Mapper:         mapPolicyType,
	}
	s := r.Reflect(new(Policy))
	s.Title = "Session policy"
	return s
}

func mapPolicyType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case addressType:
		return &jsonschema.Schema{
			Type:        "string",
			Pattern:     "^0x[0-9a-fA-F]{40}$",
			Description: "20-byte hex address",
		}
	case bigIntType:
		return &jsonschema.Schema{
			Type:        "integer",
			Minimum:     "0",
			Description: "non-negative integer, at most 2^128-1",
		}
	case conditionType:
		enum := make([]any, 0, len(conditionNames))
		for _, n := range conditionNames {
			enum = append(enum, n)
		}
		return &jsonschema.Schema{Type: "string", Enum: enum}
	}
	return nil
}
