package permission

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPolicySchema(t *testing.T) {
	s := PolicySchema()
	if s.Type != "object" {
		t.Fatalf("expected object schema, got %q", s.Type)
	}
	addr, ok := s.Properties.Get("contractAddress")
	if !ok {
		t.Fatalf("contractAddress missing from schema")
	}
	if addr.Type != "string" || addr.Pattern == "" {
		t.Fatalf("address not mapped to a hex string: %+v", addr)
	}
	if _, ok := s.Properties.Get("rules"); !ok {
		t.Fatalf("rules missing from schema")
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), "GREATER_OR_EQUAL") {
		t.Fatalf("condition enum missing from schema: %s", b)
	}
}
