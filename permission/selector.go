package permission

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	identRe       = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	arraySuffixRe = regexp.MustCompile(`^(\[[0-9]*\])*$`)
)

// ResolveFunctionSelector accepts either a literal selector ("0xa9059cbb") or a
// human-readable signature ("transfer(address,uint256)", "function
// transfer(address to, uint256 amount) external") and returns the 4-byte
// selector.
func ResolveFunctionSelector(input string) ([4]byte, error) {
	var sel [4]byte
	s := strings.TrimSpace(input)
	if s == "" {
		return sel, &InvalidSelectorError{Input: input, Reason: "empty"}
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return sel, &InvalidSelectorError{Input: input, Reason: "literal selector is not hex"}
		}
		if len(raw) != 4 {
			return sel, &InvalidSelectorError{Input: input, Reason: "literal selector must be exactly 4 bytes"}
		}
		copy(sel[:], raw)
		return sel, nil
	}
	sig, err := CanonicalSignature(s)
	if err != nil {
		return sel, err
	}
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	return sel, nil
}

// CanonicalSignature normalizes a human-readable function signature into the
// form that is hashed for its selector: no names, no spaces, uint/int widened.
func CanonicalSignature(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "function ")
	s = strings.TrimSpace(s)

	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return "", &InvalidSelectorError{Input: input, Reason: "missing function name or parameter list"}
	}
	name := strings.TrimSpace(s[:open])
	if !identRe.MatchString(name) {
		return "", &InvalidSelectorError{Input: input, Reason: "invalid function name"}
	}
	closeIdx := matchingParen(s, open)
	if closeIdx < 0 {
		return "", &InvalidSelectorError{Input: input, Reason: "unbalanced parentheses"}
	}
	// Trailing modifiers ("view", "returns (uint256)") must be separated by whitespace.
	if rest := s[closeIdx+1:]; rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", &InvalidSelectorError{Input: input, Reason: "unexpected text after parameter list"}
	}
	params, err := canonicalParams(input, s[open+1:closeIdx])
	if err != nil {
		return "", err
	}
	return name + "(" + params + ")", nil
}

func canonicalParams(input, inner string) (string, error) {
	if strings.TrimSpace(inner) == "" {
		return "", nil
	}
	parts, ok := splitTopLevel(inner)
	if !ok {
		return "", &InvalidSelectorError{Input: input, Reason: "unbalanced parentheses"}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t, err := canonicalParam(input, strings.TrimSpace(p))
		if err != nil {
			return "", err
		}
		out = append(out, t)
	}
	return strings.Join(out, ","), nil
}

func canonicalParam(input, p string) (string, error) {
	if p == "" {
		return "", &InvalidSelectorError{Input: input, Reason: "empty parameter"}
	}
	if strings.HasPrefix(p, "tuple(") {
		p = p[len("tuple"):]
	}
	if p[0] == '(' {
		end := matchingParen(p, 0)
		if end < 0 {
			return "", &InvalidSelectorError{Input: input, Reason: "unbalanced parentheses"}
		}
		inner, err := canonicalParams(input, p[1:end])
		if err != nil {
			return "", err
		}
		suffix := p[end+1:]
		if i := strings.IndexAny(suffix, " \t"); i >= 0 {
			suffix = suffix[:i]
		}
		if !arraySuffixRe.MatchString(suffix) {
			return "", &InvalidSelectorError{Input: input, Reason: "invalid tuple array suffix"}
		}
		return "(" + inner + ")" + suffix, nil
	}

	typ := strings.Fields(p)[0]
	typ = widenAlias(typ)
	if _, err := abi.NewType(typ, "", nil); err != nil {
		return "", &InvalidSelectorError{Input: input, Reason: "unknown type " + typ}
	}
	return typ, nil
}

func widenAlias(t string) string {
	base, suffix := t, ""
	if i := strings.IndexByte(t, '['); i >= 0 {
		base, suffix = t[:i], t[i:]
	}
	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	}
	return base + suffix
}

// matchingParen returns the index of the ')' that closes the '(' at open.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(s string) ([]string, bool) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, false
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, false
	}
	return append(parts, s[start:]), true
}
