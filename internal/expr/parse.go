package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCondition is returned by ParseCondition for malformed input.
var ErrInvalidCondition = errors.New("invalid condition")

var conditionTokens = []struct {
	token string
	op    Op
}{
	{">=", OpGte},
	{"<=", OpLte},
	{"!=", OpNe},
	{"^=", OpPrefix},
	{"~", OpContains},
	{"=", OpEq},
	{">", OpGt},
	{"<", OpLt},
}

// ParseCondition parses a single comparison of the form "path<op>value".
//
// Supported operators are =, !=, >, >=, <, <=, ~ (contains) and ^= (prefix).
// Values are typed: quoted text is a string, true/false a bool, null a nil,
// integers an int64, decimals a float64 and anything else a bare string.
func ParseCondition(s string) (*Lambda, error) {
	field, op, raw, err := splitCondition(s)
	if err != nil {
		return nil, err
	}
	if op == OpPrefix || op == OpContains {
		return Field(field).compare(op, unquote(raw)), nil
	}
	return Field(field).compare(op, ParseLiteral(raw)), nil
}

func splitCondition(s string) (string, Op, string, error) {
	for i := range len(s) {
		for _, t := range conditionTokens {
			if !strings.HasPrefix(s[i:], t.token) {
				continue
			}
			field := strings.TrimSpace(s[:i])
			if field == "" {
				return "", "", "", fmt.Errorf("%w: missing field in %q", ErrInvalidCondition, s)
			}
			if strings.ContainsAny(field, " \t") {
				return "", "", "", fmt.Errorf("%w: field %q contains whitespace", ErrInvalidCondition, field)
			}
			return field, t.op, strings.TrimSpace(s[i+len(t.token):]), nil
		}
	}
	return "", "", "", fmt.Errorf("%w: no operator in %q", ErrInvalidCondition, s)
}

// ParseLiteral converts a textual value into its typed form.
func ParseLiteral(raw string) any {
	if s, ok := quoted(raw); ok {
		return s
	}
	switch strings.ToLower(raw) {
	case "null", "nil":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func unquote(raw string) string {
	if s, ok := quoted(raw); ok {
		return s
	}
	return raw
}

func quoted(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	first, last := raw[0], raw[len(raw)-1]
	if (first == '"' || first == '\'') && first == last {
		return raw[1 : len(raw)-1], true
	}
	return "", false
}
