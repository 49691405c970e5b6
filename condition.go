package rules

import (
	"fmt"
	"strings"
)

// ParseCondition parses the compact predicate syntax used by declarative rule
// files into the Expr AST, e.g.
//
//	(auth && principal.id == path.userId)
//	(principal.id in existing.participants || role(admin))
//
// The grammar mirrors Expr.String() so tables round-trip through export and
// load. || binds loosest, && tighter, parentheses group.
func ParseCondition(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty condition")
	}
	return parseOr(s)
}

func parseOr(s string) (Expr, error) {
	parts, err := splitTopLevel(s, "||")
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parseAnd(parts[0])
	}
	expr, err := parseAnd(parts[0])
	if err != nil {
		return nil, err
	}
	for _, part := range parts[1:] {
		right, err := parseAnd(part)
		if err != nil {
			return nil, err
		}
		expr = &OrExpr{Left: expr, Right: right}
	}
	return expr, nil
}

func parseAnd(s string) (Expr, error) {
	parts, err := splitTopLevel(s, "&&")
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parsePrimary(parts[0])
	}
	expr, err := parsePrimary(parts[0])
	if err != nil {
		return nil, err
	}
	for _, part := range parts[1:] {
		right, err := parsePrimary(part)
		if err != nil {
			return nil, err
		}
		expr = &AndExpr{Left: expr, Right: right}
	}
	return expr, nil
}

func parsePrimary(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty condition term")
	}
	if strings.HasPrefix(s, "(") && closesAtEnd(s) {
		return parseOr(s[1 : len(s)-1])
	}
	switch s {
	case "true":
		return &TrueExpr{}, nil
	case "false":
		return &FalseExpr{}, nil
	case "auth":
		return &AuthExpr{}, nil
	}
	if strings.HasPrefix(s, "role(") && strings.HasSuffix(s, ")") {
		name := Role(strings.TrimSpace(s[len("role(") : len(s)-1]))
		switch name {
		case RolePatient, RoleProvider, RoleCaregiver, RoleAdmin:
			return &RoleExpr{Role: name}, nil
		}
		return nil, fmt.Errorf("unknown role %q", name)
	}
	if parts, err := splitTopLevel(s, "=="); err == nil && len(parts) == 2 {
		field, err := parseFieldRef(parts[0])
		if err != nil {
			return nil, err
		}
		value, err := parseOperand(parts[1])
		if err != nil {
			return nil, err
		}
		return &EqExpr{Field: field, Value: value}, nil
	}
	if parts, err := splitTopLevel(s, " in "); err == nil && len(parts) == 2 {
		item, err := parseFieldRef(parts[0])
		if err != nil {
			return nil, err
		}
		set, err := parseOperand(parts[1])
		if err != nil {
			return nil, err
		}
		return &MemberExpr{Item: item, Set: set}, nil
	}
	return nil, fmt.Errorf("unsupported condition syntax: %s", s)
}

func parseFieldRef(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !isFieldRef(s) {
		return "", fmt.Errorf("%q is not a field reference", s)
	}
	return s, nil
}

// parseOperand parses the right-hand side of a comparison: a field
// reference, a quoted string literal, or a quoted string list.
func parseOperand(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty operand")
	case isFieldRef(s):
		return s, nil
	case strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2:
		return s[1 : len(s)-1], nil
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}, nil
		}
		items := strings.Split(inner, ",")
		out := make([]any, 0, len(items))
		for _, item := range items {
			item = strings.TrimSpace(item)
			if !strings.HasPrefix(item, `"`) || !strings.HasSuffix(item, `"`) || len(item) < 2 {
				return nil, fmt.Errorf("list items must be quoted strings: %s", item)
			}
			out = append(out, item[1:len(item)-1])
		}
		return out, nil
	case s == "true":
		return true, nil
	case s == "false":
		return false, nil
	}
	return nil, fmt.Errorf("unsupported operand: %s", s)
}

// splitTopLevel splits s on sep occurrences outside parentheses, brackets and
// quotes. A single-element result means sep never occurred at top level.
func splitTopLevel(s, sep string) ([]string, error) {
	var (
		parts   []string
		depth   int
		quoted  bool
		start   int
		sepLen  = len(sep)
		lastEnd = len(s) - sepLen
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses in %q", s)
			}
		case depth == 0 && i <= lastEnd && s[i:i+sepLen] == sep:
			parts = append(parts, s[start:i])
			start = i + sepLen
			i += sepLen - 1
		}
	}
	if quoted || depth != 0 {
		return nil, fmt.Errorf("unbalanced condition %q", s)
	}
	parts = append(parts, s[start:])
	return parts, nil
}

// closesAtEnd reports whether the opening paren at position 0 closes at the
// final character, i.e. the whole string is one parenthesized group.
func closesAtEnd(s string) bool {
	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			quoted = !quoted
		case quoted:
		case s[i] == '(' || s[i] == '[':
			depth++
		case s[i] == ')' || s[i] == ']':
			depth--
			if depth == 0 {
				return i == len(s)-1
			}
		}
	}
	return false
}
