package rules

import (
	"fmt"
	"strings"
)

// ============================================================================
// EXPRESSION LANGUAGE (collection predicates)
// ============================================================================

// Expr is a compiled predicate condition. The vocabulary is deliberately
// fixed: authentication, role, equality, set membership and boolean
// combinators. Rules stay statically enumerable and testable per predicate.
type Expr interface {
	Evaluate(ctx *EvalContext) (bool, error)
	String() string
}

// EvalContext provides the data a predicate may inspect.
type EvalContext struct {
	Principal *Principal
	Existing  *Snapshot
	Incoming  map[string]any
	Refs      map[string]*Snapshot
	Params    PathParams
}

// TrueExpr always allows (public read on config).
type TrueExpr struct{}

func (e *TrueExpr) Evaluate(ctx *EvalContext) (bool, error) { return true, nil }
func (e *TrueExpr) String() string                          { return "true" }

// FalseExpr always denies. Equivalent to an absent predicate, but explicit in
// serialized rule tables.
type FalseExpr struct{}

func (e *FalseExpr) Evaluate(ctx *EvalContext) (bool, error) { return false, nil }
func (e *FalseExpr) String() string                          { return "false" }

// AuthExpr requires an authenticated principal.
type AuthExpr struct{}

func (e *AuthExpr) Evaluate(ctx *EvalContext) (bool, error) {
	return ctx.Principal != nil && ctx.Principal.Authenticated, nil
}
func (e *AuthExpr) String() string { return "auth" }

// RoleExpr requires an authenticated principal carrying the given role claim.
type RoleExpr struct {
	Role Role
}

func (e *RoleExpr) Evaluate(ctx *EvalContext) (bool, error) {
	p := ctx.Principal
	return p != nil && p.Authenticated && p.Role != "" && p.Role == e.Role, nil
}
func (e *RoleExpr) String() string { return fmt.Sprintf("role(%s)", e.Role) }

// EqExpr compares a field against a literal or another field reference
// (principal./incoming./existing./refs./path. prefixes). An absent field on
// either side never compares equal.
type EqExpr struct {
	Field string
	Value any
}

func (e *EqExpr) Evaluate(ctx *EvalContext) (bool, error) {
	lhs := getField(ctx, e.Field)
	if lhs == nil {
		return false, nil
	}
	if ref, ok := e.Value.(string); ok && isFieldRef(ref) {
		rhs := getField(ctx, ref)
		if rhs == nil {
			return false, nil
		}
		return compare(lhs, rhs) == 0, nil
	}
	return compare(lhs, e.Value) == 0, nil
}

func (e *EqExpr) String() string {
	return fmt.Sprintf("%s == %s", e.Field, formatOperand(e.Value))
}

// MemberExpr checks that the item field's value occurs in a string array,
// resolved from a field reference (e.g. existing.participants) or given as a
// literal list. Absent item or set denies.
type MemberExpr struct {
	Item string
	Set  any
}

func (e *MemberExpr) Evaluate(ctx *EvalContext) (bool, error) {
	item := getField(ctx, e.Item)
	if item == nil {
		return false, nil
	}
	var set any
	if ref, ok := e.Set.(string); ok && isFieldRef(ref) {
		set = getField(ctx, ref)
	} else {
		set = e.Set
	}
	for _, member := range toValueSlice(set) {
		if compare(item, member) == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (e *MemberExpr) String() string {
	return fmt.Sprintf("%s in %s", e.Item, formatOperand(e.Set))
}

// AndExpr is logical AND with short-circuit.
type AndExpr struct {
	Left  Expr
	Right Expr
}

func (e *AndExpr) Evaluate(ctx *EvalContext) (bool, error) {
	left, err := e.Left.Evaluate(ctx)
	if err != nil || !left {
		return false, err
	}
	return e.Right.Evaluate(ctx)
}

func (e *AndExpr) String() string {
	return fmt.Sprintf("(%s && %s)", e.Left.String(), e.Right.String())
}

// OrExpr is logical OR with short-circuit.
type OrExpr struct {
	Left  Expr
	Right Expr
}

func (e *OrExpr) Evaluate(ctx *EvalContext) (bool, error) {
	left, err := e.Left.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	if left {
		return true, nil
	}
	return e.Right.Evaluate(ctx)
}

func (e *OrExpr) String() string {
	return fmt.Sprintf("(%s || %s)", e.Left.String(), e.Right.String())
}

// ============================================================================
// FIELD ACCESS
// ============================================================================

// isFieldRef reports whether a string operand names a field in one of the
// predicate address spaces rather than a literal value.
func isFieldRef(s string) bool {
	switch {
	case strings.HasPrefix(s, "principal."),
		strings.HasPrefix(s, "incoming."),
		strings.HasPrefix(s, "existing."),
		strings.HasPrefix(s, "refs."),
		strings.HasPrefix(s, "path."):
		return true
	}
	return false
}

// getField resolves a dotted field reference against the evaluation context.
// Every miss resolves to nil; predicates treat nil as "deny", never as a
// wildcard. This is the fail-closed tie-break for absent optional fields.
func getField(ctx *EvalContext, field string) any {
	switch {
	case strings.HasPrefix(field, "principal."):
		return getPrincipalField(ctx.Principal, field[len("principal."):])
	case strings.HasPrefix(field, "incoming."):
		if ctx.Incoming == nil {
			return nil
		}
		return ctx.Incoming[field[len("incoming."):]]
	case strings.HasPrefix(field, "existing."):
		return getSnapshotField(ctx.Existing, field[len("existing."):])
	case strings.HasPrefix(field, "refs."):
		rest := field[len("refs."):]
		dot := strings.IndexByte(rest, '.')
		if dot <= 0 || ctx.Refs == nil {
			return nil
		}
		return getSnapshotField(ctx.Refs[rest[:dot]], rest[dot+1:])
	case strings.HasPrefix(field, "path."):
		if ctx.Params == nil {
			return nil
		}
		if v, ok := ctx.Params[field[len("path."):]]; ok {
			return v
		}
		return nil
	}
	return nil
}

func getPrincipalField(p *Principal, field string) any {
	if p == nil {
		return nil
	}
	switch field {
	case "id":
		if p.ID == "" {
			return nil
		}
		return p.ID
	case "role":
		if p.Role == "" {
			return nil
		}
		return string(p.Role)
	case "authenticated":
		return p.Authenticated
	}
	return nil
}

func getSnapshotField(s *Snapshot, field string) any {
	if s == nil || !s.Exists {
		return nil
	}
	return s.Fields[field]
}

// toValueSlice normalizes the supported array shapes for membership checks.
func toValueSlice(v any) []any {
	switch vv := v.(type) {
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	}
	return nil
}

// compare returns 0 when a equals b under the engine's loose value model
// (strings, bools, numbers). Anything else, including nil on either side,
// compares unequal.
func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av == bv:
				return 0
			case av < bv:
				return -1
			default:
				return 1
			}
		}
	case bool:
		if bv, ok := b.(bool); ok && av == bv {
			return 0
		}
	case int:
		return compare(float64(av), b)
	case int64:
		return compare(float64(av), b)
	case float64:
		var bf float64
		switch bv := b.(type) {
		case int:
			bf = float64(bv)
		case int64:
			bf = float64(bv)
		case float64:
			bf = bv
		default:
			return -1
		}
		switch {
		case av == bf:
			return 0
		case av < bf:
			return -1
		default:
			return 1
		}
	}
	return -1
}

func formatOperand(v any) string {
	switch vv := v.(type) {
	case string:
		if isFieldRef(vv) {
			return vv
		}
		return fmt.Sprintf("%q", vv)
	case []string:
		parts := make([]string, len(vv))
		for i, s := range vv {
			parts[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(vv))
		for i, item := range vv {
			parts[i] = formatOperand(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(vv)
	}
}

// ============================================================================
// PREDICATE COMPILATION
// ============================================================================

// compiledPredicate is a precompiled predicate closure, built once when the
// ruleset loads so evaluation avoids interface dispatch on the hot path.
type compiledPredicate func(*EvalContext) (bool, error)

func compilePredicate(e Expr) compiledPredicate {
	if e == nil {
		return func(*EvalContext) (bool, error) { return false, nil }
	}
	switch v := e.(type) {
	case *TrueExpr:
		return func(*EvalContext) (bool, error) { return true, nil }
	case *FalseExpr:
		return func(*EvalContext) (bool, error) { return false, nil }
	case *AuthExpr:
		return func(ctx *EvalContext) (bool, error) {
			return ctx.Principal != nil && ctx.Principal.Authenticated, nil
		}
	case *RoleExpr:
		role := v.Role
		return func(ctx *EvalContext) (bool, error) {
			p := ctx.Principal
			return p != nil && p.Authenticated && p.Role != "" && p.Role == role, nil
		}
	case *AndExpr:
		left := compilePredicate(v.Left)
		right := compilePredicate(v.Right)
		return func(ctx *EvalContext) (bool, error) {
			l, err := left(ctx)
			if err != nil || !l {
				return false, err
			}
			return right(ctx)
		}
	case *OrExpr:
		left := compilePredicate(v.Left)
		right := compilePredicate(v.Right)
		return func(ctx *EvalContext) (bool, error) {
			l, err := left(ctx)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return right(ctx)
		}
	default:
		return e.Evaluate
	}
}
