package rules

import "testing"

func TestParseConditionPrimaries(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"true", "true"},
		{"false", "false"},
		{"auth", "auth"},
		{"role(admin)", "role(admin)"},
		{"principal.id == path.userId", "principal.id == path.userId"},
		{`incoming.status == "pending"`, `incoming.status == "pending"`},
		{"principal.id in existing.participants", "principal.id in existing.participants"},
		{`principal.id in ["a", "b"]`, `principal.id in ["a", "b"]`},
		{"(auth && principal.id == path.userId)", "(auth && principal.id == path.userId)"},
		{"(role(admin) || principal.id == existing.patientId)", "(role(admin) || principal.id == existing.patientId)"},
	} {
		expr, err := ParseCondition(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got := expr.String(); got != tc.want {
			t.Fatalf("parse %q: round trip gave %q", tc.in, got)
		}
	}
}

func TestParseConditionPrecedence(t *testing.T) {
	expr, err := ParseCondition("auth && principal.id == path.userId || role(admin)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	or, ok := expr.(*OrExpr)
	if !ok {
		t.Fatalf("expected || at the top, got %T", expr)
	}
	if _, ok := or.Left.(*AndExpr); !ok {
		t.Fatalf("expected && to bind tighter, got %T", or.Left)
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"role(superuser)",
		"principal.id ==",
		`"x" == principal.id`,
		"principal.id in [a, b]",
		"(auth && true",
		"maybe",
	} {
		if _, err := ParseCondition(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestBuiltinRulesetRoundTripsThroughConditions(t *testing.T) {
	rs := HealthcareRuleset()
	for _, r := range rs.Rules() {
		for _, op := range []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpList} {
			pred := r.Predicate(op)
			if pred == nil {
				continue
			}
			parsed, err := ParseCondition(pred.String())
			if err != nil {
				t.Fatalf("rule %s op %s: %v", r.Pattern, op, err)
			}
			if parsed.String() != pred.String() {
				t.Fatalf("rule %s op %s: %q != %q", r.Pattern, op, parsed.String(), pred.String())
			}
		}
	}
}
