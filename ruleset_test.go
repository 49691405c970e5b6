package rules

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

const testRulesetYAML = `
rules:
  - pattern: notes/{noteId}
    create: (auth && principal.id == incoming.authorId)
    read: (auth && principal.id == existing.authorId)
    schema:
      - name: authorId
        type: string
        required: true
      - name: body
        type: string
        nullable: true
  - pattern: notes/{noteId}/comments/{commentId}
    create: (auth && principal.id in refs.note.editors)
    dependencies:
      - name: note
        collection: notes
        param: noteId
`

func TestLoadYAML(t *testing.T) {
	rs, err := LoadYAML([]byte(testRulesetYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if len(rs.Rules()) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rs.Rules()))
	}

	note := rs.Rules()[0]
	if note.Pattern != "notes/{noteId}" {
		t.Fatalf("unexpected pattern %s", note.Pattern)
	}
	if note.Create == nil || note.Read == nil || note.Update != nil {
		t.Fatalf("unexpected predicate bindings")
	}
	if note.Schema == nil || len(note.Schema.Fields()) != 2 {
		t.Fatalf("schema not loaded")
	}

	comment := rs.Rules()[1]
	if len(comment.Dependencies) != 1 || comment.Dependencies[0].Name != "note" {
		t.Fatalf("dependency not loaded: %+v", comment.Dependencies)
	}
}

func TestRulesetFileRoundTrip(t *testing.T) {
	rs, err := LoadYAML([]byte(testRulesetYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	out, err := rs.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	rs2, err := LoadYAML(out)
	if err != nil {
		t.Fatalf("reload yaml: %v", err)
	}
	if rs.Checksum() != rs2.Checksum() {
		t.Fatalf("checksum changed across yaml round trip")
	}

	jsonOut, err := rs.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	rs3, err := LoadJSON(jsonOut)
	if err != nil {
		t.Fatalf("reload json: %v", err)
	}
	if rs.Checksum() != rs3.Checksum() {
		t.Fatalf("checksum changed across json round trip")
	}
}

func TestBuiltinRulesetExportRoundTrip(t *testing.T) {
	rs := HealthcareRuleset()
	out, err := rs.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	rs2, err := LoadYAML(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if rs.Checksum() != rs2.Checksum() {
		t.Fatalf("built-in table did not survive a file round trip")
	}
}

func TestNewRulesetRejectsDuplicatePatterns(t *testing.T) {
	_, err := NewRuleset(
		NewRule("things/{id}").Read(Auth()).Build(),
		NewRule("things/{id}").Create(Auth()).Build(),
	)
	if err == nil {
		t.Fatalf("expected duplicate pattern rejection")
	}
}

func TestValidateRejectsUncapturedDependencyParam(t *testing.T) {
	_, err := NewRuleset(
		NewRule("conversations/{cid}").Read(Auth()).Build(),
		NewRule("conversations/{cid}/messages/{mid}").
			Read(Auth()).
			DependsOn("conversation", "conversations", "conversationId").
			Build(),
	)
	if err == nil {
		t.Fatalf("expected unknown path parameter rejection")
	}
}

func TestValidateRejectsDeepDependencyChains(t *testing.T) {
	chain := func(col, dep string) *CollectionRule {
		b := NewRule(col + "/{id}").Read(Auth())
		if dep != "" {
			b.DependsOn(dep, dep, "id")
		}
		return b.Build()
	}
	_, err := NewRuleset(
		chain("a", "b"),
		chain("b", "c"),
		chain("c", "d"),
		chain("d", "e"),
		chain("e", ""),
	)
	if err == nil {
		t.Fatalf("expected dependency depth rejection")
	}
}

func TestMatchSpecificity(t *testing.T) {
	rs, err := NewRuleset(
		NewRule("conversations/{cid}").Read(Auth()).Build(),
		NewRule("conversations/{cid}/messages/{mid}").Read(Auth()).Build(),
	)
	if err != nil {
		t.Fatalf("new ruleset: %v", err)
	}

	p, _ := ParsePath("conversations/c1/messages/m1")
	rule, params, ok := rs.Match(p)
	if !ok {
		t.Fatalf("expected match")
	}
	if rule.Pattern != "conversations/{cid}/messages/{mid}" {
		t.Fatalf("matched wrong rule: %s", rule.Pattern)
	}
	if params["cid"] != "c1" || params["mid"] != "m1" {
		t.Fatalf("unexpected params: %v", params)
	}

	shallow, _ := ParsePath("conversations/c1")
	rule, _, ok = rs.Match(shallow)
	if !ok || rule.Pattern != "conversations/{cid}" {
		t.Fatalf("expected shallow pattern, got %v", rule)
	}

	unknown, _ := ParsePath("users/u1")
	if _, _, ok := rs.Match(unknown); ok {
		t.Fatalf("expected no match for unknown collection")
	}
}

func TestSignAndVerifyRuleset(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	rs := HealthcareRuleset()
	sig := SignRuleset(priv, rs)

	ok, err := VerifyRulesetSignature(pub, rs, sig)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, ok=%v err=%v", ok, err)
	}

	other, err := LoadYAML([]byte(testRulesetYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	ok, err = VerifyRulesetSignature(pub, other, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("signature verified against a different table")
	}

	if _, err := VerifyRulesetSignature(pub, rs, "%%%not-base64%%%"); err == nil {
		t.Fatalf("expected base64 decode error")
	}
}
