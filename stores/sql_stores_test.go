package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	rules "github.com/temitayocharles/healthcare-naija"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLDocumentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLDocumentStore(newTestDB(t))

	snap, err := store.GetDocument(ctx, "conversations/c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Exists {
		t.Fatalf("expected missing document")
	}

	fields := map[string]any{
		"participants": []string{"u1", "u2"},
		"lastMessage":  "hi",
	}
	if err := store.SetDocument(ctx, "conversations/c1", fields); err != nil {
		t.Fatalf("set: %v", err)
	}

	snap, err = store.GetDocument(ctx, "conversations/c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !snap.Exists || snap.Fields["lastMessage"] != "hi" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// upsert replaces in place
	if err := store.SetDocument(ctx, "conversations/c1", map[string]any{
		"participants": []string{"u1"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snap, _ = store.GetDocument(ctx, "conversations/c1")
	if _, kept := snap.Fields["lastMessage"]; kept {
		t.Fatalf("upsert did not replace the document")
	}

	if err := store.DeleteDocument(ctx, "conversations/c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap, _ = store.GetDocument(ctx, "conversations/c1")
	if snap.Exists {
		t.Fatalf("expected document gone after delete")
	}
}

func TestSQLDocumentStoreFeedsEngine(t *testing.T) {
	ctx := context.Background()
	store := NewSQLDocumentStore(newTestDB(t))

	if err := store.SetDocument(ctx, "conversations/c1", map[string]any{
		"participants": []string{"patient_1", "provider_1"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	eng, err := rules.NewEngine(rules.HealthcareRuleset(), store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Close()

	dec := eng.Authorize(ctx, &rules.Request{
		Principal: rules.Principal{Authenticated: true, ID: "patient_1", Role: rules.RolePatient},
		Operation: rules.OpRead,
		Path:      "conversations/c1/messages/m1",
	})
	if !dec.Allowed {
		t.Fatalf("expected allow via SQL-resolved reference, got %s: %s", dec.Code, dec.Reason)
	}

	dec = eng.Authorize(ctx, &rules.Request{
		Principal: rules.Principal{Authenticated: true, ID: "outsider", Role: rules.RolePatient},
		Operation: rules.OpRead,
		Path:      "conversations/c1/messages/m1",
	})
	if dec.Allowed {
		t.Fatalf("expected deny for non-participant")
	}
}

func TestSQLAuditSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink := NewSQLAuditSink(newTestDB(t))

	entry := &rules.AuditEntry{
		ID:        "evt-1",
		TraceID:   "trace-abc-123",
		Timestamp: time.Now().UTC(),
		Principal: rules.Principal{Authenticated: true, ID: "patient_1", Role: rules.RolePatient},
		Operation: rules.OpRead,
		Path:      "users/patient_1",
		Decision: &rules.Decision{
			Allowed:     true,
			Reason:      "predicate allowed",
			MatchedRule: "users/{userId}",
			TraceID:     "trace-abc-123",
			Timestamp:   time.Now().UTC(),
		},
		Metadata: map[string]any{"trace_id": "trace-abc-123"},
	}
	if err := sink.Record(ctx, entry); err != nil {
		t.Fatalf("record: %v", err)
	}

	denied := &rules.AuditEntry{
		ID:        "evt-2",
		TraceID:   "trace-def-456",
		Timestamp: time.Now().UTC(),
		Principal: rules.Principal{},
		Operation: rules.OpUpdate,
		Path:      "config/flags",
		Decision: &rules.Decision{
			Allowed: false,
			Reason:  "predicate denied",
			Code:    rules.CodePredicateDenied,
		},
	}
	if err := sink.Record(ctx, denied); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := sink.Query(ctx, rules.AuditFilter{PrincipalID: "patient_1", Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.TraceID != "trace-abc-123" {
		t.Fatalf("expected trace id round trip, got %q", e.TraceID)
	}
	if e.Decision == nil || !e.Decision.Allowed || e.Decision.MatchedRule != "users/{userId}" {
		t.Fatalf("decision did not round trip: %+v", e.Decision)
	}
	if !e.Principal.Authenticated || e.Principal.Role != rules.RolePatient {
		t.Fatalf("principal did not round trip: %+v", e.Principal)
	}

	got, err = sink.Query(ctx, rules.AuditFilter{Path: "config/flags", Operation: rules.OpUpdate})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Decision == nil || got[0].Decision.Code != rules.CodePredicateDenied {
		t.Fatalf("unexpected denied entry: %+v", got)
	}
}
