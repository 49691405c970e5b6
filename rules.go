package rules

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/temitayocharles/healthcare-naija/logger"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Role is the optional claim carried by an authenticated principal.
type Role string

const (
	RolePatient   Role = "patient"
	RoleProvider  Role = "provider"
	RoleCaregiver Role = "caregiver"
	RoleAdmin     Role = "admin"
)

// Principal represents who is requesting access. It is built once per request
// from an external identity assertion and is immutable for the request's
// lifetime.
type Principal struct {
	Authenticated bool   `json:"authenticated"`
	ID            string `json:"id,omitempty"`
	Role          Role   `json:"role,omitempty"`
}

// IdentityAssertion is the already-verified claim set handed over by the
// identity layer. The engine never parses raw credentials.
type IdentityAssertion struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role,omitempty"`
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal { return Principal{} }

// PrincipalFromAssertion adapts an identity assertion into a Principal.
// A nil assertion or empty subject yields the anonymous principal; unknown
// role claims are dropped rather than trusted.
func PrincipalFromAssertion(a *IdentityAssertion) Principal {
	if a == nil || a.SubjectID == "" {
		return Anonymous()
	}
	p := Principal{Authenticated: true, ID: a.SubjectID}
	switch Role(a.Role) {
	case RolePatient, RoleProvider, RoleCaregiver, RoleAdmin:
		p.Role = Role(a.Role)
	}
	return p
}

// Operation is how the document is being accessed.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

func (op Operation) valid() bool {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete, OpList:
		return true
	}
	return false
}

// IsWrite reports whether the operation carries an incoming document and is
// subject to schema validation.
func (op Operation) IsWrite() bool { return op == OpCreate || op == OpUpdate }

// Snapshot is a borrowed read-only view of a document. A document that does
// not exist has Exists=false and no fields; predicates treat every field of a
// nonexistent document as absent.
type Snapshot struct {
	Path   string         `json:"path"`
	Exists bool           `json:"exists"`
	Fields map[string]any `json:"fields,omitempty"`
}

// CollectionRule is the declarative record for one collection pattern. A nil
// predicate for an operation is an always-deny predicate.
type CollectionRule struct {
	Pattern string

	Create Expr
	Read   Expr
	Update Expr
	Delete Expr
	List   Expr

	Schema       *Schema
	Dependencies []Dependency

	pattern  *pattern
	compiled map[Operation]compiledPredicate
}

// Predicate returns the declared predicate for an operation, nil when absent.
func (r *CollectionRule) Predicate(op Operation) Expr {
	switch op {
	case OpCreate:
		return r.Create
	case OpRead:
		return r.Read
	case OpUpdate:
		return r.Update
	case OpDelete:
		return r.Delete
	case OpList:
		return r.List
	}
	return nil
}

func (r *CollectionRule) compile() {
	r.compiled = make(map[Operation]compiledPredicate, 5)
	for _, op := range []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpList} {
		if pred := r.Predicate(op); pred != nil {
			r.compiled[op] = compilePredicate(pred)
		}
	}
}

// Decision is the immutable outcome of one evaluation.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	Code        DenyCode  `json:"code,omitempty"`
	MatchedRule string    `json:"matched_rule,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Request is the single entry point payload: who wants to do what to which
// document. Existing is the committed state for read/update/delete (nil means
// the document does not exist); Incoming is the proposed state for writes.
type Request struct {
	Principal Principal
	Operation Operation
	Path      string
	Existing  *Snapshot
	Incoming  map[string]any
}

// ============================================================================
// AUDIT
// ============================================================================

// AuditEntry records one authorization decision.
type AuditEntry struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Principal Principal      `json:"principal"`
	Operation Operation      `json:"operation"`
	Path      string         `json:"path"`
	Decision  *Decision      `json:"decision"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditSink receives decisions for observability. Record is invoked off the
// authorization path; its errors are swallowed and never change a decision.
type AuditSink interface {
	Record(ctx context.Context, entry *AuditEntry) error
}

// AuditFilter selects audit entries when querying a sink.
type AuditFilter struct {
	PrincipalID string
	Path        string
	Operation   Operation
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
}

// ============================================================================
// ENGINE
// ============================================================================

// TraceIDFunc generates a correlation ID per evaluation. It must be cheap and
// safe for concurrent calls.
type TraceIDFunc func() string

// Engine evaluates authorization requests against an immutable rule table.
// It owns no persistent state: documents are borrowed snapshots, and the only
// I/O on the decision path is the resolver's store read.
type Engine struct {
	ruleset         *Ruleset
	store           DocumentStore
	sink            AuditSink
	logger          logger.Logger
	traceIDFunc     TraceIDFunc
	maxResolveDepth int

	matchCache *ristretto.Cache

	auditBuf  int
	auditCh   chan AuditEntry
	auditDone chan struct{}
	closeOnce sync.Once
}

// NewEngine builds an engine over a rule table and a document store. The rule
// table is fixed for the engine's lifetime; there is no hot reload.
func NewEngine(rs *Ruleset, store DocumentStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		ruleset:         rs,
		store:           store,
		logger:          logger.NewPhusluLogger(),
		traceIDFunc:     func() string { return uuid.NewString() },
		maxResolveDepth: maxDependencyDepth,
		auditBuf:        1024,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.auditCh = make(chan AuditEntry, e.auditBuf)
	e.auditDone = make(chan struct{})
	go e.auditWorker()
	return e, nil
}

// Ruleset returns the engine's immutable rule table.
func (e *Engine) Ruleset() *Ruleset { return e.ruleset }

// Close stops the audit worker after draining queued entries.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.auditCh)
		<-e.auditDone
	})
}

// Authorize evaluates one request and always returns a decision: malformed
// input, unmatched paths, unresolved references and validation failures all
// collapse to DENY. It never panics and never returns an error that could be
// mistaken for an allow.
func (e *Engine) Authorize(ctx context.Context, req *Request) *Decision {
	traceID := e.traceIDFunc()
	if req == nil {
		return e.finish(ctx, &Request{}, e.deny(traceID, CodeMalformedPath, "empty request", ""))
	}
	if !req.Operation.valid() {
		return e.finish(ctx, req, e.deny(traceID, CodeUnsupportedOperation, "unsupported operation", ""))
	}

	path, err := ParsePath(req.Path)
	if err != nil {
		return e.finish(ctx, req, e.deny(traceID, CodeMalformedPath, "malformed path", ""))
	}

	rule, params, ok := e.match(req.Path, path)
	if !ok {
		return e.finish(ctx, req, e.deny(traceID, CodeNoMatchingRule, "no matching rule", ""))
	}

	refs, err := e.resolveReferences(ctx, rule, params)
	if err != nil {
		code := CodeReferenceUnresolved
		reason := "reference unresolved"
		if errors.Is(err, ErrDependencyTooDeep) {
			code = CodeDependencyTooDeep
			reason = "dependency chain too deep"
		}
		e.logger.Debug("reference resolution failed", "path", req.Path, "error", err.Error())
		return e.finish(ctx, req, e.deny(traceID, code, reason, rule.Pattern))
	}

	if req.Operation.IsWrite() && rule.Schema != nil {
		if errs := rule.Schema.Validate(req.Incoming); len(errs) > 0 {
			return e.finish(ctx, req, e.deny(traceID, CodeSchemaViolation, errs[0].Error(), rule.Pattern))
		}
	}

	pred, ok := rule.compiled[req.Operation]
	if !ok {
		return e.finish(ctx, req, e.deny(traceID, CodePredicateDenied, "operation not permitted", rule.Pattern))
	}

	evalCtx := &EvalContext{
		Principal: &req.Principal,
		Existing:  req.Existing,
		Incoming:  req.Incoming,
		Refs:      refs,
		Params:    params,
	}
	allowed, err := pred(evalCtx)
	if err != nil || !allowed {
		return e.finish(ctx, req, e.deny(traceID, CodePredicateDenied, "predicate denied", rule.Pattern))
	}

	return e.finish(ctx, req, &Decision{
		Allowed:     true,
		Reason:      "predicate allowed",
		MatchedRule: rule.Pattern,
		TraceID:     traceID,
		Timestamp:   time.Now(),
	})
}

func (e *Engine) deny(traceID string, code DenyCode, reason, pattern string) *Decision {
	return &Decision{
		Allowed:     false,
		Reason:      reason,
		Code:        code,
		MatchedRule: pattern,
		TraceID:     traceID,
		Timestamp:   time.Now(),
	}
}

// match resolves the collection rule for a path, consulting the optional
// memoization cache first. The rule table is immutable, so cached matches
// (including misses) never go stale.
func (e *Engine) match(raw string, path Path) (*CollectionRule, PathParams, bool) {
	if e.matchCache != nil {
		if v, ok := e.matchCache.Get(raw); ok {
			m := v.(*cachedMatch)
			return m.rule, m.params, m.rule != nil
		}
	}
	rule, params, ok := e.ruleset.Match(path)
	if e.matchCache != nil {
		cost := int64(1 + len(params))
		e.matchCache.Set(raw, &cachedMatch{rule: rule, params: params}, cost)
	}
	return rule, params, ok
}

type cachedMatch struct {
	rule   *CollectionRule
	params PathParams
}

// ============================================================================
// DECISION LOG FAN-OUT
// ============================================================================

// finish records the decision and hands it back. Auditing is fire-and-forget:
// a full queue drops the entry rather than blocking the decision path.
func (e *Engine) finish(ctx context.Context, req *Request, dec *Decision) *Decision {
	e.logger.Info("decision",
		"trace_id", dec.TraceID,
		"principal", req.Principal.ID,
		"authenticated", req.Principal.Authenticated,
		"operation", string(req.Operation),
		"path", req.Path,
		"allowed", dec.Allowed,
		"code", string(dec.Code),
		"reason", dec.Reason,
		"rule", dec.MatchedRule,
	)
	if e.sink != nil {
		entry := AuditEntry{
			ID:        uuid.NewString(),
			TraceID:   dec.TraceID,
			Timestamp: dec.Timestamp,
			Principal: req.Principal,
			Operation: req.Operation,
			Path:      req.Path,
			Decision:  dec,
		}
		select {
		case e.auditCh <- entry:
		default:
			// drop instead of blocking the authorization path
		}
	}
	return dec
}

func (e *Engine) auditWorker() {
	defer close(e.auditDone)
	bg := context.Background()
	for entry := range e.auditCh {
		if err := e.sink.Record(bg, &entry); err != nil {
			e.logger.Debug("audit sink error", "error", err.Error())
		}
	}
}

// BatchAuthorize evaluates multiple requests in order.
func (e *Engine) BatchAuthorize(ctx context.Context, reqs []*Request) []*Decision {
	decisions := make([]*Decision, len(reqs))
	for i, req := range reqs {
		decisions[i] = e.Authorize(ctx, req)
	}
	return decisions
}
