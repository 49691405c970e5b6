package rules

import "errors"

// DenyCode classifies why a decision denied. Codes are internal taxonomy for
// logging and tests; callers should act on Decision.Allowed and Reason only.
type DenyCode string

const (
	CodeNone                 DenyCode = ""
	CodeMalformedPath        DenyCode = "MALFORMED_PATH"
	CodeNoMatchingRule       DenyCode = "NO_MATCHING_RULE"
	CodeReferenceUnresolved  DenyCode = "REFERENCE_UNRESOLVED"
	CodeDependencyTooDeep    DenyCode = "DEPENDENCY_TOO_DEEP"
	CodeSchemaViolation      DenyCode = "SCHEMA_VIOLATION"
	CodePredicateDenied      DenyCode = "PREDICATE_DENIED"
	CodeUnsupportedOperation DenyCode = "UNSUPPORTED_OPERATION"
)

// Sentinel errors surfaced by the reference resolver. The engine converts
// both into DENY decisions; they never escape Authorize.
var (
	ErrReferenceUnresolved = errors.New("reference unresolved")
	ErrDependencyTooDeep   = errors.New("dependency chain too deep")
)
