package rules

import (
	"context"
	"fmt"
)

// DocumentStore is the read-side contract the engine consumes. GetDocument
// must return the latest committed state of the document at path: reference
// resolution decides access from parent documents (participant lists), so a
// stale snapshot could leak data to a removed participant. A nonexistent
// document is returned as a Snapshot with Exists=false, not an error.
type DocumentStore interface {
	GetDocument(ctx context.Context, path string) (*Snapshot, error)
}

// Dependency declares an ancestor document a rule needs before its predicates
// run. The referenced document lives at Collection/{value of Param} and is
// exposed to predicates as refs.<Name>.
type Dependency struct {
	Name       string
	Collection string
	Param      string
}

// maxDependencyDepth bounds declared dependency chains. The current rule set
// only resolves one level (a message's parent conversation); anything deeper
// than this bound denies with DEPENDENCY_TOO_DEEP instead of recursing.
const maxDependencyDepth = 3

// resolveReferences eagerly fetches every dependency the matched rule
// declares. Any missing document or store failure aborts with
// ErrReferenceUnresolved: a predicate must never run with an unavailable
// fact.
func (e *Engine) resolveReferences(ctx context.Context, rule *CollectionRule, params PathParams) (map[string]*Snapshot, error) {
	if len(rule.Dependencies) == 0 {
		return nil, nil
	}
	if depth := e.ruleset.dependencyDepth(rule); depth > e.maxResolveDepth {
		return nil, fmt.Errorf("%w: %s declares a chain of depth %d (max %d)",
			ErrDependencyTooDeep, rule.Pattern, depth, e.maxResolveDepth)
	}
	if e.store == nil {
		return nil, fmt.Errorf("%w: no document store configured", ErrReferenceUnresolved)
	}
	refs := make(map[string]*Snapshot, len(rule.Dependencies))
	for _, dep := range rule.Dependencies {
		id, ok := params[dep.Param]
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: dependency %s: path parameter %q not captured",
				ErrReferenceUnresolved, dep.Name, dep.Param)
		}
		docPath := dep.Collection + "/" + id
		snap, err := e.store.GetDocument(ctx, docPath)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %v", ErrReferenceUnresolved, docPath, err)
		}
		if snap == nil || !snap.Exists {
			return nil, fmt.Errorf("%w: dependency %s at %s does not exist",
				ErrReferenceUnresolved, dep.Name, docPath)
		}
		refs[dep.Name] = snap
	}
	return refs, nil
}

// dependencyDepth walks declared dependency chains through the rule table:
// a rule depending on a collection whose own rule declares dependencies forms
// a chain. Cycles count as exceeding any bound.
func (rs *Ruleset) dependencyDepth(rule *CollectionRule) int {
	return rs.depthFrom(rule, make(map[string]bool))
}

func (rs *Ruleset) depthFrom(rule *CollectionRule, visited map[string]bool) int {
	if rule == nil || len(rule.Dependencies) == 0 {
		return 0
	}
	if visited[rule.Pattern] {
		return maxDependencyDepth + 1
	}
	visited[rule.Pattern] = true
	deepest := 0
	for _, dep := range rule.Dependencies {
		d := 1 + rs.depthFrom(rs.ruleForCollection(dep.Collection), visited)
		if d > deepest {
			deepest = d
		}
		if deepest > maxDependencyDepth {
			break
		}
	}
	delete(visited, rule.Pattern)
	return deepest
}

// ruleForCollection finds the rule governing a top-level collection, used
// only for dependency chain accounting.
func (rs *Ruleset) ruleForCollection(collection string) *CollectionRule {
	for _, r := range rs.rules {
		segs := r.pattern.segments
		if len(segs) == 1 && segs[0].collection == collection {
			return r
		}
	}
	return nil
}
