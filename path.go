package rules

import (
	"fmt"
	"strings"
)

// Segment is one (collection, document) pair of a document path.
type Segment struct {
	Collection string
	DocID      string
}

// Path is a parsed document path: an alternating sequence of collection and
// document identifiers, e.g. conversations/c1/messages/m1.
type Path []Segment

// ParsePath parses a raw slash-separated path. The path must have an even,
// non-zero number of components with no empty components.
func ParsePath(raw string) (Path, error) {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(raw, "/")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("path %q does not alternate collection/document", raw)
	}
	p := make(Path, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		if parts[i] == "" || parts[i+1] == "" {
			return nil, fmt.Errorf("path %q has an empty component", raw)
		}
		p = append(p, Segment{Collection: parts[i], DocID: parts[i+1]})
	}
	return p, nil
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s.Collection)
		b.WriteByte('/')
		b.WriteString(s.DocID)
	}
	return b.String()
}

// Depth is the number of (collection, document) pairs.
func (p Path) Depth() int { return len(p) }

// Collection returns the leaf collection name.
func (p Path) Collection() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].Collection
}

// PathParams holds the wildcard captures of a pattern match.
type PathParams map[string]string

// patternSegment is one pair of a collection pattern. The document slot is
// either a literal ID or a named {param} wildcard.
type patternSegment struct {
	collection string
	param      string // non-empty for {param} slots
	literal    string // non-empty for literal document IDs
}

type pattern struct {
	raw      string
	segments []patternSegment
}

// parsePattern parses a declared collection pattern such as
// "conversations/{conversationId}/messages/{messageId}". Collection names are
// always literal; document slots are {name} wildcards or literal IDs.
func parsePattern(raw string) (*pattern, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	parts := strings.Split(trimmed, "/")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("pattern %q does not alternate collection/document", raw)
	}
	pat := &pattern{raw: raw, segments: make([]patternSegment, 0, len(parts)/2)}
	seen := make(map[string]bool)
	for i := 0; i < len(parts); i += 2 {
		coll, doc := parts[i], parts[i+1]
		if coll == "" || doc == "" {
			return nil, fmt.Errorf("pattern %q has an empty component", raw)
		}
		if strings.ContainsAny(coll, "{}") {
			return nil, fmt.Errorf("pattern %q: collection names must be literal", raw)
		}
		seg := patternSegment{collection: coll}
		if strings.HasPrefix(doc, "{") && strings.HasSuffix(doc, "}") {
			name := doc[1 : len(doc)-1]
			if name == "" {
				return nil, fmt.Errorf("pattern %q has an unnamed wildcard", raw)
			}
			if seen[name] {
				return nil, fmt.Errorf("pattern %q repeats wildcard %q", raw, name)
			}
			seen[name] = true
			seg.param = name
		} else if strings.ContainsAny(doc, "{}") {
			return nil, fmt.Errorf("pattern %q has a malformed wildcard %q", raw, doc)
		} else {
			seg.literal = doc
		}
		pat.segments = append(pat.segments, seg)
	}
	return pat, nil
}

// match tests the pattern against a parsed path. Matching is exact-depth;
// wildcard captures are returned as params.
func (pat *pattern) match(p Path) (PathParams, bool) {
	if len(p) != len(pat.segments) {
		return nil, false
	}
	var params PathParams
	for i, seg := range pat.segments {
		if p[i].Collection != seg.collection {
			return nil, false
		}
		if seg.literal != "" {
			if p[i].DocID != seg.literal {
				return nil, false
			}
			continue
		}
		if params == nil {
			params = make(PathParams, len(pat.segments))
		}
		params[seg.param] = p[i].DocID
	}
	if params == nil {
		params = PathParams{}
	}
	return params, true
}

// specificity orders overlapping patterns: the number of leading literal
// document slots wins first, then the total literal count. Declaration order
// breaks remaining ties in Ruleset.Match.
func (pat *pattern) specificity() (prefix, total int) {
	counting := true
	for _, seg := range pat.segments {
		if seg.literal != "" {
			total++
			if counting {
				prefix++
			}
		} else {
			counting = false
		}
	}
	return prefix, total
}
