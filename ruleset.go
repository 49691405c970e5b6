package rules

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// RULE TABLE
// ============================================================================

// Ruleset is the immutable collection rule table. It is built once at process
// start (from Go builders or a declarative file) and never mutated; the
// engine shares it freely across concurrent evaluations.
type Ruleset struct {
	rules []*CollectionRule
}

// NewRuleset parses patterns, compiles predicates and validates the table.
func NewRuleset(ruleList ...*CollectionRule) (*Ruleset, error) {
	rs := &Ruleset{rules: ruleList}
	seen := make(map[string]bool, len(ruleList))
	for _, r := range ruleList {
		if seen[r.Pattern] {
			return nil, fmt.Errorf("duplicate pattern %q", r.Pattern)
		}
		seen[r.Pattern] = true
		pat, err := parsePattern(r.Pattern)
		if err != nil {
			return nil, err
		}
		r.pattern = pat
		r.compile()
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Rules returns the declared rules in declaration order.
func (rs *Ruleset) Rules() []*CollectionRule { return rs.rules }

// Validate checks cross-rule invariants: schema specs are well formed,
// dependencies reference captured path parameters, and dependency chains stay
// within the resolver bound.
func (rs *Ruleset) Validate() error {
	for _, r := range rs.rules {
		if r.Schema != nil {
			if err := r.Schema.validateSpec(); err != nil {
				return fmt.Errorf("rule %s: %w", r.Pattern, err)
			}
		}
		for _, dep := range r.Dependencies {
			if dep.Name == "" || dep.Collection == "" || dep.Param == "" {
				return fmt.Errorf("rule %s: incomplete dependency declaration", r.Pattern)
			}
			if !rs.patternCaptures(r, dep.Param) {
				return fmt.Errorf("rule %s: dependency %s references unknown path parameter %q",
					r.Pattern, dep.Name, dep.Param)
			}
		}
		if depth := rs.dependencyDepth(r); depth > maxDependencyDepth {
			return fmt.Errorf("rule %s: dependency chain depth %d exceeds bound %d",
				r.Pattern, depth, maxDependencyDepth)
		}
	}
	return nil
}

func (rs *Ruleset) patternCaptures(r *CollectionRule, param string) bool {
	for _, seg := range r.pattern.segments {
		if seg.param == param {
			return true
		}
	}
	return false
}

// Match resolves the governing rule for a path. Overlapping patterns resolve
// longest-literal-prefix-wins; declaration order breaks full ties. No match
// means NOT_FOUND, which the engine turns into DENY.
func (rs *Ruleset) Match(p Path) (*CollectionRule, PathParams, bool) {
	var (
		best       *CollectionRule
		bestParams PathParams
		bestPrefix = -1
		bestTotal  = -1
	)
	for _, r := range rs.rules {
		params, ok := r.pattern.match(p)
		if !ok {
			continue
		}
		prefix, total := r.pattern.specificity()
		if prefix > bestPrefix || (prefix == bestPrefix && total > bestTotal) {
			best, bestParams, bestPrefix, bestTotal = r, params, prefix, total
		}
	}
	if best == nil {
		return nil, nil, false
	}
	return best, bestParams, true
}

// Checksum returns a deterministic hash of the serialized table, used for
// signing and for change detection in tooling.
func (rs *Ruleset) Checksum() string {
	data, _ := rs.ToJSON()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SignRuleset produces an ed25519 signature (base64) over the table checksum,
// so deployments can verify a distributed rule table was not tampered with.
func SignRuleset(priv ed25519.PrivateKey, rs *Ruleset) string {
	sig := ed25519.Sign(priv, []byte(rs.Checksum()))
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyRulesetSignature checks a signature produced by SignRuleset.
func VerifyRulesetSignature(pub ed25519.PublicKey, rs *Ruleset, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, []byte(rs.Checksum()), sig), nil
}

// ============================================================================
// DECLARATIVE FILE FORMAT
// ============================================================================

type rulesetFile struct {
	Rules []ruleFile `json:"rules" yaml:"rules"`
}

type ruleFile struct {
	Pattern      string      `json:"pattern" yaml:"pattern"`
	Create       string      `json:"create,omitempty" yaml:"create,omitempty"`
	Read         string      `json:"read,omitempty" yaml:"read,omitempty"`
	Update       string      `json:"update,omitempty" yaml:"update,omitempty"`
	Delete       string      `json:"delete,omitempty" yaml:"delete,omitempty"`
	List         string      `json:"list,omitempty" yaml:"list,omitempty"`
	Schema       []fieldFile `json:"schema,omitempty" yaml:"schema,omitempty"`
	Dependencies []depFile   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

type fieldFile struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Nullable bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Enum     []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

type depFile struct {
	Name       string `json:"name" yaml:"name"`
	Collection string `json:"collection" yaml:"collection"`
	Param      string `json:"param" yaml:"param"`
}

// LoadYAML builds a validated ruleset from a YAML rule table.
func LoadYAML(data []byte) (*Ruleset, error) {
	var file rulesetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse ruleset yaml: %w", err)
	}
	return fromFile(&file)
}

// LoadJSON builds a validated ruleset from a JSON rule table.
func LoadJSON(data []byte) (*Ruleset, error) {
	var file rulesetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse ruleset json: %w", err)
	}
	return fromFile(&file)
}

func fromFile(file *rulesetFile) (*Ruleset, error) {
	ruleList := make([]*CollectionRule, 0, len(file.Rules))
	for _, rf := range file.Rules {
		r := &CollectionRule{Pattern: rf.Pattern}
		for _, binding := range []struct {
			src string
			dst *Expr
		}{
			{rf.Create, &r.Create},
			{rf.Read, &r.Read},
			{rf.Update, &r.Update},
			{rf.Delete, &r.Delete},
			{rf.List, &r.List},
		} {
			if binding.src == "" {
				continue
			}
			expr, err := ParseCondition(binding.src)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rf.Pattern, err)
			}
			*binding.dst = expr
		}
		if len(rf.Schema) > 0 {
			specs := make([]FieldSpec, 0, len(rf.Schema))
			for _, ff := range rf.Schema {
				specs = append(specs, FieldSpec{
					Name:     ff.Name,
					Type:     FieldType(ff.Type),
					Required: ff.Required,
					Nullable: ff.Nullable,
					Enum:     ff.Enum,
				})
			}
			r.Schema = NewSchema(specs...)
		}
		for _, df := range rf.Dependencies {
			r.Dependencies = append(r.Dependencies, Dependency{
				Name:       df.Name,
				Collection: df.Collection,
				Param:      df.Param,
			})
		}
		ruleList = append(ruleList, r)
	}
	return NewRuleset(ruleList...)
}

func (rs *Ruleset) toFile() *rulesetFile {
	file := &rulesetFile{Rules: make([]ruleFile, 0, len(rs.rules))}
	for _, r := range rs.rules {
		rf := ruleFile{Pattern: r.Pattern}
		if r.Create != nil {
			rf.Create = r.Create.String()
		}
		if r.Read != nil {
			rf.Read = r.Read.String()
		}
		if r.Update != nil {
			rf.Update = r.Update.String()
		}
		if r.Delete != nil {
			rf.Delete = r.Delete.String()
		}
		if r.List != nil {
			rf.List = r.List.String()
		}
		if r.Schema != nil {
			for _, f := range r.Schema.Fields() {
				rf.Schema = append(rf.Schema, fieldFile{
					Name:     f.Name,
					Type:     string(f.Type),
					Required: f.Required,
					Nullable: f.Nullable,
					Enum:     f.Enum,
				})
			}
		}
		for _, dep := range r.Dependencies {
			rf.Dependencies = append(rf.Dependencies, depFile{
				Name:       dep.Name,
				Collection: dep.Collection,
				Param:      dep.Param,
			})
		}
		file.Rules = append(file.Rules, rf)
	}
	return file
}

// ToYAML exports the table in the declarative file format.
func (rs *Ruleset) ToYAML() ([]byte, error) {
	return yaml.Marshal(rs.toFile())
}

// ToJSON exports the table in the declarative file format.
func (rs *Ruleset) ToJSON() ([]byte, error) {
	return json.MarshalIndent(rs.toFile(), "", "  ")
}
