package rules

// Expression combinators, used by the built-in ruleset and by programs that
// assemble rule tables in Go instead of loading files.

// Auth requires an authenticated principal.
func Auth() Expr { return &AuthExpr{} }

// HasRole requires an authenticated principal carrying the role claim.
func HasRole(r Role) Expr { return &RoleExpr{Role: r} }

// FieldEq compares a field against a literal or another field reference.
func FieldEq(field string, value any) Expr { return &EqExpr{Field: field, Value: value} }

// Member checks set membership of a field value.
func Member(item string, set any) Expr { return &MemberExpr{Item: item, Set: set} }

// All folds expressions with AND; empty input is an always-deny.
func All(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return &FalseExpr{}
	}
	expr := exprs[0]
	for _, e := range exprs[1:] {
		expr = &AndExpr{Left: expr, Right: e}
	}
	return expr
}

// Any folds expressions with OR; empty input is an always-deny.
func Any(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return &FalseExpr{}
	}
	expr := exprs[0]
	for _, e := range exprs[1:] {
		expr = &OrExpr{Left: expr, Right: e}
	}
	return expr
}

// RuleBuilder provides a fluent API for declaring a CollectionRule.
type RuleBuilder struct {
	r *CollectionRule
}

func NewRule(pattern string) *RuleBuilder {
	return &RuleBuilder{r: &CollectionRule{Pattern: pattern}}
}

func (b *RuleBuilder) Create(e Expr) *RuleBuilder { b.r.Create = e; return b }
func (b *RuleBuilder) Read(e Expr) *RuleBuilder   { b.r.Read = e; return b }
func (b *RuleBuilder) Update(e Expr) *RuleBuilder { b.r.Update = e; return b }
func (b *RuleBuilder) Delete(e Expr) *RuleBuilder { b.r.Delete = e; return b }
func (b *RuleBuilder) List(e Expr) *RuleBuilder   { b.r.List = e; return b }

// ReadList sets the same predicate for read and list, the common case.
func (b *RuleBuilder) ReadList(e Expr) *RuleBuilder {
	b.r.Read = e
	b.r.List = e
	return b
}

func (b *RuleBuilder) Schema(s *Schema) *RuleBuilder { b.r.Schema = s; return b }

func (b *RuleBuilder) DependsOn(name, collection, param string) *RuleBuilder {
	b.r.Dependencies = append(b.r.Dependencies, Dependency{Name: name, Collection: collection, Param: param})
	return b
}

func (b *RuleBuilder) Build() *CollectionRule { return b.r }

// SchemaBuilder provides a fluent API for field contracts.
type SchemaBuilder struct {
	fields []FieldSpec
}

func NewSchemaBuilder() *SchemaBuilder { return &SchemaBuilder{} }

func (b *SchemaBuilder) Required(name string, t FieldType) *SchemaBuilder {
	b.fields = append(b.fields, FieldSpec{Name: name, Type: t, Required: true})
	return b
}

func (b *SchemaBuilder) Optional(name string, t FieldType) *SchemaBuilder {
	b.fields = append(b.fields, FieldSpec{Name: name, Type: t})
	return b
}

func (b *SchemaBuilder) Nullable(name string, t FieldType) *SchemaBuilder {
	b.fields = append(b.fields, FieldSpec{Name: name, Type: t, Nullable: true})
	return b
}

func (b *SchemaBuilder) Enum(name string, required bool, values ...string) *SchemaBuilder {
	b.fields = append(b.fields, FieldSpec{Name: name, Type: TypeString, Required: required, Enum: values})
	return b
}

func (b *SchemaBuilder) Field(spec FieldSpec) *SchemaBuilder {
	b.fields = append(b.fields, spec)
	return b
}

func (b *SchemaBuilder) Build() *Schema { return NewSchema(b.fields...) }
