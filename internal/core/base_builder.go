package core

// BaseBuilder holds the predicate tree shared by query and command builders.
// Usage errors are recorded instead of returned so the fluent chain stays
// intact; every terminal operation reports them through Err.
type BaseBuilder struct {
	root *Statement
	err  error
}

// Root returns the root of the predicate tree, or nil when no Where was given.
func (b *BaseBuilder) Root() *Statement { return b.root }

// Err returns the first usage error recorded on the builder.
func (b *BaseBuilder) Err() error { return b.err }

func (b *BaseBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// where sets the root leaf, or links s with AND when a root exists.
func (b *BaseBuilder) where(s *Statement) {
	if b.root == nil {
		b.root = s
		return
	}
	b.link(AND, []*Statement{s})
}

// link appends an operator node to the root's group.
func (b *BaseBuilder) link(op Operator, stmts []*Statement) {
	if b.root == nil {
		b.setErr(WrapError(ErrNoWhere, string(op)+" called before Where"))
		return
	}
	if len(stmts) == 0 {
		return
	}
	b.root.Group = append(b.root.Group, Group(op, stmts...))
}

// group builds a child tree with fn and links its root with op.
func (b *BaseBuilder) group(op Operator, fn func(*Filter)) {
	f := &Filter{}
	fn(f)
	if f.err != nil {
		b.setErr(f.err)
		return
	}
	if f.root == nil {
		return
	}
	b.link(op, []*Statement{f.root})
}

// Filter is a standalone predicate builder passed to AndGroup / OrGroup
// callbacks.
type Filter struct {
	BaseBuilder
}

// Where sets the root leaf or ANDs another leaf onto it.
func (f *Filter) Where(key string, cmp Comparator, value any) *Filter {
	f.where(Where(key, cmp, value))
	return f
}

// WhereIn is Where with an IN list.
func (f *Filter) WhereIn(key string, values ...any) *Filter {
	f.where(WhereIn(key, values...))
	return f
}

// And links stmts to the root with AND.
func (f *Filter) And(stmts ...*Statement) *Filter {
	f.link(AND, stmts)
	return f
}

// Or links stmts to the root with OR.
func (f *Filter) Or(stmts ...*Statement) *Filter {
	f.link(OR, stmts)
	return f
}

// AndGroup links a nested group with AND.
func (f *Filter) AndGroup(fn func(*Filter)) *Filter {
	f.group(AND, fn)
	return f
}

// OrGroup links a nested group with OR.
func (f *Filter) OrGroup(fn func(*Filter)) *Filter {
	f.group(OR, fn)
	return f
}
