package core

// Comparator is the relation a leaf statement tests between a column and
// its value.
type Comparator int

// Supported comparators.
const (
	EQ Comparator = iota
	NE
	LT
	LTE
	GT
	GTE
	Like
	NotLike
	In
	NotIn
)

var comparatorSymbols = [...]string{
	EQ:      "=",
	NE:      "<>",
	LT:      "<",
	LTE:     "<=",
	GT:      ">",
	GTE:     ">=",
	Like:    "LIKE",
	NotLike: "NOT LIKE",
	In:      "IN",
	NotIn:   "NOT IN",
}

// Symbol returns the SQL symbol of the comparator.
func (c Comparator) Symbol() string {
	if c < 0 || int(c) >= len(comparatorSymbols) {
		return "="
	}
	return comparatorSymbols[c]
}

// String implements fmt.Stringer.
func (c Comparator) String() string { return c.Symbol() }

// isWord reports whether the symbol is a keyword that needs surrounding spaces.
func (c Comparator) isWord() bool {
	return c == Like || c == NotLike || c == In || c == NotIn
}

// isList reports whether the comparator takes a list of values.
func (c Comparator) isList() bool { return c == In || c == NotIn }

// Operator joins grouped statements. The zero value marks a leaf.
type Operator string

// Supported operators.
const (
	AND Operator = "AND"
	OR  Operator = "OR"
)

// Statement is one node of a predicate tree.
//
// A leaf carries Key, Comparator and Value (or Values for IN lists) and may
// own a Group of operator nodes that extend it: for a root r with group
// [AND(b), OR(c)] the rendered filter is `r AND ( b ) OR ( c )`. An operator
// node has an Operator and a Group of statements joined by that operator.
type Statement struct {
	Key        string
	Comparator Comparator
	Value      string
	Values     []string
	// Null is set when the leaf compares against NULL.
	Null     bool
	Operator Operator
	Group    []*Statement
}

// Where returns a leaf statement comparing key against value. The value is
// converted to its stored string form; a nil value compares against NULL.
// For In and NotIn, value may be a slice; any other value is a one-element list.
func Where(key string, cmp Comparator, value any) *Statement {
	s := &Statement{Key: key, Comparator: cmp}
	if cmp.isList() {
		s.Values = stringifyList(value)
		return s
	}
	v, ok := stringify(value)
	s.Value = v
	s.Null = !ok
	return s
}

// WhereIn returns an IN leaf over values.
func WhereIn(key string, values ...any) *Statement {
	return Where(key, In, values)
}

// WhereNotIn returns a NOT IN leaf over values.
func WhereNotIn(key string, values ...any) *Statement {
	return Where(key, NotIn, values)
}

// Group returns an operator node joining stmts with op.
func Group(op Operator, stmts ...*Statement) *Statement {
	return &Statement{Operator: op, Group: stmts}
}

// IsLeaf reports whether the statement is a comparison rather than an
// operator node.
func (s *Statement) IsLeaf() bool { return s.Operator == "" }

// Clone returns a deep copy of the tree rooted at s.
func (s *Statement) Clone() *Statement {
	if s == nil {
		return nil
	}
	c := *s
	if s.Values != nil {
		c.Values = append([]string(nil), s.Values...)
	}
	if s.Group != nil {
		c.Group = make([]*Statement, len(s.Group))
		for i, g := range s.Group {
			c.Group[i] = g.Clone()
		}
	}
	return &c
}

// Leaves returns every leaf of the tree in render order.
func (s *Statement) Leaves() []*Statement {
	if s == nil {
		return nil
	}
	var out []*Statement
	if s.IsLeaf() {
		out = append(out, s)
	}
	for _, g := range s.Group {
		out = append(out, g.Leaves()...)
	}
	return out
}

func stringifyList(value any) []string {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []int:
		for _, x := range v {
			items = append(items, x)
		}
	case []int64:
		for _, x := range v {
			items = append(items, x)
		}
	default:
		items = []any{value}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if str, ok := stringify(it); ok {
			out = append(out, str)
		}
	}
	return out
}
