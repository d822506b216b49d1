package core

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/babblebot-server/server-sub000/internal/dialects"
)

// sqlStatement is a rendered statement with its positional arguments.
// Columns is parallel to Args and names the column each argument binds to.
type sqlStatement struct {
	SQL     string
	Args    []any
	Columns []string
}

func (s *sqlStatement) bind(column string, arg any) int {
	s.Args = append(s.Args, arg)
	s.Columns = append(s.Columns, column)
	return len(s.Args)
}

// sqlRenderer turns query and command objects into SQL for one dialect.
type sqlRenderer struct {
	dialect dialects.Dialect
}

func (r sqlRenderer) quote(name string) string {
	return r.dialect.QuoteIdentifier(name)
}

// quoteColumn quotes each dot separated part of a column reference.
func (r sqlRenderer) quoteColumn(name string) string {
	if name == "*" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "*" {
			parts[i] = r.quote(p)
		}
	}
	return strings.Join(parts, ".")
}

func (r sqlRenderer) placeholder(st *sqlStatement, column string, arg any) string {
	return r.dialect.Placeholder(st.bind(column, arg))
}

// where renders " WHERE ..." or "" for an empty tree.
func (r sqlRenderer) where(root *Statement, st *sqlStatement) string {
	if root == nil {
		return ""
	}
	clause := r.node(root, st)
	if clause == "" {
		return ""
	}
	return " WHERE " + clause
}

func (r sqlRenderer) node(s *Statement, st *sqlStatement) string {
	if !s.IsLeaf() {
		inner := r.groupBody(s, st)
		if inner == "" {
			return ""
		}
		return "( " + inner + " )"
	}

	var b strings.Builder
	b.WriteString(r.leaf(s, st))
	for _, child := range s.Group {
		inner := r.groupBody(child, st)
		if inner == "" {
			continue
		}
		op := child.Operator
		if op == "" {
			op = AND
		}
		b.WriteString(" " + string(op) + " ( " + inner + " )")
	}
	return b.String()
}

// groupBody renders the statements of a group joined by its operator.
func (r sqlRenderer) groupBody(g *Statement, st *sqlStatement) string {
	if g.IsLeaf() {
		return r.node(g, st)
	}
	parts := make([]string, 0, len(g.Group))
	for _, s := range g.Group {
		if p := r.node(s, st); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " "+string(g.Operator)+" ")
}

func (r sqlRenderer) leaf(s *Statement, st *sqlStatement) string {
	col := r.quoteColumn(s.Key)

	if s.Comparator.isList() {
		if len(s.Values) == 0 {
			if s.Comparator == In {
				return "1=0"
			}
			return "1=1"
		}
		phs := make([]string, len(s.Values))
		for i, v := range s.Values {
			phs[i] = r.placeholder(st, s.Key, v)
		}
		return col + " " + s.Comparator.Symbol() + " (" + strings.Join(phs, ",") + ")"
	}

	if s.Null {
		switch s.Comparator {
		case EQ:
			return col + " IS NULL"
		case NE:
			return col + " IS NOT NULL"
		}
	}

	ph := r.placeholder(st, s.Key, s.Value)
	if s.Comparator.isWord() {
		return col + " " + s.Comparator.Symbol() + " " + ph
	}
	return col + s.Comparator.Symbol() + ph
}

// query renders a SELECT.
func (r sqlRenderer) query(q *QueryObject) *sqlStatement {
	st := &sqlStatement{}
	alias := q.Alias
	if alias == "" {
		alias = DefaultAlias
	}

	cols := "*"
	if len(q.Columns) > 0 && !(len(q.Columns) == 1 && q.Columns[0] == "*") {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = r.quoteColumn(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	b.WriteString("SELECT DISTINCT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(r.quote(q.Table))
	b.WriteString(" AS ")
	b.WriteString(r.quote(alias))
	b.WriteString(r.where(q.Where, st))

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(r.quote(alias) + "." + r.quoteColumn(q.OrderBy))
		b.WriteString(" " + dir)
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}

	st.SQL = b.String()
	return st
}

// command renders an INSERT, UPDATE, DELETE or upsert.
func (r sqlRenderer) command(c *CommandObject) (*sqlStatement, error) {
	switch c.Kind {
	case CommandInsert:
		st := r.insert(c)
		st.SQL += r.returning(c)
		return st, nil
	case CommandUpsert:
		if len(c.Conflict) == 0 {
			return nil, WrapError(ErrUsage, "upsert requires conflict columns")
		}
		st := r.insert(c)
		conflict := make([]string, len(c.Conflict))
		for i, col := range c.Conflict {
			conflict[i] = r.quote(col)
		}
		var update []string
		for _, a := range c.Values {
			if !slices.Contains(c.Conflict, a.Column) {
				update = append(update, r.quote(a.Column))
			}
		}
		st.SQL += r.dialect.Upsert(conflict, update) + r.returning(c)
		return st, nil
	case CommandUpdate:
		if len(c.Values) == 0 {
			return nil, WrapError(ErrUsage, "update without values")
		}
		st := &sqlStatement{}
		sets := make([]string, len(c.Values))
		for i, a := range c.Values {
			sets[i] = r.quote(a.Column) + "=" + r.placeholder(st, a.Column, a.Value)
		}
		st.SQL = "UPDATE " + r.quote(c.Table) + " SET " + strings.Join(sets, ",") + r.where(c.Where, st)
		return st, nil
	case CommandDelete:
		st := &sqlStatement{}
		st.SQL = "DELETE FROM " + r.quote(c.Table) + r.where(c.Where, st)
		return st, nil
	}
	return nil, fmt.Errorf("%w: unknown command kind %d", ErrUsage, c.Kind)
}

func (r sqlRenderer) insert(c *CommandObject) *sqlStatement {
	st := &sqlStatement{}
	table := r.quote(c.Table)

	if len(c.Values) == 0 {
		if r.dialect.Name() == "mysql" {
			st.SQL = "INSERT INTO " + table + "() VALUES ()"
		} else {
			st.SQL = "INSERT INTO " + table + " DEFAULT VALUES"
		}
	} else {
		cols := make([]string, len(c.Values))
		phs := make([]string, len(c.Values))
		for i, a := range c.Values {
			cols[i] = r.quote(a.Column)
			phs[i] = r.placeholder(st, a.Column, a.Value)
		}
		st.SQL = "INSERT INTO " + table + "(" + strings.Join(cols, ",") + ") VALUES (" + strings.Join(phs, ",") + ")"
	}
	return st
}

func (r sqlRenderer) returning(c *CommandObject) string {
	if c.Returning == "" {
		return ""
	}
	return r.dialect.Returning(c.Returning)
}
