package core

import (
	"context"
	"slices"
)

// QueryBuilder builds and runs a read against one table.
// Builders are single use and not safe for concurrent use.
//
// Example:
//
//	rows, err := db.Query("ignores").
//	    Where("guild_id", core.EQ, guildID).
//	    And(core.Where("channel_id", core.EQ, channelID)).
//	    OrderBy("id").
//	    Get(ctx)
type QueryBuilder struct {
	BaseBuilder
	db      *DB
	q       QueryObject
	primary []string
}

func newQueryBuilder(db *DB, table string) *QueryBuilder {
	return &QueryBuilder{
		db:      db,
		q:       QueryObject{Table: table, Alias: DefaultAlias},
		primary: []string{"id"},
	}
}

// withSchema binds the builder to a mapped entity: the projection is fixed
// to every column and Find uses the mapped primary keys.
func (qb *QueryBuilder) withSchema(s *Schema) *QueryBuilder {
	qb.q.Schema = s
	if len(s.Primary) > 0 {
		qb.primary = make([]string, len(s.Primary))
		for i, p := range s.Primary {
			qb.primary[i] = p.Column
		}
	}
	return qb
}

// Select sets the projection. With no columns, or "*", every column is
// returned. A builder bound to an entity always selects every column; a
// narrower projection is logged and ignored.
func (qb *QueryBuilder) Select(cols ...string) *QueryBuilder {
	if len(cols) == 0 || (len(cols) == 1 && cols[0] == "*") {
		qb.q.Columns = nil
		return qb
	}
	if qb.q.Schema != nil {
		qb.db.logger.Warn("select ignored on a mapped query, selecting all columns",
			"table", qb.q.Table, "columns", cols)
		qb.q.Columns = nil
		return qb
	}
	qb.q.Columns = slices.Clone(cols)
	return qb
}

// As sets the table alias used in the rendered select.
func (qb *QueryBuilder) As(alias string) *QueryBuilder {
	if alias != "" {
		qb.q.Alias = alias
	}
	return qb
}

// PrimaryKey sets the columns Find matches against. Defaults to "id".
func (qb *QueryBuilder) PrimaryKey(cols ...string) *QueryBuilder {
	if len(cols) > 0 {
		qb.primary = slices.Clone(cols)
	}
	return qb
}

// Where sets the root leaf, or ANDs another leaf onto an existing root.
func (qb *QueryBuilder) Where(key string, cmp Comparator, value any) *QueryBuilder {
	qb.where(Where(key, cmp, value))
	return qb
}

// WhereIn is Where with an IN list.
func (qb *QueryBuilder) WhereIn(key string, values ...any) *QueryBuilder {
	qb.where(WhereIn(key, values...))
	return qb
}

// And links stmts to the root with AND. Calling And before Where records
// ErrNoWhere.
func (qb *QueryBuilder) And(stmts ...*Statement) *QueryBuilder {
	qb.link(AND, stmts)
	return qb
}

// Or links stmts to the root with OR. Calling Or before Where records
// ErrNoWhere.
func (qb *QueryBuilder) Or(stmts ...*Statement) *QueryBuilder {
	qb.link(OR, stmts)
	return qb
}

// AndGroup links a nested group built by fn with AND.
func (qb *QueryBuilder) AndGroup(fn func(*Filter)) *QueryBuilder {
	qb.group(AND, fn)
	return qb
}

// OrGroup links a nested group built by fn with OR.
func (qb *QueryBuilder) OrGroup(fn func(*Filter)) *QueryBuilder {
	qb.group(OR, fn)
	return qb
}

// OrderBy sorts ascending by col.
func (qb *QueryBuilder) OrderBy(col string) *QueryBuilder {
	qb.q.OrderBy = col
	return qb
}

// Reverse flips the sort direction to descending.
func (qb *QueryBuilder) Reverse() *QueryBuilder {
	qb.q.Desc = !qb.q.Desc
	return qb
}

// Limit caps the number of rows returned.
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	if n >= 0 {
		qb.q.Limit = n
	}
	return qb
}

// Build returns a copy of the query object.
func (qb *QueryBuilder) Build() *QueryObject {
	q := qb.q
	q.Columns = slices.Clone(qb.q.Columns)
	q.Where = qb.root.Clone()
	return &q
}

// Get runs the query and returns distinct rows. cols, when given, replace
// the projection.
func (qb *QueryBuilder) Get(ctx context.Context, cols ...string) ([]Row, error) {
	if len(cols) > 0 {
		qb.Select(cols...)
	}
	if err := qb.Err(); err != nil {
		return nil, err
	}
	return qb.db.executeQuery(ctx, qb.Build())
}

// First returns the first matching row. ok is false when nothing matched.
func (qb *QueryBuilder) First(ctx context.Context, cols ...string) (Row, bool, error) {
	rows, err := qb.Limit(1).Get(ctx, cols...)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

// Find matches the primary key against id and returns the first row. For
// composite keys, id must be a []any with one value per key column.
func (qb *QueryBuilder) Find(ctx context.Context, id any, cols ...string) (Row, bool, error) {
	qb.matchPrimary(id)
	return qb.First(ctx, cols...)
}

// FindOrFail is Find that returns ErrNotFound when nothing matched.
func (qb *QueryBuilder) FindOrFail(ctx context.Context, id any, cols ...string) (Row, error) {
	row, ok, err := qb.Find(ctx, id, cols...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return row, nil
}

func (qb *QueryBuilder) matchPrimary(id any) {
	values, composite := id.([]any)
	if !composite || len(qb.primary) == 1 {
		qb.where(Where(qb.primary[0], EQ, id))
		return
	}
	if len(values) != len(qb.primary) {
		qb.setErr(WrapError(ErrUsage, "composite key value count mismatch"))
		return
	}
	for i, col := range qb.primary {
		qb.where(Where(col, EQ, values[i]))
	}
}

// Count returns the number of matching rows.
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	rows, err := qb.Get(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Exists reports whether any row matches.
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	n, err := qb.Count(ctx)
	return n > 0, err
}

// DoesntExist reports whether no row matches.
func (qb *QueryBuilder) DoesntExist(ctx context.Context) (bool, error) {
	ok, err := qb.Exists(ctx)
	return !ok, err
}
