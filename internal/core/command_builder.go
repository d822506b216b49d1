package core

import (
	"context"
	"sort"
)

// CommandBuilder builds and runs a write against one table. Update and
// Delete refuse to run without a where clause.
//
// Example:
//
//	ok, err := db.Command("ignores").
//	    Where("guild_id", core.EQ, guildID).
//	    Delete(ctx)
type CommandBuilder struct {
	BaseBuilder
	db     *DB
	table  string
	schema *Schema
}

func newCommandBuilder(db *DB, table string) *CommandBuilder {
	return &CommandBuilder{db: db, table: table}
}

// Where sets the root leaf, or ANDs another leaf onto an existing root.
func (cb *CommandBuilder) Where(key string, cmp Comparator, value any) *CommandBuilder {
	cb.where(Where(key, cmp, value))
	return cb
}

// WhereIn is Where with an IN list.
func (cb *CommandBuilder) WhereIn(key string, values ...any) *CommandBuilder {
	cb.where(WhereIn(key, values...))
	return cb
}

// And links stmts to the root with AND.
func (cb *CommandBuilder) And(stmts ...*Statement) *CommandBuilder {
	cb.link(AND, stmts)
	return cb
}

// Or links stmts to the root with OR.
func (cb *CommandBuilder) Or(stmts ...*Statement) *CommandBuilder {
	cb.link(OR, stmts)
	return cb
}

// AndGroup links a nested group built by fn with AND.
func (cb *CommandBuilder) AndGroup(fn func(*Filter)) *CommandBuilder {
	cb.group(AND, fn)
	return cb
}

// OrGroup links a nested group built by fn with OR.
func (cb *CommandBuilder) OrGroup(fn func(*Filter)) *CommandBuilder {
	cb.group(OR, fn)
	return cb
}

// Insert writes one row. values are stringified; nil stores NULL.
func (cb *CommandBuilder) Insert(ctx context.Context, values map[string]any) (bool, error) {
	res, err := cb.run(ctx, &CommandObject{Kind: CommandInsert, Values: assignments(values)})
	return res.RowsAffected > 0, err
}

// Upsert inserts one row or, when a row with the same conflict columns
// exists, updates its other columns.
func (cb *CommandBuilder) Upsert(ctx context.Context, values map[string]any, conflict ...string) (bool, error) {
	if len(conflict) == 0 {
		return false, WrapError(ErrUsage, "upsert requires conflict columns")
	}
	res, err := cb.run(ctx, &CommandObject{Kind: CommandUpsert, Values: assignments(values), Conflict: conflict})
	return res.RowsAffected > 0, err
}

// Update sets values on every matching row.
func (cb *CommandBuilder) Update(ctx context.Context, values map[string]any) (bool, error) {
	if cb.root == nil {
		cb.setErr(WrapError(ErrNoWhere, "update"))
	}
	if len(values) == 0 {
		cb.setErr(WrapError(ErrUsage, "update without values"))
	}
	res, err := cb.run(ctx, &CommandObject{Kind: CommandUpdate, Values: assignments(values)})
	return res.RowsAffected > 0, err
}

// Delete removes every matching row.
func (cb *CommandBuilder) Delete(ctx context.Context) (bool, error) {
	if cb.root == nil {
		cb.setErr(WrapError(ErrNoWhere, "delete"))
	}
	res, err := cb.run(ctx, &CommandObject{Kind: CommandDelete})
	return res.RowsAffected > 0, err
}

func (cb *CommandBuilder) run(ctx context.Context, c *CommandObject) (CommandResult, error) {
	if err := cb.Err(); err != nil {
		return CommandResult{}, err
	}
	c.Table = cb.table
	c.Where = cb.root.Clone()
	c.Schema = cb.schema
	return cb.db.executeCommand(ctx, c)
}

// assignments orders values by column name.
func assignments(values map[string]any) []Assignment {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	out := make([]Assignment, len(cols))
	for i, col := range cols {
		out[i] = Assignment{Column: col, Value: toNullString(values[col])}
	}
	return out
}
