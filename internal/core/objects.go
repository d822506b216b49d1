package core

import "database/sql"

// DefaultAlias is the table alias used by rendered selects.
const DefaultAlias = "t"

// QueryObject is a fully built read request, independent of the backend.
type QueryObject struct {
	Table string
	Alias string
	// Columns is the projection; empty means every column.
	Columns []string
	Where   *Statement
	OrderBy string
	Desc    bool
	// Limit caps the result size; zero means no limit.
	Limit int
	// Schema is set when the query is issued for a mapped entity.
	Schema *Schema
}

// CommandKind selects the write a CommandObject performs.
type CommandKind int

// Supported commands.
const (
	CommandInsert CommandKind = iota
	CommandUpdate
	CommandDelete
	CommandUpsert
)

// String returns the statement keyword for the command.
func (k CommandKind) String() string {
	switch k {
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	case CommandUpsert:
		return "UPSERT"
	}
	return "UNKNOWN"
}

// Assignment is one column/value pair of an insert or update.
type Assignment struct {
	Column string
	Value  sql.NullString
}

// CommandObject is a fully built write request.
type CommandObject struct {
	Kind   CommandKind
	Table  string
	Values []Assignment
	Where  *Statement
	// Conflict lists the unique columns an upsert resolves on.
	Conflict []string
	// Returning names an auto-increment column whose generated value the
	// backend should report on insert.
	Returning string
	Schema    *Schema
}

// Columns returns the assigned column names in order.
func (c *CommandObject) Columns() []string {
	cols := make([]string, len(c.Values))
	for i, a := range c.Values {
		cols[i] = a.Column
	}
	return cols
}

// CommandResult reports the outcome of a write.
type CommandResult struct {
	RowsAffected int64
	// LastInsertID is the generated auto-increment value when HasLastInsertID is set.
	LastInsertID    int64
	HasLastInsertID bool
}
