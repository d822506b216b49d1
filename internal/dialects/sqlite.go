package dialects

type sqlite struct{}

func init() {
	RegisterDialect("sqlite", sqlite{})
	RegisterDialect("sqlite3", sqlite{})
}

func (sqlite) Name() string { return "sqlite" }

func (sqlite) QuoteIdentifier(s string) string { return quoteWith(s, `"`) }

func (sqlite) Placeholder(int) string { return "?" }

// Returning is empty: both SQLite drivers report rowids via LastInsertId.
func (sqlite) Returning(string) string { return "" }

func (sqlite) Upsert(conflict, update []string) string {
	return onConflict(conflict, update, "excluded")
}

func (sqlite) ColumnType(kind ColumnKind) string {
	switch kind {
	case Identity:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case Key:
		return "TEXT NOT NULL DEFAULT ''"
	case Integer:
		return "INTEGER NOT NULL DEFAULT 0"
	}
	return "TEXT"
}
