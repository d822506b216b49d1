package dialects

import "strconv"

type postgres struct{}

func init() {
	RegisterDialect("postgres", postgres{})
	RegisterDialect("postgresql", postgres{})
}

func (postgres) Name() string { return "postgres" }

func (postgres) QuoteIdentifier(s string) string { return quoteWith(s, `"`) }

// Placeholder numbers parameters from $1.
func (postgres) Placeholder(index int) string { return "$" + strconv.Itoa(index) }

// Returning appends a RETURNING clause; lib/pq does not implement LastInsertId.
func (d postgres) Returning(column string) string {
	return " RETURNING " + d.QuoteIdentifier(column)
}

func (postgres) Upsert(conflict, update []string) string {
	return onConflict(conflict, update, "EXCLUDED")
}

func (postgres) ColumnType(kind ColumnKind) string {
	switch kind {
	case Identity:
		return "BIGSERIAL PRIMARY KEY"
	case Key:
		return "TEXT NOT NULL DEFAULT ''"
	case Integer:
		return "BIGINT NOT NULL DEFAULT 0"
	}
	return "TEXT"
}
