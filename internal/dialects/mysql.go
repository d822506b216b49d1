package dialects

import "strings"

type mysql struct{}

func init() {
	RegisterDialect("mysql", mysql{})
}

func (mysql) Name() string { return "mysql" }

func (mysql) QuoteIdentifier(s string) string { return quoteWith(s, "`") }

func (mysql) Placeholder(int) string { return "?" }

// Returning is empty: AUTO_INCREMENT values come back via LastInsertId.
func (mysql) Returning(string) string { return "" }

// Upsert uses ON DUPLICATE KEY UPDATE, which matches any unique key, so the
// conflict columns are not rendered. MySQL has no DO NOTHING form; a nil
// update list yields a plain INSERT.
func (mysql) Upsert(_, update []string) string {
	if update == nil {
		return ""
	}
	sets := make([]string, len(update))
	for i, col := range update {
		sets[i] = col + " = VALUES(" + col + ")"
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// ColumnType keeps indexed strings within the 767 byte utf8mb4 key limit.
func (mysql) ColumnType(kind ColumnKind) string {
	switch kind {
	case Identity:
		return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case Key:
		return "VARCHAR(191) NOT NULL DEFAULT ''"
	case Integer:
		return "BIGINT NOT NULL DEFAULT 0"
	case Time:
		return "VARCHAR(40)"
	}
	return "TEXT"
}
