package core

import (
	"database/sql"
	"sort"
)

// Row is one result row keyed by column name. Every value is carried as a
// nullable string; typed conversion happens in the model layer.
//
// Example:
//
//	rows, _ := db.Query("ignores").Where("guild_id", core.EQ, guildID).Get(ctx)
//	for _, r := range rows {
//	    channel := r.String("channel_id") // "" if NULL
//	}
type Row map[string]sql.NullString

// String returns the string value for the given column.
// Returns empty string if the column doesn't exist or is NULL.
func (r Row) String(column string) string {
	if v, ok := r[column]; ok && v.Valid {
		return v.String
	}
	return ""
}

// IsNull checks if the value for the given column is NULL or doesn't exist.
func (r Row) IsNull(column string) bool {
	v, ok := r[column]
	return !ok || !v.Valid
}

// Has checks if the column exists in the row (regardless of NULL status).
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Get returns the raw value for the given column and whether it exists.
func (r Row) Get(column string) (sql.NullString, bool) {
	v, ok := r[column]
	return v, ok
}

// Columns returns the column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// key returns a stable identity for distinct filtering on backends without
// native DISTINCT.
func (r Row) key() string {
	var b []byte
	for _, col := range r.Columns() {
		v := r[col]
		b = append(b, col...)
		if v.Valid {
			b = append(b, '=')
			b = append(b, v.String...)
		} else {
			b = append(b, '!')
		}
		b = append(b, 0)
	}
	return string(b)
}

func nullValue() sql.NullString { return sql.NullString{} }

func stringValue(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
