// Package dialects provides the SQL dialect primitives used when rendering
// predicate trees and commands: identifier quoting, positional placeholders,
// RETURNING support and UPSERT suffixes for SQLite, MySQL and PostgreSQL.
package dialects

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupported is returned when no dialect is registered for a driver name.
var ErrUnsupported = errors.New("unsupported database dialect")

// ColumnKind is the portable type of a column in a bootstrap CREATE TABLE.
type ColumnKind int

const (
	// Identity is an auto-incrementing integer primary key.
	Identity ColumnKind = iota
	// Key is a short indexed string such as a Discord snowflake.
	Key
	// Text is an unbounded nullable string.
	Text
	// Integer is a 64-bit integer defaulting to zero.
	Integer
	// Time is a timestamp stored in its fixed width text form.
	Time
)

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the canonical dialect name ("sqlite", "mysql", "postgres").
	Name() string
	QuoteIdentifier(string) string
	// Placeholder returns the bind marker for the 1-based parameter index.
	Placeholder(int) string
	// Returning returns the suffix that makes an INSERT yield the given
	// column, or "" when the driver reports generated ids through
	// sql.Result.LastInsertId instead.
	Returning(column string) string
	// Upsert returns the INSERT suffix that updates the given quoted columns
	// when a row with the same conflict columns exists. A nil update list
	// leaves the existing row untouched.
	Upsert(conflict, update []string) string
	// ColumnType returns the column definition used for kind.
	ColumnType(kind ColumnKind) string
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// GetDialect retrieves a registered dialect by driver name.
func GetDialect(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

// MustGetDialect is like GetDialect but panics for unknown names. It is meant
// for package-level initialization and tests.
func MustGetDialect(name string) Dialect {
	d, err := GetDialect(name)
	if err != nil {
		panic(err)
	}
	return d
}

func quoteWith(s, q string) string {
	return q + strings.ReplaceAll(s, q, q+q) + q
}

// onConflict renders the ON CONFLICT clause shared by SQLite and PostgreSQL;
// excluded is the pseudo table holding the rejected row.
func onConflict(conflict, update []string, excluded string) string {
	target := ""
	if len(conflict) > 0 {
		target = " (" + strings.Join(conflict, ", ") + ")"
	}
	if update == nil {
		return " ON CONFLICT" + target + " DO NOTHING"
	}
	sets := make([]string, len(update))
	for i, col := range update {
		sets[i] = col + " = " + excluded + "." + col
	}
	return " ON CONFLICT" + target + " DO UPDATE SET " + strings.Join(sets, ", ")
}

// Names lists the registered driver names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
