// Package models holds the configuration BabbleBot persists per guild:
// ignore rules, announcement channels and plugin owned key/value records.
package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/babblebot-server/server-sub000/internal/core"
	"github.com/babblebot-server/server-sub000/internal/dialects"
	"github.com/babblebot-server/server-sub000/internal/logger"
)

type column struct {
	name   string
	kind   dialects.ColumnKind
	unique bool
}

type table struct {
	name    string
	columns []column
	// uniques are table level unique constraints.
	uniques [][]string
}

var tables = []table{
	{
		name: "ignores",
		columns: []column{
			{name: "id", kind: dialects.Identity},
			{name: "guild_id", kind: dialects.Key},
			{name: "channel_id", kind: dialects.Key},
			{name: "user_id", kind: dialects.Key},
			{name: "ignored_by", kind: dialects.Key},
			{name: "created_at", kind: dialects.Integer},
		},
	},
	{
		name: "announcement_channels",
		columns: []column{
			{name: "id", kind: dialects.Identity},
			{name: "guild_id", kind: dialects.Key, unique: true},
			{name: "channel_id", kind: dialects.Key},
			{name: "created_at", kind: dialects.Time},
			{name: "updated_at", kind: dialects.Time},
		},
	},
	{
		name: "plugin_models",
		columns: []column{
			{name: "id", kind: dialects.Identity},
			{name: "plugin", kind: dialects.Key},
			{name: "guild_id", kind: dialects.Key},
			{name: "key", kind: dialects.Key},
			{name: "value", kind: dialects.Text},
			{name: "secret", kind: dialects.Text},
		},
		uniques: [][]string{{"plugin", "guild_id", "key"}},
	},
}

// createTableSQL renders the bootstrap statement of t for a dialect.
func createTableSQL(d dialects.Dialect, t table) string {
	var defs []string
	for _, c := range t.columns {
		def := d.QuoteIdentifier(c.name) + " " + d.ColumnType(c.kind)
		if c.unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	for _, cols := range t.uniques {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = d.QuoteIdentifier(c)
		}
		defs = append(defs, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdentifier(t.name), strings.Join(defs, ", "))
}

// CreateTables creates the BabbleBot tables when they do not exist. It is a
// no-op on document backends, where collections appear on first write.
func CreateTables(ctx context.Context, db *core.DB) error {
	sc, ok := db.Connection().(*core.SQLConnection)
	if !ok {
		db.Logger().Debug("skipping table bootstrap", "database", db.Name())
		return nil
	}
	log := logger.With(db.Logger(), "database", db.Name())
	for _, t := range tables {
		if _, err := db.Exec(ctx, createTableSQL(sc.Dialect(), t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
		log.Debug("table ready", "table", t.name)
	}
	return nil
}
