package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/babblebot-server/server-sub000/internal/cache"
	"github.com/babblebot-server/server-sub000/internal/dialects"
	"github.com/babblebot-server/server-sub000/internal/tracer"
)

// SQLConnection runs objects on a database/sql pool. Statements are prepared
// once and kept in an LRU cache; every column is scanned as sql.NullString.
type SQLConnection struct {
	sqlDB      *sql.DB
	driverName string
	dialect    dialects.Dialect
	renderer   sqlRenderer
	stmtCache  *cache.LRU[*sql.Stmt]
	prepareMu  sync.Mutex
	obs        *observer
}

// NewSQLConnection wraps an open pool. driverName selects the dialect.
func NewSQLConnection(driverName string, sqlDB *sql.DB, stmtCacheCapacity int) (*SQLConnection, error) {
	dialect, err := dialects.GetDialect(driverName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, driverName)
	}
	return &SQLConnection{
		sqlDB:      sqlDB,
		driverName: driverName,
		dialect:    dialect,
		renderer:   sqlRenderer{dialect: dialect},
		stmtCache:  cache.New[*sql.Stmt](stmtCacheCapacity),
		obs:        newObserver(dialect.Name()),
	}, nil
}

func (c *SQLConnection) setObserver(o *observer) {
	o.system = c.dialect.Name()
	c.obs = o
}

// Name returns the dialect name.
func (c *SQLConnection) Name() string { return c.dialect.Name() }

// Dialect returns the SQL dialect in use.
func (c *SQLConnection) Dialect() dialects.Dialect { return c.dialect }

// DB returns the underlying pool.
func (c *SQLConnection) DB() *sql.DB { return c.sqlDB }

// StmtCacheStats returns prepared statement cache statistics.
func (c *SQLConnection) StmtCacheStats() cache.Stats { return c.stmtCache.Stats() }

// Ping verifies the pool can reach the database.
func (c *SQLConnection) Ping(ctx context.Context) error {
	if err := c.sqlDB.PingContext(ctx); err != nil {
		return newExecutionError("ping", err)
	}
	return nil
}

// Close releases cached statements and the pool.
func (c *SQLConnection) Close() error {
	c.stmtCache.Clear()
	return c.sqlDB.Close()
}

// prepare returns a cached prepared statement for query.
func (c *SQLConnection) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmtCache.Get(query); ok {
		return stmt, nil
	}

	// Replacing a cached statement closes it, so misses are serialized.
	c.prepareMu.Lock()
	defer c.prepareMu.Unlock()
	if stmt, ok := c.stmtCache.Get(query); ok {
		return stmt, nil
	}
	stmt, err := c.sqlDB.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.stmtCache.Set(query, stmt)
	return stmt, nil
}

// ExecuteQuery renders and runs a SELECT.
func (c *SQLConnection) ExecuteQuery(ctx context.Context, q *QueryObject) (rows []Row, err error) {
	st := c.renderer.query(q)

	ctx, ob := c.obs.begin(ctx, tracer.SpanQuery, "SELECT", q.Table)
	ob.statement(st.SQL, st.Args, st.Columns, q.Schema)
	defer func() { ob.end(len(rows), 0, err) }()

	stmt, err := c.prepare(ctx, st.SQL)
	if err != nil {
		return nil, newExecutionError("prepare", err)
	}
	sqlRows, err := stmt.QueryContext(ctx, st.Args...)
	if err != nil {
		return nil, newExecutionError("query", err)
	}
	defer sqlRows.Close()

	rows, err = scanRows(sqlRows)
	if err != nil {
		return nil, newExecutionError("scan", err)
	}
	return rows, nil
}

// ExecuteCommand renders and runs an INSERT, UPDATE, DELETE or upsert.
func (c *SQLConnection) ExecuteCommand(ctx context.Context, cmd *CommandObject) (res CommandResult, err error) {
	st, err := c.renderer.command(cmd)
	if err != nil {
		return res, err
	}

	ctx, ob := c.obs.begin(ctx, tracer.SpanCommand, cmd.Kind.String(), cmd.Table)
	ob.statement(st.SQL, st.Args, st.Columns, cmd.Schema)
	defer func() { ob.end(0, res.RowsAffected, err) }()

	stmt, err := c.prepare(ctx, st.SQL)
	if err != nil {
		return res, newExecutionError("prepare", err)
	}

	if cmd.Returning != "" && c.dialect.Returning(cmd.Returning) != "" {
		var id sql.NullInt64
		if err := stmt.QueryRowContext(ctx, st.Args...).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return res, nil
			}
			return res, newExecutionError("exec", err)
		}
		res.RowsAffected = 1
		res.LastInsertID = id.Int64
		res.HasLastInsertID = id.Valid
		return res, nil
	}

	result, err := stmt.ExecContext(ctx, st.Args...)
	if err != nil {
		return res, newExecutionError("exec", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	if cmd.Kind == CommandInsert || cmd.Kind == CommandUpsert {
		if id, err := result.LastInsertId(); err == nil {
			res.LastInsertID = id
			res.HasLastInsertID = true
		}
	}
	return res, nil
}

// Exec runs a raw statement outside the object model, e.g. table bootstrap DDL.
func (c *SQLConnection) Exec(ctx context.Context, query string, args ...any) (res CommandResult, err error) {
	ctx, ob := c.obs.begin(ctx, tracer.SpanCommand, detectOperation(query), "")
	ob.statement(query, args, nil, nil)
	defer func() { ob.end(0, res.RowsAffected, err) }()

	result, err := c.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return res, newExecutionError("exec", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	return res, nil
}

// scanRows reads every row into a Row, all values as sql.NullString.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		scanDests := make([]any, len(columns))
		for i := range values {
			scanDests[i] = &values[i]
		}
		if err := rows.Scan(scanDests...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
