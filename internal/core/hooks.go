package core

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/babblebot-server/server-sub000/internal/logger"
	"github.com/babblebot-server/server-sub000/internal/tracer"
)

// QueryEvent contains information about an executed query or command.
// This is passed to QueryHook callbacks for logging, metrics, or tracing.
type QueryEvent struct {
	// Statement is the executed SQL, or a short description for document
	// backends such as `find ignores {"guild_id":{"$eq":"1"}}`.
	Statement string
	// Args are the bound parameters with protected values masked.
	Args []any
	// Duration is how long the statement took to execute
	Duration time.Duration
	// RowsAffected is the number of rows affected (for INSERT/UPDATE/DELETE)
	RowsAffected int64
	// Rows is the number of rows returned (for SELECT)
	Rows int
	// Error is any error that occurred during execution (nil on success)
	Error error
	// Operation is SELECT, INSERT, UPDATE, DELETE or UPSERT.
	Operation string
	Table     string
}

// QueryHook is a callback function invoked after each statement execution.
//
// Example:
//
//	db, _ := babble.OpenSQL("sqlite", ":memory:",
//	    babble.WithQueryHook(func(ctx context.Context, e babble.QueryEvent) {
//	        slog.Info("query", "sql", e.Statement, "duration", e.Duration, "err", e.Error)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

// observer is the instrumentation shared by the built-in connections:
// tracing spans, structured logs with masked parameters, and the query hook.
type observer struct {
	logger    logger.Logger
	tracer    tracer.Tracer
	sanitizer *logger.Sanitizer
	hook      QueryHook
	system    string
}

func newObserver(system string) *observer {
	return &observer{
		logger:    &logger.NoopLogger{},
		tracer:    &tracer.NoopTracer{},
		sanitizer: logger.NewSanitizer(nil),
		system:    system,
	}
}

// observation is one in-flight statement.
type observation struct {
	o       *observer
	ctx     context.Context
	span    tracer.Span
	start   time.Time
	op      string
	table   string
	stmt    string
	args    []any
	columns []string
	schema  *Schema
}

func (o *observer) begin(ctx context.Context, spanName, op, table string) (context.Context, *observation) {
	ctx, span := o.tracer.StartSpan(ctx, spanName)
	return ctx, &observation{
		o:     o,
		ctx:   ctx,
		span:  span,
		start: time.Now(),
		op:    op,
		table: table,
	}
}

// statement records what is being executed. columns is parallel to args.
func (ob *observation) statement(stmt string, args []any, columns []string, schema *Schema) {
	ob.stmt = stmt
	ob.args = plainArgs(args)
	ob.columns = columns
	ob.schema = schema
}

// end closes the span, logs the outcome and fires the hook.
func (ob *observation) end(rows int, affected int64, err error) {
	o := ob.o
	duration := time.Since(ob.start)
	masked := o.sanitizer.MaskParams(ob.columns, ob.args, ob.schema.protectedColumns())

	tracer.Finish(ob.span, &tracer.Metadata{
		Statement:    ob.stmt,
		Duration:     duration,
		RowsAffected: affected,
		Rows:         rows,
		Error:        err,
		System:       o.system,
		Operation:    ob.op,
		Table:        ob.table,
	})

	if err != nil {
		o.logger.Error("statement execution failed",
			"sql", ob.stmt,
			"params", o.sanitizer.FormatParams(masked),
			"duration_ms", duration.Milliseconds(),
			"database", o.system,
			"error", err)
	} else {
		o.logger.Info("statement executed",
			"sql", ob.stmt,
			"params", o.sanitizer.FormatParams(masked),
			"duration_ms", duration.Milliseconds(),
			"database", o.system,
			"rows", rows,
			"rows_affected", affected)
	}

	if o.hook != nil {
		o.hook(ob.ctx, QueryEvent{
			Statement:    ob.stmt,
			Args:         masked,
			Duration:     duration,
			RowsAffected: affected,
			Rows:         rows,
			Error:        err,
			Operation:    ob.op,
			Table:        ob.table,
		})
	}
}

// plainArgs unwraps sql.NullString arguments for logging.
func plainArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if ns, ok := a.(sql.NullString); ok {
			if ns.Valid {
				out[i] = ns.String
			}
			continue
		}
		out[i] = a
	}
	return out
}

// detectOperation attempts to detect the SQL operation type from the query string.
// Returns one of: SELECT, INSERT, UPDATE, DELETE, CREATE, or UNKNOWN.
func detectOperation(query string) string {
	query = strings.TrimSpace(strings.ToUpper(query))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE"} {
		if strings.HasPrefix(query, op) {
			return op
		}
	}
	return "UNKNOWN"
}
