// Package core provides the persistence engine: predicate trees, SQL and
// document renderers, query and command builders, connections, the
// reflective model layer and typed repositories.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babblebot-server/server-sub000/internal/cache"
	"github.com/babblebot-server/server-sub000/internal/config"
	"github.com/babblebot-server/server-sub000/internal/logger"
	"github.com/babblebot-server/server-sub000/internal/tracer"
)

// IncrementStrategy selects how auto-increment values are resolved on insert.
type IncrementStrategy string

const (
	// IncrementNative lets the backend generate values: LastInsertId,
	// RETURNING, or an atomic counter document.
	IncrementNative IncrementStrategy = "native"
	// IncrementLastRow reads the highest stored value and adds one. Inserts
	// into the same table are serialized within the process.
	IncrementLastRow IncrementStrategy = "last-row"
)

// ParseIncrementStrategy parses a configured strategy name; empty means native.
func ParseIncrementStrategy(s string) (IncrementStrategy, error) {
	switch IncrementStrategy(s) {
	case "", IncrementNative:
		return IncrementNative, nil
	case IncrementLastRow:
		return IncrementLastRow, nil
	}
	return "", fmt.Errorf("%w: unknown increment strategy %q", ErrUsage, s)
}

// DB is the process-wide handle on one backend. It owns the connection and
// the logging, tracing and hook configuration shared by every builder,
// model and repository created from it.
type DB struct {
	conn      Connection
	logger    logger.Logger
	tracer    tracer.Tracer
	queryHook QueryHook
	increment IncrementStrategy

	sensitive         []string
	maxOpenConns      int
	maxIdleConns      int
	stmtCacheCapacity int
	healthInterval    time.Duration
	health            *healthChecker

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
}

// Option is a functional option for configuring DB.
type Option func(*DB)

// WithLogger sets the logger used for statements, warnings and health checks.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithTracer sets the tracer used for statement spans.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) {
		if t != nil {
			db.tracer = t
		}
	}
}

// WithQueryHook sets a callback invoked after every statement.
func WithQueryHook(hook QueryHook) Option {
	return func(db *DB) {
		db.queryHook = hook
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) {
		db.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) {
		db.maxIdleConns = n
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(capacity int) Option {
	return func(db *DB) {
		db.stmtCacheCapacity = capacity
	}
}

// WithIncrementStrategy selects how auto-increment values are resolved.
func WithIncrementStrategy(s IncrementStrategy) Option {
	return func(db *DB) {
		db.increment = s
	}
}

// WithSensitiveColumns adds columns whose values are masked in logs, on top
// of the default secret names and the protected columns of each entity.
func WithSensitiveColumns(cols ...string) Option {
	return func(db *DB) {
		db.sensitive = append(db.sensitive, cols...)
	}
}

// WithHealthCheck starts a background ping at the given interval.
func WithHealthCheck(interval time.Duration) Option {
	return func(db *DB) {
		db.healthInterval = interval
	}
}

func newDB(opts []Option) *DB {
	db := &DB{
		logger:            &logger.NoopLogger{},
		tracer:            &tracer.NoopTracer{},
		increment:         IncrementNative,
		stmtCacheCapacity: cache.DefaultCapacity,
		locks:             make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// attach binds conn and starts the optional health checker.
func (db *DB) attach(conn Connection) {
	db.conn = conn
	if o, ok := conn.(observable); ok {
		o.setObserver(&observer{
			logger:    db.logger,
			tracer:    db.tracer,
			sanitizer: logger.NewSanitizer(append(logger.DefaultSensitiveColumns(), db.sensitive...)),
			hook:      db.queryHook,
			system:    conn.Name(),
		})
	}
	if db.healthInterval > 0 {
		db.health = newHealthChecker(conn, db.logger, db.healthInterval)
		db.health.start()
	}
}

// NewDB creates a DB over an existing connection.
func NewDB(conn Connection, opts ...Option) *DB {
	db := newDB(opts)
	db.attach(conn)
	return db
}

// OpenSQL opens a database/sql pool for driverName and wraps it.
func OpenSQL(driverName, dsn string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, newExecutionError("open", err)
	}
	if isMemoryDSN(driverName, dsn) {
		sqlDB.SetMaxOpenConns(1)
		opts = append(opts, WithMaxOpenConns(1))
	}
	db, err := WrapDB(driverName, sqlDB, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// WrapDB wraps an existing *sql.DB. The caller keeps using driverName's
// dialect; Close closes sqlDB.
func WrapDB(driverName string, sqlDB *sql.DB, opts ...Option) (*DB, error) {
	db := newDB(opts)
	conn, err := NewSQLConnection(driverName, sqlDB, db.stmtCacheCapacity)
	if err != nil {
		return nil, err
	}
	if db.maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.maxOpenConns)
	}
	if db.maxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.maxIdleConns)
	}
	db.attach(conn)
	return db, nil
}

// OpenDocument connects to a MongoDB deployment and uses database.
func OpenDocument(ctx context.Context, uri, database string, opts ...Option) (*DB, error) {
	conn, err := ConnectDocument(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	return NewDB(conn, opts...), nil
}

// Open builds a DB from configuration. opts are applied after the options
// derived from cfg.
func Open(ctx context.Context, cfg config.Database, opts ...Option) (*DB, error) {
	strategy, err := ParseIncrementStrategy(cfg.Increment)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithIncrementStrategy(strategy),
		WithSensitiveColumns(cfg.SensitiveColumns...),
	}
	if cfg.MaxOpenConns > 0 {
		base = append(base, WithMaxOpenConns(cfg.MaxOpenConns))
	}
	if cfg.MaxIdleConns > 0 {
		base = append(base, WithMaxIdleConns(cfg.MaxIdleConns))
	}
	if cfg.StmtCacheCapacity > 0 {
		base = append(base, WithStmtCacheCapacity(cfg.StmtCacheCapacity))
	}
	if cfg.HealthCheckInterval > 0 {
		base = append(base, WithHealthCheck(cfg.HealthCheckInterval))
	}
	opts = append(base, opts...)

	if cfg.IsDocument() {
		return OpenDocument(ctx, cfg.DataSourceName(), cfg.Name, opts...)
	}
	db, err := OpenSQL(cfg.Driver, cfg.DataSourceName(), opts...)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isMemoryDSN(driverName, dsn string) bool {
	if !strings.HasPrefix(driverName, "sqlite") {
		return false
	}
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Connection returns the underlying connection.
func (db *DB) Connection() Connection { return db.conn }

// Name returns the backend name.
func (db *DB) Name() string { return db.conn.Name() }

// Logger returns the configured logger.
func (db *DB) Logger() logger.Logger { return db.logger }

// IncrementStrategy returns the configured auto-increment strategy.
func (db *DB) IncrementStrategy() IncrementStrategy { return db.increment }

// Query starts a query on table.
func (db *DB) Query(table string) *QueryBuilder {
	return newQueryBuilder(db, table)
}

// Command starts a write on table.
func (db *DB) Command(table string) *CommandBuilder {
	return newCommandBuilder(db, table)
}

// Exec runs a raw SQL statement. It fails with ErrUnsupportedDialect on
// document backends.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (CommandResult, error) {
	if err := db.checkOpen(); err != nil {
		return CommandResult{}, err
	}
	sc, ok := db.conn.(*SQLConnection)
	if !ok {
		return CommandResult{}, fmt.Errorf("%w: raw statements on %s", ErrUnsupportedDialect, db.conn.Name())
	}
	return sc.Exec(ctx, query, args...)
}

// Ping verifies the backend is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.conn.Ping(ctx)
}

// IsHealthy reports the result of the most recent background health check.
// It is always true when no health checker runs.
func (db *DB) IsHealthy() bool {
	if db.health == nil {
		return true
	}
	return db.health.isHealthy()
}

// LastHealthCheck returns when the background health check last ran.
func (db *DB) LastHealthCheck() time.Time {
	if db.health == nil {
		return time.Time{}
	}
	return db.health.lastCheck()
}

// Close releases the connection. Only the first call has an effect; later
// calls log a warning and return nil.
func (db *DB) Close() error {
	var err error
	first := false
	db.closeOnce.Do(func() {
		first = true
		db.closed.Store(true)
		if db.health != nil {
			db.health.shutdown()
		}
		err = db.conn.Close()
	})
	if !first {
		db.logger.Warn("database already closed", "database", db.conn.Name())
	}
	return err
}

func (db *DB) checkOpen() error {
	if db.closed.Load() {
		return WrapError(ErrUsage, "database is closed")
	}
	return nil
}

func (db *DB) executeQuery(ctx context.Context, q *QueryObject) ([]Row, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.conn.ExecuteQuery(ctx, q)
}

func (db *DB) executeCommand(ctx context.Context, c *CommandObject) (CommandResult, error) {
	if err := db.checkOpen(); err != nil {
		return CommandResult{}, err
	}
	return db.conn.ExecuteCommand(ctx, c)
}

// tableLock returns the mutex serializing last-row increments on table.
func (db *DB) tableLock(table string) *sync.Mutex {
	db.locksMu.Lock()
	defer db.locksMu.Unlock()
	mu, ok := db.locks[table]
	if !ok {
		mu = &sync.Mutex{}
		db.locks[table] = mu
	}
	return mu
}
