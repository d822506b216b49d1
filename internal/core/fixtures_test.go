package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/babblebot-server/server-sub000/internal/logger"
)

// textRow maps the two column table used by the seed scenario.
type textRow struct {
	Model
	ID   int64  `db:"id,pk,increments"`
	Text string `db:"text"`
}

func (textRow) TableName() string { return "test" }

type payload struct {
	Name  string `msgpack:"name"`
	Count int    `msgpack:"count"`
}

// allTypes exercises every built-in serializer.
type allTypes struct {
	Model
	ID       int64             `db:"id,pk,increments"`
	Name     string            `db:"name"`
	Score    float64           `db:"score"`
	Active   bool              `db:"active"`
	Level    uint32            `db:"level"`
	Note     *string           `db:"note"`
	Raw      []byte            `db:"raw"`
	Tags     []string          `db:"tags,serializer=csv"`
	Meta     map[string]string `db:"meta,serializer=json"`
	Payload  payload           `db:"payload,serializer=msgpack"`
	SeenAt   time.Time         `db:"seen_at,serializer=unixtime"`
	StoredAt time.Time         `db:"stored_at"`
	Token    string            `db:"token,protected"`
}

func (allTypes) TableName() string { return "all_types" }

const allTypesDDL = `CREATE TABLE all_types (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT, score REAL, active TEXT, level INTEGER, note TEXT, raw TEXT,
	tags TEXT, meta TEXT, payload TEXT, seen_at INTEGER, stored_at TEXT, token TEXT
)`

const testDDL = `CREATE TABLE test (id INTEGER PRIMARY KEY AUTOINCREMENT, text TEXT NOT NULL)`

// recordingConn captures objects instead of running them.
type recordingConn struct {
	mu       sync.Mutex
	queries  []*QueryObject
	commands []*CommandObject
	rows     []Row
	result   CommandResult
	err      error
}

func (c *recordingConn) Name() string { return "recording" }

func (c *recordingConn) ExecuteQuery(_ context.Context, q *QueryObject) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	return c.rows, c.err
}

func (c *recordingConn) ExecuteCommand(_ context.Context, cmd *CommandObject) (CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
	return c.result, c.err
}

func (c *recordingConn) Ping(context.Context) error { return c.err }
func (c *recordingConn) Close() error               { return nil }

func (c *recordingConn) lastCommand() *CommandObject {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.commands) == 0 {
		return nil
	}
	return c.commands[len(c.commands)-1]
}

// sequenceConn is a recordingConn that hands out counter values.
type sequenceConn struct {
	recordingConn
	next int64
}

func (c *sequenceConn) NextSequence(context.Context, string, string) (int64, error) {
	c.next++
	return c.next, nil
}

// eventLog records query hook events.
type eventLog struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (l *eventLog) hook(_ context.Context, e QueryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *eventLog) since(n int) []QueryEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]QueryEvent(nil), l.events[n:]...)
}

// memoryDB opens an in-memory SQLite database and runs ddl.
func memoryDB(t *testing.T, ddl []string, opts ...Option) *DB {
	t.Helper()
	db, err := OpenSQL("sqlite", ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, stmt := range ddl {
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

var seedTexts = []string{"John", "Paul", "Jo", "Ringo", "Mary", "Joey", "Kate", "Sam", "Lex"}

// seedTest fills the test table with nine rows, ids 1..9.
func seedTest(t *testing.T, repo *Repository[textRow]) {
	t.Helper()
	ctx := context.Background()
	for _, text := range seedTexts {
		_, err := repo.CreateAndPersist(ctx, map[string]any{"text": text})
		require.NoError(t, err)
	}
}

func texts(rows []*textRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Text
	}
	return out
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// captureLogger records every log call.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

var _ logger.Logger = (*captureLogger)(nil)

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

func (l *captureLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}
