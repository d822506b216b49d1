package core

import "context"

// Connection executes backend-independent query and command objects against
// one storage backend.
type Connection interface {
	// Name is the backend name: sqlite, mysql, postgres or mongodb.
	Name() string
	// ExecuteQuery returns the distinct rows matching q in backend order.
	ExecuteQuery(ctx context.Context, q *QueryObject) ([]Row, error)
	// ExecuteCommand performs the write described by c.
	ExecuteCommand(ctx context.Context, c *CommandObject) (CommandResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sequencer is implemented by connections that generate auto-increment
// values before insert.
type Sequencer interface {
	NextSequence(ctx context.Context, table, column string) (int64, error)
}

// observable is implemented by the built-in connections so the DB can attach
// its logger, tracer and hook.
type observable interface {
	setObserver(o *observer)
}
