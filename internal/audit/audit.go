// Package audit records who changed the persisted bot configuration. An
// Auditor is installed as the query hook of a DB and logs one event per
// statement, with the actor taken from the context.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/babblebot-server/server-sub000/internal/core"
	"github.com/babblebot-server/server-sub000/internal/logger"
)

// Level defines which statements are audited.
type Level int

const (
	// None disables audit logging.
	None Level = iota
	// Writes logs only INSERT, UPDATE, DELETE and UPSERT.
	Writes
	// All logs reads as well.
	All
)

// ParseLevel parses "none", "writes" or "all".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return None, nil
	case "", "writes":
		return Writes, nil
	case "all":
		return All, nil
	}
	return None, fmt.Errorf("unknown audit level %q", s)
}

// Event is one audited statement.
type Event struct {
	Timestamp    time.Time
	Actor        string
	Command      string
	Operation    string
	Table        string
	AffectedRows int64
	Rows         int
	Statement    string
	// ParamsHash is the SHA-256 of the masked parameters, so identical
	// writes can be correlated without logging values.
	ParamsHash string
	Success    bool
	Error      string
	Duration   time.Duration
}

// Auditor logs statements at or above its level.
type Auditor struct {
	logger logger.Logger
	level  Level
}

// New creates an auditor writing to l.
func New(l logger.Logger, level Level) *Auditor {
	return &Auditor{logger: l, level: level}
}

// Hook returns the query hook to install with core.WithQueryHook.
func (a *Auditor) Hook() core.QueryHook {
	return func(ctx context.Context, e core.QueryEvent) {
		a.Record(ctx, e)
	}
}

// Record audits one executed statement.
func (a *Auditor) Record(ctx context.Context, e core.QueryEvent) {
	if !a.shouldLog(e.Operation) {
		return
	}
	event := Event{
		Timestamp:    time.Now().UTC(),
		Actor:        Actor(ctx),
		Command:      Command(ctx),
		Operation:    e.Operation,
		Table:        e.Table,
		AffectedRows: e.RowsAffected,
		Rows:         e.Rows,
		Statement:    e.Statement,
		ParamsHash:   hashParams(e.Args),
		Success:      e.Error == nil,
		Duration:     e.Duration,
	}
	if e.Error != nil {
		event.Error = e.Error.Error()
	}
	a.log(event)
}

func (a *Auditor) shouldLog(operation string) bool {
	if a.logger == nil {
		return false
	}
	switch a.level {
	case Writes:
		return isWrite(operation)
	case All:
		return true
	}
	return false
}

func isWrite(operation string) bool {
	switch operation {
	case "INSERT", "UPDATE", "DELETE", "UPSERT":
		return true
	}
	return false
}

func (a *Auditor) log(event Event) {
	logFunc := a.logger.Info
	if !event.Success {
		logFunc = a.logger.Warn
	}
	logFunc("audit event",
		"actor", event.Actor,
		"command", event.Command,
		"operation", event.Operation,
		"table", event.Table,
		"affected_rows", event.AffectedRows,
		"rows", event.Rows,
		"sql", event.Statement,
		"params_hash", event.ParamsHash,
		"success", event.Success,
		"error", event.Error,
		"duration_ms", event.Duration.Milliseconds(),
	)
}

func hashParams(params []any) string {
	if len(params) == 0 {
		return ""
	}
	h := sha256.New()
	for _, param := range params {
		_, _ = fmt.Fprintf(h, "%v\x00", param) // hash.Hash.Write never returns error
	}
	return hex.EncodeToString(h.Sum(nil))
}

type contextKey string

const (
	actorKey   contextKey = "babble:actor"
	commandKey contextKey = "babble:command"
)

// WithActor records who is making changes, e.g. a Discord user id.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithCommand records the bot or CLI command being run.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// Actor returns the actor stored by WithActor.
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

// Command returns the command stored by WithCommand.
func Command(ctx context.Context) string {
	command, _ := ctx.Value(commandKey).(string)
	return command
}
