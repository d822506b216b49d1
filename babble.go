// Package babble is the persistence layer of the BabbleBot server: typed
// repositories over SQLite, MySQL, PostgreSQL and MongoDB, with entities
// that track their own changes and write only what changed.
//
// A minimal program:
//
//	type Ignore struct {
//	    babble.Model
//	    ID      int64  `db:"id,pk,increments"`
//	    GuildID string `db:"guild_id"`
//	    UserID  string `db:"user_id"`
//	}
//
//	db, _ := babble.OpenSQL("sqlite", "babblebot.db")
//	ignores := babble.MustRepository[Ignore](db)
//	ig, _ := ignores.CreateAndPersist(ctx, map[string]any{"guild_id": "1", "user_id": "2"})
//	found, _ := ignores.Find(ctx, func(qb *babble.QueryBuilder) {
//	    qb.Where("guild_id", babble.EQ, "1")
//	})
package babble

import (
	"github.com/babblebot-server/server-sub000/internal/core"
)

type (
	// DB is the process-wide handle on one backend.
	DB = core.DB
	// Option is a functional option for configuring DB.
	Option = core.Option
	// Connection executes query and command objects on a backend.
	Connection = core.Connection
	// SQLConnection is the database/sql backed connection.
	SQLConnection = core.SQLConnection
	// DocumentConnection is the MongoDB backed connection.
	DocumentConnection = core.DocumentConnection
	// IncrementStrategy selects how auto-increment values are resolved.
	IncrementStrategy = core.IncrementStrategy

	// Statement is one node of a predicate tree.
	Statement = core.Statement
	// Comparator is a leaf comparison.
	Comparator = core.Comparator
	// Operator joins statements.
	Operator = core.Operator
	// Filter collects statements inside And/Or groups.
	Filter = core.Filter

	// QueryBuilder builds and runs selects against one table.
	QueryBuilder = core.QueryBuilder
	// CommandBuilder builds and runs writes against one table.
	CommandBuilder = core.CommandBuilder
	// QueryObject is a backend neutral select.
	QueryObject = core.QueryObject
	// CommandObject is a backend neutral write.
	CommandObject = core.CommandObject
	// CommandResult reports the outcome of a write.
	CommandResult = core.CommandResult
	// Row is one result row, every value as sql.NullString.
	Row = core.Row

	// Model is embedded by every entity.
	Model = core.Model
	// Entity is implemented by pointers to structs embedding Model.
	Entity = core.Entity
	// SaveType tells whether the next Save inserts or updates.
	SaveType = core.SaveType
	// Snapshot is the stored form of an entity as last loaded or saved.
	Snapshot = core.Snapshot
	// BeforeCreator is called before an entity is inserted.
	BeforeCreator = core.BeforeCreator
	// BeforeUpdater is called before an entity is updated.
	BeforeUpdater = core.BeforeUpdater
	// BeforeDeleter is called before an entity is deleted.
	BeforeDeleter = core.BeforeDeleter
	// Schema is the mapping of an entity type to its table.
	Schema = core.Schema
	// Property describes one persisted field.
	Property = core.Property
	// Serializer converts a field value to and from its stored form.
	Serializer = core.Serializer
	// UpdateTransform rewrites a field before an entity is updated.
	UpdateTransform = core.UpdateTransform

	// Repository is the typed entry point for one entity type.
	Repository[T any] = core.Repository[T]
	// ModelQuery is a query that hydrates entities of type T.
	ModelQuery[T any] = core.ModelQuery[T]

	// QueryEvent describes one executed statement.
	QueryEvent = core.QueryEvent
	// QueryHook is called after every statement.
	QueryHook = core.QueryHook
)

// Comparators.
const (
	EQ      = core.EQ
	NE      = core.NE
	LT      = core.LT
	LTE     = core.LTE
	GT      = core.GT
	GTE     = core.GTE
	Like    = core.Like
	NotLike = core.NotLike
	In      = core.In
	NotIn   = core.NotIn
)

// Operators.
const (
	AND = core.AND
	OR  = core.OR
)

// Save types and increment strategies.
const (
	SaveCreate = core.SaveCreate
	SaveUpdate = core.SaveUpdate

	IncrementNative  = core.IncrementNative
	IncrementLastRow = core.IncrementLastRow
)

// Errors.
var (
	ErrUsage              = core.ErrUsage
	ErrNoWhere            = core.ErrNoWhere
	ErrNotFound           = core.ErrNotFound
	ErrExecution          = core.ErrExecution
	ErrSerialization      = core.ErrSerialization
	ErrUnsupportedDialect = core.ErrUnsupportedDialect
	ErrInvalidModelType   = core.ErrInvalidModelType
	ErrNotPersisted       = core.ErrNotPersisted
)

// Re-export core functions.
var (
	Open         = core.Open
	OpenSQL      = core.OpenSQL
	OpenDocument = core.OpenDocument
	NewDB        = core.NewDB
	WrapDB       = core.WrapDB

	WithLogger            = core.WithLogger
	WithTracer            = core.WithTracer
	WithQueryHook         = core.WithQueryHook
	WithMaxOpenConns      = core.WithMaxOpenConns
	WithMaxIdleConns      = core.WithMaxIdleConns
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithIncrementStrategy = core.WithIncrementStrategy
	WithSensitiveColumns  = core.WithSensitiveColumns
	WithHealthCheck       = core.WithHealthCheck

	// Predicate builders
	Where      = core.Where
	WhereIn    = core.WhereIn
	WhereNotIn = core.WhereNotIn
	Group      = core.Group

	Export                  = core.Export
	SchemaOf                = core.SchemaOf
	RegisterSerializer      = core.RegisterSerializer
	RegisterUpdateTransform = core.RegisterUpdateTransform
)

// NewRepository returns the repository for entity type T.
func NewRepository[T any](db *DB) (*Repository[T], error) {
	return core.NewRepository[T](db)
}

// MustRepository is like NewRepository but panics on error.
func MustRepository[T any](db *DB) *Repository[T] {
	return core.MustRepository[T](db)
}
