package core

import (
	"context"
	"fmt"
	"reflect"
)

// Repository scopes queries and commands to the table of entity type T.
// *T must embed Model.
//
// Example:
//
//	repo, err := core.NewRepository[models.Ignore](db)
//	ign, err := repo.CreateAndPersist(ctx, map[string]any{"guild_id": "42"})
type Repository[T any] struct {
	db     *DB
	schema *Schema
}

// NewRepository returns a repository for T on db.
func NewRepository[T any](db *DB) (*Repository[T], error) {
	if _, ok := any(new(T)).(Entity); !ok {
		var zero T
		return nil, fmt.Errorf("%w: %T does not embed core.Model", ErrInvalidModelType, zero)
	}
	schema, err := SchemaOf(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &Repository[T]{db: db, schema: schema}, nil
}

// MustRepository is NewRepository that panics on a mapping error.
func MustRepository[T any](db *DB) *Repository[T] {
	r, err := NewRepository[T](db)
	if err != nil {
		panic(err)
	}
	return r
}

// DB returns the database the repository runs on.
func (r *Repository[T]) DB() *DB { return r.db }

// Table returns the mapped table name.
func (r *Repository[T]) Table() string { return r.schema.Table }

// Schema returns the entity mapping.
func (r *Repository[T]) Schema() *Schema { return r.schema }

// New returns an unsaved entity bound to the repository's DB.
func (r *Repository[T]) New() *T {
	return r.Attach(new(T))
}

// Attach binds an entity constructed elsewhere. It is treated as unsaved.
func (r *Repository[T]) Attach(e *T) *T {
	any(e).(Entity).model().bind(r.db, r.schema, reflect.ValueOf(e))
	return e
}

// Create returns an unsaved entity filled from values.
func (r *Repository[T]) Create(values map[string]any) (*T, error) {
	e := r.New()
	if err := any(e).(Entity).model().Fill(values); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateAndPersist is Create followed by Save.
func (r *Repository[T]) CreateAndPersist(ctx context.Context, values map[string]any) (*T, error) {
	e, err := r.Create(values)
	if err != nil {
		return nil, err
	}
	if err := any(e).(Entity).model().Save(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Query starts a typed query on the table.
func (r *Repository[T]) Query() *ModelQuery[T] {
	return &ModelQuery[T]{repo: r, qb: r.builder()}
}

func (r *Repository[T]) builder() *QueryBuilder {
	return r.db.Query(r.schema.Table).withSchema(r.schema)
}

// GetAll returns every stored entity.
func (r *Repository[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.Query().Get(ctx)
}

// Find returns the entities matched by the predicate fn adds to the builder.
func (r *Repository[T]) Find(ctx context.Context, fn func(*QueryBuilder)) ([]*T, error) {
	qb := r.builder()
	if fn != nil {
		fn(qb)
	}
	rows, err := qb.Get(ctx)
	if err != nil {
		return nil, err
	}
	return r.hydrateAll(rows), nil
}

// FindFirst returns the first entity matched by fn.
func (r *Repository[T]) FindFirst(ctx context.Context, fn func(*QueryBuilder)) (*T, bool, error) {
	qb := r.builder()
	if fn != nil {
		fn(qb)
	}
	row, ok, err := qb.First(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return r.hydrate(row), true, nil
}

// FindLast returns the last entity matched by fn. Without an explicit order
// the single primary key orders the rows; tables without one are read in
// full and the last row is taken.
func (r *Repository[T]) FindLast(ctx context.Context, fn func(*QueryBuilder)) (*T, bool, error) {
	qb := r.builder()
	if fn != nil {
		fn(qb)
	}
	if qb.q.OrderBy == "" && len(r.schema.Primary) == 1 {
		qb.OrderBy(r.schema.Primary[0].Column)
	}
	if qb.q.OrderBy == "" {
		rows, err := qb.Get(ctx)
		if err != nil || len(rows) == 0 {
			return nil, false, err
		}
		return r.hydrate(rows[len(rows)-1]), true, nil
	}
	row, ok, err := qb.Reverse().First(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return r.hydrate(row), true, nil
}

// FindByID returns the entity with primary key id.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, bool, error) {
	return r.Query().Find(ctx, id)
}

// FindOrFail returns the entity with primary key id or ErrNotFound.
func (r *Repository[T]) FindOrFail(ctx context.Context, id any) (*T, error) {
	return r.Query().FindOrFail(ctx, id)
}

// Delete loads the entities matched by fn and deletes them one by one so
// per-entity hooks run. It returns the number of rows removed.
func (r *Repository[T]) Delete(ctx context.Context, fn func(*QueryBuilder)) (int, error) {
	if fn == nil {
		return 0, WrapError(ErrNoWhere, "repository delete")
	}
	qb := r.builder()
	fn(qb)
	if qb.Err() == nil && qb.Root() == nil {
		return 0, WrapError(ErrNoWhere, "repository delete")
	}
	rows, err := qb.Get(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range r.hydrateAll(rows) {
		ok, err := any(e).(Entity).model().Delete(ctx)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Count returns the number of rows matched by fn, or every row when fn is nil.
func (r *Repository[T]) Count(ctx context.Context, fn func(*QueryBuilder)) (int, error) {
	qb := r.builder()
	if fn != nil {
		fn(qb)
	}
	return qb.Count(ctx)
}

func (r *Repository[T]) hydrate(row Row) *T {
	e := r.New()
	any(e).(Entity).model().hydrate(row)
	return e
}

func (r *Repository[T]) hydrateAll(rows []Row) []*T {
	out := make([]*T, len(rows))
	for i, row := range rows {
		out[i] = r.hydrate(row)
	}
	return out
}
