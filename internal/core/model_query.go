package core

import "context"

// ModelQuery is a QueryBuilder whose results are hydrated into *T.
type ModelQuery[T any] struct {
	repo *Repository[T]
	qb   *QueryBuilder
}

// Builder exposes the underlying query builder.
func (mq *ModelQuery[T]) Builder() *QueryBuilder { return mq.qb }

// Where sets the root leaf, or ANDs another leaf onto an existing root.
func (mq *ModelQuery[T]) Where(key string, cmp Comparator, value any) *ModelQuery[T] {
	mq.qb.Where(key, cmp, value)
	return mq
}

// WhereIn is Where with an IN list.
func (mq *ModelQuery[T]) WhereIn(key string, values ...any) *ModelQuery[T] {
	mq.qb.WhereIn(key, values...)
	return mq
}

// And links stmts to the root with AND.
func (mq *ModelQuery[T]) And(stmts ...*Statement) *ModelQuery[T] {
	mq.qb.And(stmts...)
	return mq
}

// Or links stmts to the root with OR.
func (mq *ModelQuery[T]) Or(stmts ...*Statement) *ModelQuery[T] {
	mq.qb.Or(stmts...)
	return mq
}

// AndGroup links a nested group with AND.
func (mq *ModelQuery[T]) AndGroup(fn func(*Filter)) *ModelQuery[T] {
	mq.qb.AndGroup(fn)
	return mq
}

// OrGroup links a nested group with OR.
func (mq *ModelQuery[T]) OrGroup(fn func(*Filter)) *ModelQuery[T] {
	mq.qb.OrGroup(fn)
	return mq
}

// OrderBy sorts ascending by col.
func (mq *ModelQuery[T]) OrderBy(col string) *ModelQuery[T] {
	mq.qb.OrderBy(col)
	return mq
}

// Reverse flips the sort direction.
func (mq *ModelQuery[T]) Reverse() *ModelQuery[T] {
	mq.qb.Reverse()
	return mq
}

// Limit caps the number of rows returned.
func (mq *ModelQuery[T]) Limit(n int) *ModelQuery[T] {
	mq.qb.Limit(n)
	return mq
}

// Get returns every matching entity.
func (mq *ModelQuery[T]) Get(ctx context.Context) ([]*T, error) {
	rows, err := mq.qb.Get(ctx)
	if err != nil {
		return nil, err
	}
	return mq.repo.hydrateAll(rows), nil
}

// First returns the first matching entity.
func (mq *ModelQuery[T]) First(ctx context.Context) (*T, bool, error) {
	row, ok, err := mq.qb.First(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return mq.repo.hydrate(row), true, nil
}

// Find returns the entity with primary key id.
func (mq *ModelQuery[T]) Find(ctx context.Context, id any) (*T, bool, error) {
	row, ok, err := mq.qb.Find(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return mq.repo.hydrate(row), true, nil
}

// FindOrFail is Find that returns ErrNotFound when nothing matched.
func (mq *ModelQuery[T]) FindOrFail(ctx context.Context, id any) (*T, error) {
	row, err := mq.qb.FindOrFail(ctx, id)
	if err != nil {
		return nil, err
	}
	return mq.repo.hydrate(row), nil
}

// Count returns the number of matching rows.
func (mq *ModelQuery[T]) Count(ctx context.Context) (int, error) {
	return mq.qb.Count(ctx)
}

// Exists reports whether any row matches.
func (mq *ModelQuery[T]) Exists(ctx context.Context) (bool, error) {
	return mq.qb.Exists(ctx)
}
