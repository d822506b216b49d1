package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/babblebot-server/server-sub000/internal/logger"
)

// SaveType is the persistence state of an entity.
type SaveType int

const (
	// SaveCreate means the next Save inserts.
	SaveCreate SaveType = iota
	// SaveUpdate means the entity has a stored row and the next Save updates it.
	SaveUpdate
)

// String implements fmt.Stringer.
func (s SaveType) String() string {
	if s == SaveUpdate {
		return "update"
	}
	return "create"
}

// Entity is implemented by every struct that embeds Model.
type Entity interface {
	model() *Model
}

// Lifecycle hooks an entity may implement. A non-nil error aborts the
// operation before any statement runs.
type (
	BeforeCreator interface {
		BeforeCreate(ctx context.Context) error
	}
	BeforeUpdater interface {
		BeforeUpdate(ctx context.Context) error
	}
	BeforeDeleter interface {
		BeforeDelete(ctx context.Context) error
	}
)

var (
	entityType = reflect.TypeOf((*Entity)(nil)).Elem()
	modelType  = reflect.TypeOf(Model{})

	errUnbound = WrapError(ErrNotPersisted, "entity was not created through a repository")
)

// Snapshot holds the stored form of every column as of the last hydrate or
// save. Save diffs against it to find changed columns.
type Snapshot map[string]sql.NullString

// Model is embedded by entities. It carries the DB binding, the
// persistence state and the snapshot; entities obtain a bound Model only
// through repository factories and hydration.
//
//	type Ignore struct {
//	    core.Model
//	    ID      int64  `db:"id,pk,increments"`
//	    GuildID string `db:"guild_id"`
//	}
type Model struct {
	db       *DB
	schema   *Schema
	self     reflect.Value
	state    SaveType
	snapshot Snapshot
	scope    *Statement
}

func (m *Model) model() *Model { return m }

// bind attaches the model to db; self is the pointer to the outer struct.
func (m *Model) bind(db *DB, schema *Schema, self reflect.Value) {
	m.db = db
	m.schema = schema
	m.self = self
	m.state = SaveCreate
	m.snapshot = nil
	m.scope = nil
}

// SaveType returns the current persistence state.
func (m *Model) SaveType() SaveType { return m.state }

// IsPersisted reports whether the entity has a stored row.
func (m *Model) IsPersisted() bool { return m.state == SaveUpdate }

// Schema returns the entity mapping, or nil for an unbound entity.
func (m *Model) Schema() *Schema { return m.schema }

// Snapshot returns a copy of the stored column values.
func (m *Model) Snapshot() Snapshot {
	if m.snapshot == nil {
		return nil
	}
	out := make(Snapshot, len(m.snapshot))
	for k, v := range m.snapshot {
		out[k] = v
	}
	return out
}

func (m *Model) logger() logger.Logger {
	if m.db == nil {
		return &logger.NoopLogger{}
	}
	return m.db.logger
}

func (m *Model) field(p *Property) reflect.Value {
	return m.self.Elem().FieldByIndex(p.Index)
}

// Save inserts the entity when it is new, otherwise writes the columns that
// changed since the last snapshot. Nothing runs when no column changed.
func (m *Model) Save(ctx context.Context) error {
	if m.db == nil {
		return errUnbound
	}
	if m.state == SaveCreate {
		return m.create(ctx)
	}
	return m.update(ctx)
}

func (m *Model) create(ctx context.Context) error {
	if h, ok := m.self.Interface().(BeforeCreator); ok {
		if err := h.BeforeCreate(ctx); err != nil {
			return err
		}
	}
	if err := m.applyTransforms(true); err != nil {
		return err
	}

	inc := m.schema.Increment
	cmd := &CommandObject{Kind: CommandInsert, Table: m.schema.Table, Schema: m.schema}
	for _, p := range m.schema.Properties {
		if p == inc {
			continue
		}
		v, err := m.serialize(p)
		if err != nil {
			return err
		}
		cmd.Values = append(cmd.Values, Assignment{Column: p.Column, Value: v})
	}

	if inc != nil {
		next, native, err := m.reserveIncrement(ctx, inc)
		if err != nil {
			return err
		}
		if m.db.increment == IncrementLastRow {
			mu := m.db.tableLock(m.schema.Table)
			defer mu.Unlock()
		}
		if native {
			cmd.Returning = inc.Column
		} else {
			setInteger(m.field(inc), next)
			cmd.Values = append(cmd.Values, Assignment{Column: inc.Column, Value: stringValue(strconv.FormatInt(next, 10))})
		}
	}

	res, err := m.db.executeCommand(ctx, cmd)
	if err != nil {
		return err
	}

	if inc != nil && cmd.Returning != "" {
		if res.HasLastInsertID {
			setInteger(m.field(inc), res.LastInsertID)
		} else {
			m.logger().Warn("backend did not report the generated key",
				"table", m.schema.Table, "column", inc.Column)
		}
	}

	m.persisted()
	return nil
}

// reserveIncrement picks the next auto-increment value. native is true when
// the backend generates it during the insert. With the last-row strategy
// the table lock is held on return and released by the caller.
func (m *Model) reserveIncrement(ctx context.Context, inc *Property) (next int64, native bool, err error) {
	if m.db.increment == IncrementLastRow {
		mu := m.db.tableLock(m.schema.Table)
		mu.Lock()
		next, err = m.lastRowNext(ctx, inc)
		if err != nil {
			mu.Unlock()
			return 0, false, err
		}
		return next, false, nil
	}
	if seq, ok := m.db.conn.(Sequencer); ok {
		next, err = seq.NextSequence(ctx, m.schema.Table, inc.Column)
		return next, false, err
	}
	return 0, true, nil
}

// lastRowNext returns the stored maximum of inc plus one, or 1 for an
// empty table.
func (m *Model) lastRowNext(ctx context.Context, inc *Property) (int64, error) {
	row, ok, err := m.db.Query(m.schema.Table).
		OrderBy(inc.Column).
		Reverse().
		First(ctx, inc.Column)
	if err != nil {
		return 0, err
	}
	if !ok || row.IsNull(inc.Column) {
		return 1, nil
	}
	last, err := strconv.ParseInt(row.String(inc.Column), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: last %s.%s: %v", ErrSerialization, m.schema.Table, inc.Column, err)
	}
	return last + 1, nil
}

func (m *Model) update(ctx context.Context) error {
	if h, ok := m.self.Interface().(BeforeUpdater); ok {
		if err := h.BeforeUpdate(ctx); err != nil {
			return err
		}
	}

	changes, err := m.changes(true)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	if err := m.applyTransforms(false); err != nil {
		return err
	}
	if changes, err = m.changes(false); err != nil {
		return err
	}

	where, err := m.scopeStatement()
	if err != nil {
		return err
	}
	res, err := m.db.executeCommand(ctx, &CommandObject{
		Kind:   CommandUpdate,
		Table:  m.schema.Table,
		Values: changes,
		Where:  where,
		Schema: m.schema,
	})
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		m.logger().Debug("update matched no rows", "table", m.schema.Table)
	}

	m.persisted()
	return nil
}

// Delete removes the stored row. It returns false and logs a warning when
// the entity was never saved. On success the entity becomes new again.
func (m *Model) Delete(ctx context.Context) (bool, error) {
	if m.db == nil {
		return false, errUnbound
	}
	if m.state == SaveCreate {
		m.logger().Warn("delete called on an entity that was never saved", "table", m.schema.Table)
		return false, nil
	}
	if h, ok := m.self.Interface().(BeforeDeleter); ok {
		if err := h.BeforeDelete(ctx); err != nil {
			return false, err
		}
	}

	where, err := m.scopeStatement()
	if err != nil {
		return false, err
	}
	res, err := m.db.executeCommand(ctx, &CommandObject{
		Kind:   CommandDelete,
		Table:  m.schema.Table,
		Where:  where,
		Schema: m.schema,
	})
	if err != nil {
		return false, err
	}

	m.state = SaveCreate
	m.snapshot = nil
	m.scope = nil
	return res.RowsAffected > 0, nil
}

// Refresh reloads every field from the stored row.
func (m *Model) Refresh(ctx context.Context) error {
	if m.db == nil {
		return errUnbound
	}
	if m.state == SaveCreate {
		return ErrNotPersisted
	}
	where, err := m.scopeStatement()
	if err != nil {
		return err
	}
	qb := m.db.Query(m.schema.Table).withSchema(m.schema)
	qb.where(where)
	row, ok, err := qb.First(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	m.hydrate(row)
	return nil
}

// Dirty returns the columns whose current value differs from the snapshot.
// Every column is dirty for a new entity.
func (m *Model) Dirty() ([]string, error) {
	if m.schema == nil {
		return nil, errUnbound
	}
	changes, err := m.changes(false)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(changes))
	for i, c := range changes {
		cols[i] = c.Column
	}
	return cols, nil
}

// persisted moves to the update state and captures a fresh snapshot.
func (m *Model) persisted() {
	m.state = SaveUpdate
	m.snapshot = m.capture()
	m.scope = nil
}

// capture serializes every property. Columns that fail to serialize are
// left out and therefore always count as changed.
func (m *Model) capture() Snapshot {
	snap := make(Snapshot, len(m.schema.Properties))
	for _, p := range m.schema.Properties {
		v, err := m.serialize(p)
		if err != nil {
			continue
		}
		snap[p.Column] = v
	}
	return snap
}

// changes diffs the current values against the snapshot. With
// skipTransformed, columns maintained by on-update transforms are ignored.
func (m *Model) changes(skipTransformed bool) ([]Assignment, error) {
	var out []Assignment
	for _, p := range m.schema.Properties {
		if skipTransformed && p.OnUpdate != "" {
			continue
		}
		v, err := m.serialize(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := m.snapshot[p.Column]; ok && prev == v {
			continue
		}
		out = append(out, Assignment{Column: p.Column, Value: v})
	}
	return out, nil
}

// applyTransforms runs on-update transforms. On create only zero fields
// are filled.
func (m *Model) applyTransforms(creating bool) error {
	for _, p := range m.schema.Properties {
		if p.OnUpdate == "" {
			continue
		}
		f := m.field(p)
		if creating && !f.IsZero() {
			continue
		}
		fn, ok := lookupUpdateTransform(p.OnUpdate)
		if !ok {
			return fmt.Errorf("%w: unknown update transform %q", ErrSerialization, p.OnUpdate)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// scopeStatement filters on every primary key as stored in the snapshot.
func (m *Model) scopeStatement() (*Statement, error) {
	if m.scope != nil {
		return m.scope.Clone(), nil
	}
	if len(m.schema.Primary) == 0 {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrUsage, m.schema.Table)
	}

	f := &Filter{}
	for _, p := range m.schema.Primary {
		f.Where(p.Column, EQ, m.snapshot[p.Column])
	}
	m.scope = f.root
	return m.scope.Clone(), nil
}

// serialize converts a property to its stored form.
func (m *Model) serialize(p *Property) (sql.NullString, error) {
	return serializeValue(m.self.Interface(), p, m.field(p))
}

func serializeValue(entity any, p *Property, v reflect.Value) (sql.NullString, error) {
	if p.Relational {
		if v.IsNil() {
			return nullValue(), nil
		}
		_, pk, err := relatedKey(p)
		if err != nil {
			return nullValue(), err
		}
		return serializeValue(v.Interface(), pk, v.Elem().FieldByIndex(pk.Index))
	}
	if p.Nullable {
		if v.IsNil() {
			return nullValue(), nil
		}
		v = v.Elem()
	}
	s, ok := lookupSerializer(p.Serializer)
	if !ok {
		return nullValue(), fmt.Errorf("%w: unknown serializer %q", ErrSerialization, p.Serializer)
	}
	str, err := s.Serialize(entity, v)
	if err != nil {
		return nullValue(), fmt.Errorf("%s: %w", p.Column, err)
	}
	return stringValue(str), nil
}

// relatedKey returns the schema and primary key property of a relational
// property's target.
func relatedKey(p *Property) (*Schema, *Property, error) {
	relSchema, err := SchemaOf(p.Type.Elem())
	if err != nil {
		return nil, nil, err
	}
	if len(relSchema.Primary) != 1 {
		return nil, nil, fmt.Errorf("%w: %s must have exactly one primary key to be referenced", ErrInvalidModelType, relSchema.Table)
	}
	return relSchema, relSchema.Primary[0], nil
}

// deserialize sets a property from its stored form. On error the field
// keeps its previous value.
func (m *Model) deserialize(p *Property, raw sql.NullString) error {
	f := m.field(p)
	if !raw.Valid {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}

	if p.Relational {
		relSchema, pk, err := relatedKey(p)
		if err != nil {
			return err
		}
		ref := reflect.New(p.Type.Elem())
		refModel := ref.Interface().(Entity).model()
		refModel.bind(m.db, relSchema, ref)
		if err := refModel.deserialize(pk, raw); err != nil {
			return err
		}
		f.Set(ref)
		return nil
	}

	base := p.Type
	if p.Nullable {
		base = base.Elem()
	}
	s, ok := lookupSerializer(p.Serializer)
	if !ok {
		return fmt.Errorf("%w: unknown serializer %q", ErrSerialization, p.Serializer)
	}
	v, err := s.Deserialize(m.self.Interface(), base, raw.String)
	if err != nil {
		return err
	}
	if p.Nullable {
		ptr := reflect.New(base)
		ptr.Elem().Set(v)
		f.Set(ptr)
		return nil
	}
	f.Set(v)
	return nil
}

// hydrate fills fields from a row and marks the entity persisted. Fields
// that fail to deserialize keep their value and are logged.
func (m *Model) hydrate(row Row) {
	for _, p := range m.schema.Properties {
		raw, ok := row[p.Column]
		if !ok {
			continue
		}
		if err := m.deserialize(p, raw); err != nil {
			m.logger().Error("failed to deserialize field",
				"table", m.schema.Table,
				"field", p.Name,
				"column", p.Column,
				"error", err)
		}
	}
	m.persisted()
}

// Fill sets fields from a map keyed by column or Go field name. Strings are
// parsed by the field's serializer; other values are assigned or converted.
// Auto-increment fields cannot be set on a new entity: they are skipped
// with a warning. Unknown keys are ignored.
func (m *Model) Fill(values map[string]any) error {
	if m.schema == nil {
		return errUnbound
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		p, ok := m.schema.Property(key)
		if !ok {
			m.logger().Debug("fill ignored unknown property", "table", m.schema.Table, "key", key)
			continue
		}
		if p.Increments && m.state == SaveCreate {
			m.logger().Warn("auto-increment field is assigned on save, value ignored",
				"table", m.schema.Table, "field", p.Name)
			continue
		}
		if err := m.set(p, values[key]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Model) set(p *Property, v any) error {
	f := m.field(p)
	if v == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(f.Type()) {
		f.Set(rv)
		return nil
	}
	if p.Nullable && rv.Type().AssignableTo(f.Type().Elem()) {
		ptr := reflect.New(f.Type().Elem())
		ptr.Elem().Set(rv)
		f.Set(ptr)
		return nil
	}
	if s, ok := v.(string); ok {
		return m.deserialize(p, stringValue(s))
	}

	base := f.Type()
	if p.Nullable {
		base = base.Elem()
	}
	if !p.Relational && kindOf(base) != kindString && kindOf(rv.Type()) != kindString && rv.Type().ConvertibleTo(base) {
		if overflows(rv, base) {
			return fmt.Errorf("%w: %v overflows %s", ErrSerialization, v, base)
		}
		cv := rv.Convert(base)
		if p.Nullable {
			ptr := reflect.New(base)
			ptr.Elem().Set(cv)
			f.Set(ptr)
		} else {
			f.Set(cv)
		}
		return nil
	}

	str, ok := stringify(v)
	if !ok {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	return m.deserialize(p, stringValue(str))
}

// overflows reports whether converting the numeric rv to typ would wrap.
func overflows(rv reflect.Value, typ reflect.Type) bool {
	target := reflect.Zero(typ)
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return target.OverflowInt(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return rv.Uint() > math.MaxInt64 || target.OverflowInt(int64(rv.Uint()))
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			return f < math.MinInt64 || f >= math.MaxInt64 || target.OverflowInt(int64(f))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int() < 0 || target.OverflowUint(uint64(rv.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return target.OverflowUint(rv.Uint())
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			return f < 0 || f >= math.MaxUint64 || target.OverflowUint(uint64(f))
		}
	case reflect.Float32:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return target.OverflowFloat(rv.Float())
		}
	}
	return false
}

// Export returns the entity as a column keyed map without protected
// properties. Relational properties export the related primary key.
func (m *Model) Export() map[string]any {
	if m.schema == nil {
		return nil
	}
	out := make(map[string]any, len(m.schema.Properties))
	for _, p := range m.schema.Properties {
		if p.Protected {
			continue
		}
		f := m.field(p)
		switch {
		case p.Relational:
			if f.IsNil() {
				out[p.Column] = nil
				continue
			}
			_, pk, err := relatedKey(p)
			if err != nil {
				continue
			}
			out[p.Column] = f.Elem().FieldByIndex(pk.Index).Interface()
		case p.Nullable:
			if f.IsNil() {
				out[p.Column] = nil
			} else {
				out[p.Column] = f.Elem().Interface()
			}
		default:
			out[p.Column] = f.Interface()
		}
	}
	return out
}

// Export is the package level form of Model.Export.
func Export(e Entity) map[string]any {
	return e.model().Export()
}

// setInteger assigns n to an integer field, allocating pointers.
func setInteger(f reflect.Value, n int64) {
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			f.Set(reflect.New(f.Type().Elem()))
		}
		f = f.Elem()
	}
	if f.CanInt() {
		f.SetInt(n)
	} else if f.CanUint() {
		f.SetUint(uint64(n))
	}
}
