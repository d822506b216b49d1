package core

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// valueKind is the primitive shape of a stored value, used by backends that
// keep typed documents.
type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindUint
	kindFloat
	kindBool
)

// Property describes one persisted field of an entity. Properties are built
// once per type and never modified afterwards.
type Property struct {
	// Name is the Go field name.
	Name   string
	Column string
	Type   reflect.Type
	Index  []int

	Primary    bool
	Increments bool
	Protected  bool
	Unique     bool
	// Relational is set for pointers to other entities; the column stores
	// the related primary key.
	Relational bool
	// Nullable is set for pointer fields; nil is stored as NULL.
	Nullable bool

	Serializer string
	OnUpdate   string

	kind valueKind
}

// native converts a stored string to the typed value a document backend keeps.
func (p *Property) native(raw string) any {
	switch p.kind {
	case kindInt:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case kindUint:
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return int64(n)
		}
	case kindFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case kindBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// Schema is the mapping of an entity type to its table.
type Schema struct {
	Type       reflect.Type
	Table      string
	Properties []*Property
	Primary    []*Property
	// Increment is the auto-increment property, if any.
	Increment *Property

	byColumn map[string]*Property
	byName   map[string]*Property
}

// Property returns the property mapped to a column or Go field name.
func (s *Schema) Property(name string) (*Property, bool) {
	if p, ok := s.byColumn[name]; ok {
		return p, true
	}
	p, ok := s.byName[name]
	return p, ok
}

// Columns returns every mapped column in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		cols[i] = p.Column
	}
	return cols
}

// protectedColumns returns the set of protected columns, used to mask logs.
func (s *Schema) protectedColumns() map[string]bool {
	if s == nil {
		return nil
	}
	var out map[string]bool
	for _, p := range s.Properties {
		if p.Protected {
			if out == nil {
				out = make(map[string]bool)
			}
			out[p.Column] = true
		}
	}
	return out
}

// native converts raw for column, leaving it a string when unmapped.
func (s *Schema) native(column, raw string) any {
	if s == nil {
		return raw
	}
	if p, ok := s.byColumn[column]; ok {
		return p.native(raw)
	}
	return raw
}

// TableNamer overrides the default table name of an entity.
type TableNamer interface {
	TableName() string
}

var (
	schemaMu    sync.RWMutex
	schemaCache = make(map[reflect.Type]*Schema)
)

// SchemaOf returns the cached schema of an entity type. entity may be a
// struct value, a pointer to one, or a reflect.Type.
func SchemaOf(entity any) (*Schema, error) {
	var typ reflect.Type
	if t, ok := entity.(reflect.Type); ok {
		typ = t
	} else {
		typ = reflect.TypeOf(entity)
	}
	if typ == nil {
		return nil, WrapError(ErrInvalidModelType, "nil entity")
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	// Fast path: check cache with read lock
	schemaMu.RLock()
	s, ok := schemaCache[typ]
	schemaMu.RUnlock()
	if ok {
		return s, nil
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[typ]; ok {
		return s, nil
	}
	s, err := buildSchema(typ)
	if err != nil {
		return nil, err
	}
	schemaCache[typ] = s
	return s, nil
}

func buildSchema(typ reflect.Type) (*Schema, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expected struct, got %s", ErrInvalidModelType, typ.Kind())
	}

	s := &Schema{
		Type:     typ,
		Table:    tableName(typ),
		byColumn: make(map[string]*Property),
		byName:   make(map[string]*Property),
	}
	if err := s.collect(typ, nil); err != nil {
		return nil, err
	}

	if len(s.Primary) == 0 {
		if p, ok := s.byName["ID"]; ok {
			p.Primary = true
			s.Primary = append(s.Primary, p)
		}
	}
	return s, nil
}

func (s *Schema) collect(typ reflect.Type, index []int) error {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldIndex := append(append([]int{}, index...), i)

		if field.Type == modelType {
			continue
		}
		if !field.IsExported() {
			continue
		}
		tag, hasTag := field.Tag.Lookup("db")
		if tag == "-" {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct && !hasTag {
			if err := s.collect(field.Type, fieldIndex); err != nil {
				return err
			}
			continue
		}

		p, err := newProperty(field, fieldIndex, tag)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalidModelType, typ.Name(), field.Name, err)
		}
		if _, dup := s.byColumn[p.Column]; dup {
			return fmt.Errorf("%w: %s: duplicate column %q", ErrInvalidModelType, typ.Name(), p.Column)
		}
		if p.Increments {
			if s.Increment != nil {
				return fmt.Errorf("%w: %s: more than one increments field", ErrInvalidModelType, typ.Name())
			}
			s.Increment = p
		}

		s.Properties = append(s.Properties, p)
		s.byColumn[p.Column] = p
		s.byName[p.Name] = p
		if p.Primary {
			s.Primary = append(s.Primary, p)
		}
	}
	return nil
}

func newProperty(field reflect.StructField, index []int, tag string) (*Property, error) {
	p := &Property{
		Name:       field.Name,
		Type:       field.Type,
		Index:      index,
		Serializer: DefaultSerializer,
	}

	parts := strings.Split(tag, ",")
	p.Column = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		key, val, _ := strings.Cut(opt, "=")
		switch key {
		case "pk":
			p.Primary = true
		case "increments", "autoincrement":
			p.Increments = true
		case "protected":
			p.Protected = true
		case "unique":
			p.Unique = true
		case "serializer":
			if val != "" {
				p.Serializer = strings.ToLower(val)
			}
		case "onupdate":
			p.OnUpdate = val
		case "":
		default:
			return nil, fmt.Errorf("unknown tag option %q", opt)
		}
	}

	base := field.Type
	if base.Kind() == reflect.Ptr {
		if base.Elem().Kind() == reflect.Struct && base.Implements(entityType) {
			p.Relational = true
		} else {
			p.Nullable = true
		}
		base = base.Elem()
	}

	if p.Column == "" {
		p.Column = SnakeCase(field.Name)
		if p.Relational {
			p.Column += "_id"
		}
	}

	if p.Serializer != DefaultSerializer {
		if _, ok := lookupSerializer(p.Serializer); !ok {
			return nil, fmt.Errorf("unknown serializer %q", p.Serializer)
		}
	}
	if p.OnUpdate != "" {
		if _, ok := lookupUpdateTransform(p.OnUpdate); !ok {
			return nil, fmt.Errorf("unknown update transform %q", p.OnUpdate)
		}
	}

	p.kind = kindOf(base)
	if p.Relational {
		p.kind = kindString
	}
	if p.Serializer != DefaultSerializer {
		p.kind = kindString
		if p.Serializer == "unixtime" {
			p.kind = kindInt
		}
	}

	if p.Increments {
		if p.kind != kindInt && p.kind != kindUint {
			return nil, fmt.Errorf("increments requires an integer field, got %s", field.Type)
		}
	}
	return p, nil
}

func kindOf(t reflect.Type) valueKind {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return kindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return kindUint
	case reflect.Float32, reflect.Float64:
		return kindFloat
	case reflect.Bool:
		return kindBool
	}
	return kindString
}

func tableName(typ reflect.Type) string {
	if tn, ok := reflect.New(typ).Interface().(TableNamer); ok {
		return tn.TableName()
	}
	return Pluralize(strings.ToLower(typ.Name()))
}

// Pluralize applies the table naming rule: a trailing "y" becomes "ies",
// a trailing "s" gets "es", anything else gets "s".
func Pluralize(name string) string {
	switch {
	case name == "":
		return name
	case strings.HasSuffix(name, "y"):
		return name[:len(name)-1] + "ies"
	case strings.HasSuffix(name, "s"):
		return name + "es"
	}
	return name + "s"
}

// SnakeCase converts Go struct field names to snake_case database column
// names. Runs of capitals are kept together, so "GuildID" becomes "guild_id".
func SnakeCase(field string) string {
	runes := []rune(field)
	result := make([]rune, 0, len(runes)+5)
	for i, r := range runes {
		upper := 'A' <= r && r <= 'Z'
		if i > 0 && upper {
			prevLower := runes[i-1] < 'A' || runes[i-1] > 'Z'
			nextLower := i+1 < len(runes) && 'a' <= runes[i+1] && runes[i+1] <= 'z'
			if prevLower || nextLower {
				result = append(result, '_')
			}
		}
		result = append(result, r)
	}
	return strings.ToLower(string(result))
}
