package core

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSerializer is the serializer used by properties without a
// serializer tag option.
const DefaultSerializer = "default"

// Serializer converts a field value to and from its stored string form.
// entity is the owning entity; implementations may ignore it.
type Serializer interface {
	Serialize(entity any, value reflect.Value) (string, error)
	// Deserialize returns a value of type typ parsed from raw.
	Deserialize(entity any, typ reflect.Type, raw string) (reflect.Value, error)
}

var serializerMap = sync.Map{}

// RegisterSerializer registers a serializer under name, replacing any
// previous registration.
func RegisterSerializer(name string, s Serializer) {
	serializerMap.Store(strings.ToLower(name), s)
}

func lookupSerializer(name string) (Serializer, bool) {
	if name == "" {
		name = DefaultSerializer
	}
	v, ok := serializerMap.Load(strings.ToLower(name))
	if !ok {
		return nil, false
	}
	s, ok := v.(Serializer)
	return s, ok
}

// UpdateTransform rewrites a field in place before an entity is updated.
type UpdateTransform func(field reflect.Value) error

var transformMap = sync.Map{}

// RegisterUpdateTransform registers an on-update transform under name.
func RegisterUpdateTransform(name string, fn UpdateTransform) {
	transformMap.Store(strings.ToLower(name), fn)
}

func lookupUpdateTransform(name string) (UpdateTransform, bool) {
	v, ok := transformMap.Load(strings.ToLower(name))
	if !ok {
		return nil, false
	}
	fn, ok := v.(UpdateTransform)
	return fn, ok
}

func init() {
	RegisterSerializer(DefaultSerializer, KindSerializer{})
	RegisterSerializer("json", JSONSerializer{})
	RegisterSerializer("msgpack", MsgpackSerializer{})
	RegisterSerializer("unixtime", UnixTimeSerializer{})
	RegisterSerializer("csv", CSVSerializer{})

	RegisterUpdateTransform("now", nowTransform)
}

// nowTransform sets time fields to the current UTC time and integer fields
// to the current unix second.
func nowTransform(field reflect.Value) error {
	now := time.Now().UTC()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		field = field.Elem()
	}
	switch {
	case field.Type() == timeType:
		field.Set(reflect.ValueOf(now))
	case field.CanInt():
		field.SetInt(now.Unix())
	default:
		return fmt.Errorf("%w: now transform on %s", ErrSerialization, field.Type())
	}
	return nil
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	bytesType           = reflect.TypeOf([]byte(nil))
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// KindSerializer converts by reflect kind: strings, integers, floats, bools,
// time.Time, []byte (base64) and encoding.TextMarshaler implementations.
// Structs, maps and slices fall back to JSON.
type KindSerializer struct{}

// Serialize implements Serializer.
func (KindSerializer) Serialize(_ any, v reflect.Value) (string, error) {
	t := v.Type()
	switch {
	case t == timeType:
		return v.Interface().(time.Time).UTC().Format(TimeLayout), nil
	case t == bytesType:
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	case t.Implements(textMarshalerType):
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		return string(b), nil
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), nil
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return JSONSerializer{}.Serialize(nil, v)
	}
	return "", fmt.Errorf("%w: no default conversion for %s", ErrSerialization, t)
}

// Deserialize implements Serializer.
func (KindSerializer) Deserialize(_ any, t reflect.Type, raw string) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	switch {
	case t == timeType:
		ts, err := parseTime(raw)
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(ts))
		return out, nil
	case t == bytesType:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		out.SetBytes(b)
		return out, nil
	case reflect.PointerTo(t).Implements(textUnmarshalerType):
		if err := out.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
			return out, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		return out, nil
	}

	var err error
	switch t.Kind() {
	case reflect.String:
		out.SetString(raw)
	case reflect.Bool:
		var b bool
		b, err = strconv.ParseBool(raw)
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		n, err = strconv.ParseInt(raw, 10, t.Bits())
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		n, err = strconv.ParseUint(raw, 10, t.Bits())
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		var f float64
		f, err = strconv.ParseFloat(raw, t.Bits())
		out.SetFloat(f)
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return JSONSerializer{}.Deserialize(nil, t, raw)
	default:
		return out, fmt.Errorf("%w: no default conversion for %s", ErrSerialization, t)
	}
	if err != nil {
		return reflect.New(t).Elem(), fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return out, nil
}

// parseTime accepts the stored layout, RFC 3339 and the plain timestamp
// format SQL engines use for CURRENT_TIMESTAMP.
func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid time %q", ErrSerialization, raw)
}

// JSONSerializer stores values as JSON text.
type JSONSerializer struct{}

// Serialize implements Serializer.
func (JSONSerializer) Serialize(_ any, v reflect.Value) (string, error) {
	b, err := json.Marshal(v.Interface())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return string(b), nil
}

// Deserialize implements Serializer.
func (JSONSerializer) Deserialize(_ any, t reflect.Type, raw string) (reflect.Value, error) {
	ptr := reflect.New(t)
	if raw == "" {
		return ptr.Elem(), nil
	}
	if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
		return reflect.New(t).Elem(), fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return ptr.Elem(), nil
}

// MsgpackSerializer stores values as base64 encoded MessagePack.
type MsgpackSerializer struct{}

// Serialize implements Serializer.
func (MsgpackSerializer) Serialize(_ any, v reflect.Value) (string, error) {
	b, err := msgpack.Marshal(v.Interface())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Deserialize implements Serializer.
func (MsgpackSerializer) Deserialize(_ any, t reflect.Type, raw string) (reflect.Value, error) {
	ptr := reflect.New(t)
	if raw == "" {
		return ptr.Elem(), nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ptr.Elem(), fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := msgpack.Unmarshal(b, ptr.Interface()); err != nil {
		return reflect.New(t).Elem(), fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return ptr.Elem(), nil
}

// UnixTimeSerializer stores time.Time fields as unix seconds.
type UnixTimeSerializer struct{}

// Serialize implements Serializer.
func (UnixTimeSerializer) Serialize(_ any, v reflect.Value) (string, error) {
	switch {
	case v.Type() == timeType:
		ts := v.Interface().(time.Time)
		if ts.IsZero() {
			return "0", nil
		}
		return strconv.FormatInt(ts.Unix(), 10), nil
	case v.CanInt():
		return strconv.FormatInt(v.Int(), 10), nil
	}
	return "", fmt.Errorf("%w: unixtime on %s", ErrSerialization, v.Type())
}

// Deserialize implements Serializer.
func (UnixTimeSerializer) Deserialize(_ any, t reflect.Type, raw string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	switch {
	case t == timeType:
		if n != 0 {
			out.Set(reflect.ValueOf(time.Unix(n, 0).UTC()))
		}
	case out.CanInt():
		out.SetInt(n)
	default:
		return out, fmt.Errorf("%w: unixtime on %s", ErrSerialization, t)
	}
	return out, nil
}

// CSVSerializer stores string slices as one CSV record.
type CSVSerializer struct{}

// Serialize implements Serializer.
func (CSVSerializer) Serialize(_ any, v reflect.Value) (string, error) {
	items, ok := v.Interface().([]string)
	if !ok {
		return "", fmt.Errorf("%w: csv on %s", ErrSerialization, v.Type())
	}
	if len(items) == 0 {
		return "", nil
	}
	if len(items) == 1 && items[0] == "" {
		// An empty record would read back as no items.
		return `""`, nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(items); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return strings.TrimRight(buf.String(), "\r\n"), nil
}

// Deserialize implements Serializer.
func (CSVSerializer) Deserialize(_ any, t reflect.Type, raw string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if t.Kind() != reflect.Slice || t.Elem().Kind() != reflect.String {
		return out, fmt.Errorf("%w: csv on %s", ErrSerialization, t)
	}
	if raw == "" {
		return out, nil
	}
	record, err := csv.NewReader(strings.NewReader(raw)).Read()
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	out.Set(reflect.ValueOf(record).Convert(t))
	return out, nil
}
