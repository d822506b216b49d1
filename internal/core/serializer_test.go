package core

import (
	"net/netip"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, s Serializer, v any) string {
	t.Helper()
	out, err := s.Serialize(nil, reflect.ValueOf(v))
	require.NoError(t, err)
	return out
}

func deserialize[T any](t *testing.T, s Serializer, raw string) T {
	t.Helper()
	v, err := s.Deserialize(nil, reflect.TypeOf((*T)(nil)).Elem(), raw)
	require.NoError(t, err)
	return v.Interface().(T)
}

func TestKindSerializer(t *testing.T) {
	s := KindSerializer{}

	assert.Equal(t, "hello", serialize(t, s, "hello"))
	assert.Equal(t, "-12", serialize(t, s, int16(-12)))
	assert.Equal(t, "12", serialize(t, s, uint8(12)))
	assert.Equal(t, "0.25", serialize(t, s, float32(0.25)))
	assert.Equal(t, "2.5", serialize(t, s, 2.5))
	assert.Equal(t, "true", serialize(t, s, true))
	assert.Equal(t, "AAH/", serialize(t, s, []byte{0, 1, 255}))
	assert.Equal(t, "10.0.0.1", serialize(t, s, netip.MustParseAddr("10.0.0.1")))
	assert.Equal(t, `{"a":1}`, serialize(t, s, map[string]int{"a": 1}))

	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-01-02T02:04:05.000000006Z", serialize(t, s, ts))

	assert.Equal(t, int64(-12), deserialize[int64](t, s, "-12"))
	assert.Equal(t, uint32(7), deserialize[uint32](t, s, "7"))
	assert.Equal(t, 2.5, deserialize[float64](t, s, "2.5"))
	assert.True(t, deserialize[bool](t, s, "true"))
	assert.Equal(t, []byte{0, 1, 255}, deserialize[[]byte](t, s, "AAH/"))
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), deserialize[netip.Addr](t, s, "10.0.0.1"))
	assert.Equal(t, map[string]int{"a": 1}, deserialize[map[string]int](t, s, `{"a":1}`))
	assert.True(t, ts.Equal(deserialize[time.Time](t, s, "2024-01-02T02:04:05.000000006Z")))
}

func TestKindSerializer_TimeLayouts(t *testing.T) {
	s := KindSerializer{}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, raw := range []string{"2024-01-02T03:04:05Z", "2024-01-02T04:04:05+01:00", "2024-01-02 03:04:05"} {
		got := deserialize[time.Time](t, s, raw)
		assert.True(t, want.Equal(got), raw)
	}
	day := deserialize[time.Time](t, s, "2024-01-02")
	assert.Equal(t, 2, day.Day())

	stored := serialize(t, s, want)
	later := serialize(t, s, want.Add(time.Nanosecond))
	assert.Len(t, later, len(stored), "stored times are fixed width")
	assert.Less(t, stored, later)
}

func TestKindSerializer_Errors(t *testing.T) {
	s := KindSerializer{}
	for typ, raw := range map[reflect.Type]string{
		reflect.TypeOf(int8(0)):     "300",
		reflect.TypeOf(uint(0)):     "-1",
		reflect.TypeOf(false):       "maybe",
		reflect.TypeOf(0.0):         "x",
		reflect.TypeOf([]byte(nil)): "!!",
		reflect.TypeOf(time.Time{}): "yesterday",
	} {
		_, err := s.Deserialize(nil, typ, raw)
		assert.ErrorIs(t, err, ErrSerialization, "%s from %q", typ, raw)
	}

	_, err := s.Serialize(nil, reflect.ValueOf(make(chan int)))
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestJSONSerializer(t *testing.T) {
	s := JSONSerializer{}
	type prefs struct {
		Lang string `json:"lang"`
	}

	assert.Equal(t, `{"lang":"en"}`, serialize(t, s, prefs{Lang: "en"}))
	assert.Equal(t, prefs{Lang: "de"}, deserialize[prefs](t, s, `{"lang":"de"}`))
	assert.Equal(t, prefs{}, deserialize[prefs](t, s, ""))

	_, err := s.Deserialize(nil, reflect.TypeOf(prefs{}), "{")
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestMsgpackSerializer(t *testing.T) {
	s := MsgpackSerializer{}
	in := payload{Name: "weather", Count: 2}

	raw := serialize(t, s, in)
	assert.NotContains(t, raw, "weather", "stored as base64")
	assert.Equal(t, in, deserialize[payload](t, s, raw))
	assert.Equal(t, payload{}, deserialize[payload](t, s, ""))

	_, err := s.Deserialize(nil, reflect.TypeOf(payload{}), "not base64!")
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestUnixTimeSerializer(t *testing.T) {
	s := UnixTimeSerializer{}
	ts := time.Unix(1700000000, 0).UTC()

	assert.Equal(t, "1700000000", serialize(t, s, ts))
	assert.Equal(t, "0", serialize(t, s, time.Time{}))
	assert.Equal(t, "5", serialize(t, s, int64(5)))
	assert.Equal(t, ts, deserialize[time.Time](t, s, "1700000000"))
	assert.True(t, deserialize[time.Time](t, s, "0").IsZero())
	assert.Equal(t, int64(5), deserialize[int64](t, s, "5"))

	_, err := s.Serialize(nil, reflect.ValueOf("now"))
	assert.ErrorIs(t, err, ErrSerialization)
	_, err = s.Deserialize(nil, reflect.TypeOf(time.Time{}), "soon")
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestCSVSerializer(t *testing.T) {
	s := CSVSerializer{}

	assert.Equal(t, `a,"b,c",d`, serialize(t, s, []string{"a", "b,c", "d"}))
	assert.Equal(t, "", serialize(t, s, []string(nil)))
	assert.Equal(t, []string{"a", "b,c", "d"}, deserialize[[]string](t, s, `a,"b,c",d`))
	assert.Nil(t, deserialize[[]string](t, s, ""))

	assert.Equal(t, `""`, serialize(t, s, []string{""}))
	assert.Equal(t, []string{""}, deserialize[[]string](t, s, `""`))
	assert.Equal(t, []string{"", ""}, deserialize[[]string](t, s, serialize(t, s, []string{"", ""})))

	_, err := s.Serialize(nil, reflect.ValueOf([]int{1}))
	assert.ErrorIs(t, err, ErrSerialization)
	_, err = s.Deserialize(nil, reflect.TypeOf(0), "1")
	assert.ErrorIs(t, err, ErrSerialization)
}

type upperSerializer struct{}

func (upperSerializer) Serialize(_ any, v reflect.Value) (string, error) {
	return strings.ToUpper(v.String()), nil
}

func (upperSerializer) Deserialize(_ any, t reflect.Type, raw string) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	out.SetString(strings.ToLower(raw))
	return out, nil
}

func TestRegisterSerializer(t *testing.T) {
	RegisterSerializer("Upper", upperSerializer{})

	s, ok := lookupSerializer("UPPER")
	require.True(t, ok)
	assert.Equal(t, "HI", serialize(t, s, "hi"))

	def, ok := lookupSerializer("")
	require.True(t, ok)
	assert.IsType(t, KindSerializer{}, def)

	_, ok = lookupSerializer("missing")
	assert.False(t, ok)

	type shouting struct {
		Model
		ID   int64  `db:"id,pk"`
		Word string `db:"word,serializer=upper"`
	}
	schema, err := SchemaOf(shouting{})
	require.NoError(t, err)
	p, _ := schema.Property("word")
	assert.Equal(t, "upper", p.Serializer)
}

func TestNowTransform(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)

	var at time.Time
	require.NoError(t, nowTransform(reflect.ValueOf(&at).Elem()))
	assert.True(t, at.After(before))

	var unix int64
	require.NoError(t, nowTransform(reflect.ValueOf(&unix).Elem()))
	assert.GreaterOrEqual(t, unix, before.Unix())

	var ptr *time.Time
	require.NoError(t, nowTransform(reflect.ValueOf(&ptr).Elem()))
	require.NotNil(t, ptr)
	assert.True(t, ptr.After(before))

	var s string
	assert.ErrorIs(t, nowTransform(reflect.ValueOf(&s).Elem()), ErrSerialization)

	fn, ok := lookupUpdateTransform("NOW")
	require.True(t, ok)
	assert.NotNil(t, fn)
}
