package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDocumentFilter(t *testing.T) {
	schema, err := SchemaOf(textRow{})
	require.NoError(t, err)

	eq := func(key string, v any) bson.D {
		return bson.D{{Key: key, Value: bson.D{{Key: "$eq", Value: v}}}}
	}

	tests := []struct {
		name   string
		build  func() *Statement
		schema *Schema
		want   bson.D
	}{
		{
			name:  "empty",
			build: func() *Statement { return nil },
			want:  bson.D{},
		},
		{
			name:  "untyped leaf keeps strings",
			build: func() *Statement { return Where("id", EQ, 3) },
			want:  eq("id", "3"),
		},
		{
			name:   "typed leaf",
			build:  func() *Statement { return Where("id", EQ, 3) },
			schema: schema,
			want:   eq("id", int64(3)),
		},
		{
			name: "and chain",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).And(Where("b", EQ, 2))
				return f.Root()
			},
			want: bson.D{{Key: "$and", Value: bson.A{eq("a", "1"), eq("b", "2")}}},
		},
		{
			name: "and binds tighter than or",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).Or(Where("b", EQ, 2)).And(Where("c", EQ, 3))
				return f.Root()
			},
			want: bson.D{{Key: "$or", Value: bson.A{
				eq("a", "1"),
				bson.D{{Key: "$and", Value: bson.A{eq("b", "2"), eq("c", "3")}}},
			}}},
		},
		{
			name: "or group with several statements",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).Or(Where("b", EQ, 2), Where("c", EQ, 3))
				return f.Root()
			},
			want: bson.D{{Key: "$or", Value: bson.A{
				eq("a", "1"),
				bson.D{{Key: "$or", Value: bson.A{eq("b", "2"), eq("c", "3")}}},
			}}},
		},
		{
			name:  "like",
			build: func() *Statement { return Where("text", Like, "%Jo%") },
			want:  bson.D{{Key: "text", Value: primitive.Regex{Pattern: "^.*Jo.*$", Options: "i"}}},
		},
		{
			name:  "not like escapes regex metacharacters",
			build: func() *Statement { return Where("text", NotLike, "a.b_") },
			want: bson.D{{Key: "text", Value: bson.D{{Key: "$not",
				Value: primitive.Regex{Pattern: `^a\.b.$`, Options: "i"}}}}},
		},
		{
			name:   "in",
			build:  func() *Statement { return WhereIn("id", 1, 2) },
			schema: schema,
			want:   bson.D{{Key: "id", Value: bson.D{{Key: "$in", Value: bson.A{int64(1), int64(2)}}}}},
		},
		{
			name:  "not in",
			build: func() *Statement { return WhereNotIn("text", "x") },
			want:  bson.D{{Key: "text", Value: bson.D{{Key: "$nin", Value: bson.A{"x"}}}}},
		},
		{
			name:  "null",
			build: func() *Statement { return Where("user_id", EQ, nil) },
			want:  eq("user_id", nil),
		},
		{
			name:  "comparison",
			build: func() *Statement { return Where("id", GTE, 4) },
			want:  bson.D{{Key: "id", Value: bson.D{{Key: "$gte", Value: "4"}}}},
		},
	}

	var r documentRenderer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.filter(tt.build(), tt.schema))
		})
	}
}

func TestDocumentFindOptions(t *testing.T) {
	var r documentRenderer
	opts := r.findOptions(&QueryObject{
		Table:   "test",
		Columns: []string{"id", "text"},
		OrderBy: "id",
		Desc:    true,
		Limit:   1,
	})

	assert.Equal(t, bson.D{{Key: "_id", Value: 0}, {Key: "id", Value: 1}, {Key: "text", Value: 1}}, opts.Projection)
	assert.Equal(t, bson.D{{Key: "id", Value: -1}}, opts.Sort)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(1), *opts.Limit)

	opts = r.findOptions(&QueryObject{Table: "test"})
	assert.Nil(t, opts.Projection)
	assert.Nil(t, opts.Sort)
	assert.Nil(t, opts.Limit)
}

func TestDocumentCommand(t *testing.T) {
	schema, err := SchemaOf(textRow{})
	require.NoError(t, err)

	var r documentRenderer
	cmd := &CommandObject{
		Kind:  CommandUpsert,
		Table: "test",
		Values: []Assignment{
			{Column: "id", Value: stringValue("7")},
			{Column: "text", Value: stringValue("Pete")},
			{Column: "note", Value: nullValue()},
		},
		Conflict: []string{"id"},
		Schema:   schema,
	}

	assert.Equal(t, bson.D{
		{Key: "id", Value: int64(7)},
		{Key: "text", Value: "Pete"},
		{Key: "note", Value: nil},
	}, r.document(cmd))
	assert.Equal(t, bson.D{{Key: "id", Value: int64(7)}}, r.conflictFilter(cmd))
}

func TestDocumentRow(t *testing.T) {
	oid := primitive.NewObjectID()
	row := documentRow(bson.M{
		"_id":     oid,
		"id":      int64(3),
		"ratio":   0.5,
		"enabled": true,
		"text":    "Jo",
		"missing": nil,
		"tags":    bson.A{"a", "b"},
	})

	assert.False(t, row.Has("_id"))
	assert.Equal(t, "3", row.String("id"))
	assert.Equal(t, "0.5", row.String("ratio"))
	assert.Equal(t, "true", row.String("enabled"))
	assert.Equal(t, "Jo", row.String("text"))
	assert.True(t, row.Has("missing"))
	assert.True(t, row.IsNull("missing"))
	assert.Equal(t, `["a","b"]`, row.String("tags"))

	keyed := documentRow(bson.M{"_id": "custom"})
	assert.Equal(t, "custom", keyed.String("_id"))
}

func TestToMongoLikePattern(t *testing.T) {
	tests := map[string]string{
		"%admin_": ".*admin.",
		"Jo%":     "Jo.*",
		"a+b":     `a\+b`,
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, toMongoLikePattern(in), in)
	}
}
