package core

import (
	"regexp"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// documentRenderer turns query and command objects into MongoDB filters,
// documents and find options. Values are converted to typed BSON when the
// object carries a schema so that numeric comparisons behave as in SQL.
type documentRenderer struct{}

// filter renders the predicate tree. Operator precedence follows SQL: in
// `a OR ( b ) AND ( c )` the AND binds tighter.
func (r documentRenderer) filter(root *Statement, schema *Schema) bson.D {
	if root == nil {
		return bson.D{}
	}
	return r.node(root, schema)
}

func (r documentRenderer) node(s *Statement, schema *Schema) bson.D {
	if !s.IsLeaf() {
		return r.group(s, schema)
	}

	head := r.leaf(s, schema)
	if len(s.Group) == 0 {
		return head
	}

	// Split the chain into OR separated terms of AND joined parts.
	terms := [][]bson.D{{head}}
	for _, child := range s.Group {
		part := r.group(child, schema)
		if len(part) == 0 {
			continue
		}
		if child.Operator == OR {
			terms = append(terms, []bson.D{part})
			continue
		}
		last := len(terms) - 1
		terms[last] = append(terms[last], part)
	}

	ors := make(bson.A, 0, len(terms))
	for _, term := range terms {
		ors = append(ors, joinDocs("$and", term))
	}
	if len(ors) == 1 {
		return ors[0].(bson.D)
	}
	return bson.D{{Key: "$or", Value: ors}}
}

func (r documentRenderer) group(g *Statement, schema *Schema) bson.D {
	if g.IsLeaf() {
		return r.node(g, schema)
	}
	parts := make([]bson.D, 0, len(g.Group))
	for _, s := range g.Group {
		if d := r.node(s, schema); len(d) > 0 {
			parts = append(parts, d)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	op := "$and"
	if g.Operator == OR {
		op = "$or"
	}
	return joinDocs(op, parts)
}

func joinDocs(op string, docs []bson.D) bson.D {
	if len(docs) == 1 {
		return docs[0]
	}
	arr := make(bson.A, len(docs))
	for i, d := range docs {
		arr[i] = d
	}
	return bson.D{{Key: op, Value: arr}}
}

var mongoOps = map[Comparator]string{
	EQ:  "$eq",
	NE:  "$ne",
	LT:  "$lt",
	LTE: "$lte",
	GT:  "$gt",
	GTE: "$gte",
}

func (r documentRenderer) leaf(s *Statement, schema *Schema) bson.D {
	var cond any
	switch s.Comparator {
	case In, NotIn:
		arr := make(bson.A, len(s.Values))
		for i, v := range s.Values {
			arr[i] = schema.native(s.Key, v)
		}
		op := "$in"
		if s.Comparator == NotIn {
			op = "$nin"
		}
		cond = bson.D{{Key: op, Value: arr}}
	case Like:
		cond = likeRegex(s.Value)
	case NotLike:
		cond = bson.D{{Key: "$not", Value: likeRegex(s.Value)}}
	default:
		var v any
		if !s.Null {
			v = schema.native(s.Key, s.Value)
		}
		cond = bson.D{{Key: mongoOps[s.Comparator], Value: v}}
	}
	return bson.D{{Key: s.Key, Value: cond}}
}

// likeRegex converts a SQL LIKE pattern into an anchored, case-insensitive
// regular expression.
func likeRegex(pattern string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + toMongoLikePattern(pattern) + "$", Options: "i"}
}

// toMongoLikePattern turns % into .* and _ into . and quotes everything else.
func toMongoLikePattern(input string) string {
	var b strings.Builder
	for _, r := range input {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// document renders the assignments of a command as a BSON document.
func (r documentRenderer) document(c *CommandObject) bson.D {
	doc := make(bson.D, 0, len(c.Values))
	for _, a := range c.Values {
		var v any
		if a.Value.Valid {
			v = c.Schema.native(a.Column, a.Value.String)
		}
		doc = append(doc, bson.E{Key: a.Column, Value: v})
	}
	return doc
}

// conflictFilter matches the row an upsert replaces.
func (r documentRenderer) conflictFilter(c *CommandObject) bson.D {
	filter := bson.D{}
	for _, a := range c.Values {
		if !slices.Contains(c.Conflict, a.Column) {
			continue
		}
		var v any
		if a.Value.Valid {
			v = c.Schema.native(a.Column, a.Value.String)
		}
		filter = append(filter, bson.E{Key: a.Column, Value: v})
	}
	return filter
}

// findOptions maps projection, order and limit.
func (r documentRenderer) findOptions(q *QueryObject) *mopt.FindOptions {
	opts := mopt.Find()
	if len(q.Columns) > 0 && !(len(q.Columns) == 1 && q.Columns[0] == "*") {
		proj := bson.D{{Key: "_id", Value: 0}}
		for _, c := range q.Columns {
			if c == "_id" {
				proj[0].Value = 1
				continue
			}
			proj = append(proj, bson.E{Key: c, Value: 1})
		}
		opts.SetProjection(proj)
	}
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}
