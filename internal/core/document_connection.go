package core

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/babblebot-server/server-sub000/internal/tracer"
)

// CountersCollection holds the per-table sequences used for native
// auto-increment on document backends.
const CountersCollection = "counters"

// DocumentConnection runs objects on a MongoDB database. Each table is a
// collection; documents are flattened into Rows with every value stringified.
type DocumentConnection struct {
	client   *mongo.Client
	database *mongo.Database
	renderer documentRenderer
	obs      *observer
}

// ConnectDocument dials uri and verifies the server is reachable.
func ConnectDocument(ctx context.Context, uri, database string) (*DocumentConnection, error) {
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, newExecutionError("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, newExecutionError("ping", err)
	}
	return NewDocumentConnection(client, database), nil
}

// NewDocumentConnection wraps a connected client.
func NewDocumentConnection(client *mongo.Client, database string) *DocumentConnection {
	return &DocumentConnection{
		client:   client,
		database: client.Database(database),
		obs:      newObserver("mongodb"),
	}
}

func (c *DocumentConnection) setObserver(o *observer) {
	o.system = "mongodb"
	c.obs = o
}

// Name returns "mongodb".
func (c *DocumentConnection) Name() string { return "mongodb" }

// Ping verifies the server is reachable.
func (c *DocumentConnection) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return newExecutionError("ping", err)
	}
	return nil
}

// Close disconnects the client.
func (c *DocumentConnection) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// ExecuteQuery runs a find and returns distinct rows.
func (c *DocumentConnection) ExecuteQuery(ctx context.Context, q *QueryObject) (rows []Row, err error) {
	filter := c.renderer.filter(q.Where, q.Schema)
	findOpts := c.renderer.findOptions(q)

	ctx, ob := c.obs.begin(ctx, tracer.SpanQuery, "SELECT", q.Table)
	ob.statement(describe("find", q.Table, filter), leafArgs(q.Where), leafColumns(q.Where), q.Schema)
	defer func() { ob.end(len(rows), 0, err) }()

	cursor, err := c.database.Collection(q.Table).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, newExecutionError("find", err)
	}
	defer cursor.Close(ctx)

	seen := make(map[string]bool)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, newExecutionError("decode", err)
		}
		row := documentRow(doc)
		if k := row.key(); !seen[k] {
			seen[k] = true
			rows = append(rows, row)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, newExecutionError("cursor", err)
	}
	return rows, nil
}

// ExecuteCommand runs an insert, update, delete or upsert.
func (c *DocumentConnection) ExecuteCommand(ctx context.Context, cmd *CommandObject) (res CommandResult, err error) {
	coll := c.database.Collection(cmd.Table)

	var filter bson.D
	switch cmd.Kind {
	case CommandUpdate, CommandDelete:
		filter = c.renderer.filter(cmd.Where, cmd.Schema)
	case CommandUpsert:
		if len(cmd.Conflict) == 0 {
			return res, WrapError(ErrUsage, "upsert requires conflict columns")
		}
		filter = c.renderer.conflictFilter(cmd)
	}
	doc := c.renderer.document(cmd)

	args := make([]any, 0, len(cmd.Values))
	for _, a := range cmd.Values {
		if a.Value.Valid {
			args = append(args, a.Value.String)
		} else {
			args = append(args, nil)
		}
	}
	ctx, ob := c.obs.begin(ctx, tracer.SpanCommand, cmd.Kind.String(), cmd.Table)
	ob.statement(describe(cmd.Kind.String(), cmd.Table, filter), args, cmd.Columns(), cmd.Schema)
	defer func() { ob.end(0, res.RowsAffected, err) }()

	switch cmd.Kind {
	case CommandInsert:
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return res, newExecutionError("insert", err)
		}
		res.RowsAffected = 1
	case CommandUpdate:
		if len(doc) == 0 {
			return res, WrapError(ErrUsage, "update without values")
		}
		r, err := coll.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: doc}})
		if err != nil {
			return res, newExecutionError("update", err)
		}
		res.RowsAffected = r.MatchedCount
	case CommandDelete:
		r, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return res, newExecutionError("delete", err)
		}
		res.RowsAffected = r.DeletedCount
	case CommandUpsert:
		r, err := coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: doc}}, mopt.Update().SetUpsert(true))
		if err != nil {
			return res, newExecutionError("upsert", err)
		}
		res.RowsAffected = r.MatchedCount + r.UpsertedCount
	default:
		return res, fmt.Errorf("%w: unknown command kind %d", ErrUsage, cmd.Kind)
	}
	return res, nil
}

// NextSequence atomically increments and returns the counter for table.column.
func (c *DocumentConnection) NextSequence(ctx context.Context, table, column string) (seq int64, err error) {
	id := table + "." + column
	ctx, ob := c.obs.begin(ctx, tracer.SpanSequence, "UPDATE", CountersCollection)
	ob.statement("findAndModify "+CountersCollection+" "+id, nil, nil, nil)
	defer func() { ob.end(0, 1, err) }()

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err = c.database.Collection(CountersCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		mopt.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mopt.After),
	).Decode(&doc)
	if err != nil {
		return 0, newExecutionError("sequence", err)
	}
	return doc.Seq, nil
}

// describe renders a short statement description for logs and spans.
func describe(op, collection string, filter bson.D) string {
	s := op + " " + collection
	if filter == nil {
		return s
	}
	b, err := bson.MarshalExtJSON(filter, false, false)
	if err != nil {
		return s
	}
	return s + " " + string(b)
}

func leafArgs(root *Statement) []any {
	var args []any
	for _, l := range root.Leaves() {
		if l.Comparator.isList() {
			for _, v := range l.Values {
				args = append(args, v)
			}
			continue
		}
		args = append(args, l.Value)
	}
	return args
}

func leafColumns(root *Statement) []string {
	var cols []string
	for _, l := range root.Leaves() {
		n := 1
		if l.Comparator.isList() {
			n = len(l.Values)
		}
		for i := 0; i < n; i++ {
			cols = append(cols, l.Key)
		}
	}
	return cols
}

// documentRow flattens a document into a Row. _id is kept only when it is
// not a generated ObjectID.
func documentRow(doc bson.M) Row {
	row := make(Row, len(doc))
	for k, v := range doc {
		if k == "_id" {
			if _, generated := v.(primitive.ObjectID); generated {
				continue
			}
		}
		row[k] = bsonString(v)
	}
	return row
}

func bsonString(v any) sql.NullString {
	switch x := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nullValue()
	case primitive.ObjectID:
		return stringValue(x.Hex())
	case primitive.DateTime:
		return stringValue(x.Time().UTC().Format(TimeLayout))
	case primitive.Timestamp:
		return stringValue(strconv.FormatUint(uint64(x.T), 10))
	case primitive.Decimal128:
		return stringValue(x.String())
	case primitive.Binary:
		return stringValue(base64.StdEncoding.EncodeToString(x.Data))
	case primitive.Regex:
		return stringValue(x.Pattern)
	case int32:
		return stringValue(strconv.FormatInt(int64(x), 10))
	case int64:
		return stringValue(strconv.FormatInt(x, 10))
	case float64:
		return stringValue(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		return stringValue(strconv.FormatBool(x))
	case string:
		return stringValue(x)
	case primitive.M, primitive.A:
		b, err := json.Marshal(x)
		if err != nil {
			return stringValue(fmt.Sprint(x))
		}
		return stringValue(string(b))
	}
	return toNullString(v)
}
