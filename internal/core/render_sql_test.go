package core

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babblebot-server/server-sub000/internal/dialects"
)

func renderer(t *testing.T, name string) sqlRenderer {
	t.Helper()
	return sqlRenderer{dialect: dialects.MustGetDialect(name)}
}

func renderWhere(t *testing.T, dialect string, root *Statement) (string, []any) {
	t.Helper()
	st := &sqlStatement{}
	clause := renderer(t, dialect).where(root, st)
	return strings.TrimPrefix(clause, " WHERE "), st.Args
}

func TestRenderWhere_Chains(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Statement
		want  string
		args  []any
	}{
		{
			name: "single leaf",
			build: func() *Statement {
				return Where("a", EQ, 1)
			},
			want: `"a"=?`,
			args: []any{"1"},
		},
		{
			name: "and",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).And(Where("b", EQ, 2))
				return f.Root()
			},
			want: `"a"=? AND ( "b"=? )`,
			args: []any{"1", "2"},
		},
		{
			name: "or then and keeps insertion order",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).Or(Where("b", EQ, 2)).And(Where("c", EQ, 3))
				return f.Root()
			},
			want: `"a"=? OR ( "b"=? ) AND ( "c"=? )`,
			args: []any{"1", "2", "3"},
		},
		{
			name: "several statements in one group",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).And(Where("b", EQ, 2), Where("c", NE, 3))
				return f.Root()
			},
			want: `"a"=? AND ( "b"=? AND "c"<>? )`,
			args: []any{"1", "2", "3"},
		},
		{
			name: "nested group with its own chain",
			build: func() *Statement {
				f := &Filter{}
				f.Where("a", EQ, 1).OrGroup(func(g *Filter) {
					g.Where("b", GT, 2).Where("c", LTE, 3)
				})
				return f.Root()
			},
			want: `"a"=? OR ( "b">? AND ( "c"<=? ) )`,
			args: []any{"1", "2", "3"},
		},
		{
			name: "like and not like",
			build: func() *Statement {
				f := &Filter{}
				f.Where("text", Like, "%Jo%").And(Where("text", NotLike, "Joe%"))
				return f.Root()
			},
			want: `"text" LIKE ? AND ( "text" NOT LIKE ? )`,
			args: []any{"%Jo%", "Joe%"},
		},
		{
			name: "in list",
			build: func() *Statement {
				return WhereIn("id", 1, 2, 3)
			},
			want: `"id" IN (?,?,?)`,
			args: []any{"1", "2", "3"},
		},
		{
			name: "empty in matches nothing",
			build: func() *Statement {
				return WhereIn("id")
			},
			want: `1=0`,
		},
		{
			name: "empty not in matches everything",
			build: func() *Statement {
				return WhereNotIn("id")
			},
			want: `1=1`,
		},
		{
			name: "null comparisons",
			build: func() *Statement {
				f := &Filter{}
				f.Where("user_id", EQ, nil).And(Where("channel_id", NE, nil))
				return f.Root()
			},
			want: `"user_id" IS NULL AND ( "channel_id" IS NOT NULL )`,
		},
		{
			name: "qualified column",
			build: func() *Statement {
				return Where("t.id", LT, 5)
			},
			want: `"t"."id"<?`,
			args: []any{"5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := renderWhere(t, "sqlite", tt.build())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestRenderWhere_Dialects(t *testing.T) {
	f := &Filter{}
	f.Where("a", EQ, 1).And(Where("b", EQ, 2))

	tests := []struct {
		dialect string
		want    string
	}{
		{"sqlite", `"a"=? AND ( "b"=? )`},
		{"mysql", "`a`=? AND ( `b`=? )"},
		{"postgres", `"a"=$1 AND ( "b"=$2 )`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			got, _ := renderWhere(t, tt.dialect, f.Root())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderQuery(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		q       QueryObject
		want    string
	}{
		{
			name:    "all columns",
			dialect: "sqlite",
			q:       QueryObject{Table: "test"},
			want:    `SELECT DISTINCT * FROM "test" AS "t"`,
		},
		{
			name:    "projection",
			dialect: "sqlite",
			q:       QueryObject{Table: "test", Alias: "x", Columns: []string{"id", "text"}},
			want:    `SELECT DISTINCT "id", "text" FROM "test" AS "x"`,
		},
		{
			name:    "order and limit sqlite",
			dialect: "sqlite",
			q:       QueryObject{Table: "test", OrderBy: "id", Desc: true, Limit: 1, Where: Where("text", Like, "%Jo%")},
			want:    `SELECT DISTINCT * FROM "test" AS "t" WHERE "text" LIKE ? ORDER BY "t"."id" DESC LIMIT 1`,
		},
		{
			name:    "order and limit mysql",
			dialect: "mysql",
			q:       QueryObject{Table: "test", OrderBy: "id", Limit: 5},
			want:    "SELECT DISTINCT * FROM `test` AS `t` ORDER BY `t`.`id` ASC LIMIT 5",
		},
		{
			name:    "order and limit postgres",
			dialect: "postgres",
			q:       QueryObject{Table: "test", OrderBy: "id", Limit: 5, Where: Where("id", GT, 2)},
			want:    `SELECT DISTINCT * FROM "test" AS "t" WHERE "id">$1 ORDER BY "t"."id" ASC LIMIT 5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := renderer(t, tt.dialect).query(&tt.q)
			assert.Equal(t, tt.want, st.SQL)
		})
	}
}

func TestRenderQuery_LimitAlwaysAfterOrderBy(t *testing.T) {
	for _, dialect := range []string{"sqlite", "mysql", "postgres"} {
		for _, desc := range []bool{false, true} {
			for _, limit := range []int{1, 10} {
				q := &QueryObject{Table: "test", OrderBy: "id", Desc: desc, Limit: limit, Where: Where("a", EQ, 1)}
				sqlText := renderer(t, dialect).query(q).SQL
				order := strings.Index(sqlText, " ORDER BY ")
				lim := strings.Index(sqlText, " LIMIT ")
				require.NotEqual(t, -1, order, sqlText)
				require.NotEqual(t, -1, lim, sqlText)
				assert.Less(t, order, lim, "%s: %s", dialect, sqlText)
				assert.True(t, strings.HasSuffix(sqlText, " LIMIT "+itoa(limit)), sqlText)
			}
		}
	}
}

func itoa(n int) string {
	s, _ := stringify(n)
	return s
}

func TestRenderCommand(t *testing.T) {
	values := []Assignment{
		{Column: "guild_id", Value: stringValue("1")},
		{Column: "user_id", Value: nullValue()},
	}

	tests := []struct {
		name    string
		dialect string
		cmd     CommandObject
		want    string
		args    []any
	}{
		{
			name:    "insert",
			dialect: "sqlite",
			cmd:     CommandObject{Kind: CommandInsert, Table: "ignores", Values: values},
			want:    `INSERT INTO "ignores"("guild_id","user_id") VALUES (?,?)`,
			args:    []any{stringValue("1"), nullValue()},
		},
		{
			name:    "insert returning postgres",
			dialect: "postgres",
			cmd:     CommandObject{Kind: CommandInsert, Table: "ignores", Values: values, Returning: "id"},
			want:    `INSERT INTO "ignores"("guild_id","user_id") VALUES ($1,$2) RETURNING "id"`,
			args:    []any{stringValue("1"), nullValue()},
		},
		{
			name:    "insert returning ignored by sqlite",
			dialect: "sqlite",
			cmd:     CommandObject{Kind: CommandInsert, Table: "ignores", Values: values, Returning: "id"},
			want:    `INSERT INTO "ignores"("guild_id","user_id") VALUES (?,?)`,
			args:    []any{stringValue("1"), nullValue()},
		},
		{
			name:    "insert defaults",
			dialect: "sqlite",
			cmd:     CommandObject{Kind: CommandInsert, Table: "ignores"},
			want:    `INSERT INTO "ignores" DEFAULT VALUES`,
		},
		{
			name:    "insert defaults mysql",
			dialect: "mysql",
			cmd:     CommandObject{Kind: CommandInsert, Table: "ignores"},
			want:    "INSERT INTO `ignores`() VALUES ()",
		},
		{
			name:    "update",
			dialect: "sqlite",
			cmd: CommandObject{
				Kind:   CommandUpdate,
				Table:  "ignores",
				Values: []Assignment{{Column: "channel_id", Value: stringValue("7")}},
				Where:  Where("id", EQ, 3),
			},
			want: `UPDATE "ignores" SET "channel_id"=? WHERE "id"=?`,
			args: []any{stringValue("7"), "3"},
		},
		{
			name:    "update postgres numbers placeholders in order",
			dialect: "postgres",
			cmd: CommandObject{
				Kind:   CommandUpdate,
				Table:  "ignores",
				Values: values,
				Where:  Where("id", EQ, 3),
			},
			want: `UPDATE "ignores" SET "guild_id"=$1,"user_id"=$2 WHERE "id"=$3`,
			args: []any{stringValue("1"), nullValue(), "3"},
		},
		{
			name:    "delete",
			dialect: "mysql",
			cmd:     CommandObject{Kind: CommandDelete, Table: "ignores", Where: Where("id", EQ, 3)},
			want:    "DELETE FROM `ignores` WHERE `id`=?",
			args:    []any{"3"},
		},
		{
			name:    "upsert sqlite",
			dialect: "sqlite",
			cmd: CommandObject{
				Kind:     CommandUpsert,
				Table:    "announcement_channels",
				Values:   []Assignment{{Column: "channel_id", Value: stringValue("9")}, {Column: "guild_id", Value: stringValue("1")}},
				Conflict: []string{"guild_id"},
			},
			want: `INSERT INTO "announcement_channels"("channel_id","guild_id") VALUES (?,?) ON CONFLICT ("guild_id") DO UPDATE SET "channel_id" = excluded."channel_id"`,
			args: []any{stringValue("9"), stringValue("1")},
		},
		{
			name:    "upsert mysql",
			dialect: "mysql",
			cmd: CommandObject{
				Kind:     CommandUpsert,
				Table:    "announcement_channels",
				Values:   []Assignment{{Column: "channel_id", Value: stringValue("9")}, {Column: "guild_id", Value: stringValue("1")}},
				Conflict: []string{"guild_id"},
			},
			want: "INSERT INTO `announcement_channels`(`channel_id`,`guild_id`) VALUES (?,?) ON DUPLICATE KEY UPDATE `channel_id` = VALUES(`channel_id`)",
			args: []any{stringValue("9"), stringValue("1")},
		},
		{
			name:    "upsert postgres returning",
			dialect: "postgres",
			cmd: CommandObject{
				Kind:      CommandUpsert,
				Table:     "announcement_channels",
				Values:    []Assignment{{Column: "guild_id", Value: stringValue("1")}},
				Conflict:  []string{"guild_id"},
				Returning: "id",
			},
			want: `INSERT INTO "announcement_channels"("guild_id") VALUES ($1) ON CONFLICT ("guild_id") DO NOTHING RETURNING "id"`,
			args: []any{stringValue("1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := renderer(t, tt.dialect).command(&tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.SQL)
			assert.Equal(t, tt.args, st.Args)
		})
	}
}

func TestRenderCommand_Errors(t *testing.T) {
	r := renderer(t, "sqlite")

	_, err := r.command(&CommandObject{Kind: CommandUpdate, Table: "ignores", Where: Where("id", EQ, 1)})
	assert.ErrorIs(t, err, ErrUsage)

	_, err = r.command(&CommandObject{Kind: CommandUpsert, Table: "ignores", Values: []Assignment{{Column: "a", Value: sql.NullString{}}}})
	assert.ErrorIs(t, err, ErrUsage)

	_, err = r.command(&CommandObject{Kind: CommandKind(99), Table: "ignores"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRenderSQL_ArgumentColumns(t *testing.T) {
	st, err := renderer(t, "sqlite").command(&CommandObject{
		Kind:   CommandUpdate,
		Table:  "plugin_models",
		Values: []Assignment{{Column: "secret", Value: stringValue("hunter2")}},
		Where:  Where("id", EQ, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"secret", "id"}, st.Columns)
}
