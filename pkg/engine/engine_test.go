package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

func openSQLite(t *testing.T) *Engine {
	t.Helper()
	cfg := config.EngineConfig{
		Driver:   DriverSQLite,
		Database: filepath.Join(t.TempDir(), "engine.db"),
	}
	e, err := Open(context.Background(), "sql.engine", cfg, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), "bad", config.EngineConfig{Driver: "oracle", Database: "x"}, 0)
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))
}

func TestReflectTable(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()

	_, err := e.DB().ExecContext(ctx, `CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255),
		created_at DATETIME
	)`)
	require.NoError(t, err)

	table, err := e.ReflectTable(ctx, e.DB(), "users")
	require.NoError(t, err)

	assert.Equal(t, "users", table.Name)
	assert.Equal(t, []string{"id", "name", "created_at"}, table.Columns)
	assert.Equal(t, []string{"id"}, table.PrimaryKey)
	assert.True(t, table.HasColumn("created_at"))
	assert.False(t, table.HasColumn("updated_at"))
}

func TestReflectTableOnConnection(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()

	_, err := e.DB().ExecContext(ctx, `CREATE TABLE pairs (a TEXT, b TEXT, PRIMARY KEY (a, b))`)
	require.NoError(t, err)

	conn, err := e.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	table, err := e.ReflectTable(ctx, conn, "pairs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.PrimaryKey)
}

func TestReflectMissingTable(t *testing.T) {
	e := openSQLite(t)

	_, err := e.ReflectTable(context.Background(), e.DB(), "nope")
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound))
}

func TestScanRecords(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()

	_, err := e.DB().ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY, value TEXT, payload BLOB)`)
	require.NoError(t, err)
	_, err = e.DB().ExecContext(ctx, `INSERT INTO t (id, value, payload) VALUES (1, 'one', X'6869'), (2, NULL, NULL)`)
	require.NoError(t, err)

	rows, err := e.DB().QueryContext(ctx, `SELECT id, value, payload FROM t ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	records, err := ScanRecords(rows, "test")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"id", "value", "payload"}, records[0].Fields())
	assert.Equal(t, []interface{}{int64(1), "one", "hi"}, records[0].Values())
	assert.Equal(t, []interface{}{int64(2), nil, nil}, records[1].Values())
	assert.Equal(t, "test", records[0].Metadata.Source)
}

func TestScanRecordsRepeatedColumns(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()

	rows, err := e.DB().QueryContext(ctx, `SELECT 1 AS id, 2 AS id, 3 AS value`)
	require.NoError(t, err)
	defer rows.Close()

	records, err := ScanRecords(rows, "test")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"id", "id_1", "value"}, records[0].Fields())
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, records[0].Values())
}

func TestUniqueFields(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{in: []string{"a", "b"}, want: []string{"a", "b"}},
		{in: []string{"id", "id", "id"}, want: []string{"id", "id_1", "id_2"}},
		{in: []string{"id", "id", "id_1"}, want: []string{"id", "id_2", "id_1"}},
		{in: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, UniqueFields(tt.in))
		})
	}
}

func TestBuilderUsesDialect(t *testing.T) {
	pg := New("pg", DriverPostgres, nil)
	query, args := pg.Builder().
		Select().
		From(entsql.Table("users")).
		Where(entsql.EQ("id", 7)).
		Limit(1).
		Query()

	assert.Contains(t, query, `"users"`)
	assert.Contains(t, query, "$1")
	assert.Equal(t, []interface{}{7}, args)

	my := New("my", DriverMySQL, nil)
	query, _ = my.Builder().Insert("users").Columns("id").Values(7).Query()
	assert.Contains(t, query, "`users`")
	assert.Contains(t, query, "?")
}

func TestServices(t *testing.T) {
	s := NewServices()
	e := openSQLite(t)
	s.Register(e)

	got, err := s.Get("sql.engine")
	require.NoError(t, err)
	assert.Same(t, e, got)
	assert.Equal(t, []string{"sql.engine"}, s.Names())

	_, err = s.Get("other")
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))

	require.NoError(t, s.Close())
	assert.Empty(t, s.Names())
}

func TestOpenServices(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenServices(context.Background(), map[string]config.EngineConfig{
		"a": {Driver: DriverSQLite, Database: filepath.Join(dir, "a.db")},
		"b": {Driver: DriverSQLite, Database: filepath.Join(dir, "b.db")},
	}, 0)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"a", "b"}, s.Names())
}
