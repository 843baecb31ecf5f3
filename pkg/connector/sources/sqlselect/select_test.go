package sqlselect

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

const totalRows = 10

// countingQuerier records every query sent to the database.
type countingQuerier struct {
	engine.Querier
	queries []string
}

func (c *countingQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	c.queries = append(c.queries, query)
	return c.Querier.QueryContext(ctx, query, args...)
}

func seededServices(t *testing.T) *engine.Services {
	t.Helper()
	ctx := context.Background()

	e, err := engine.Open(ctx, config.DefaultEngineName, config.EngineConfig{
		Driver:   engine.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "select.db"),
	}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	_, err = e.DB().ExecContext(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	for i := 1; i <= totalRows; i++ {
		_, err = e.DB().ExecContext(ctx, `INSERT INTO items (id, value) VALUES (?, ?)`, i, fmt.Sprintf("value for %d", i))
		require.NoError(t, err)
	}

	services := engine.NewServices()
	services.Register(e)
	return services
}

func newCountingSelect(t *testing.T, cfg *config.SelectConfig) (*Select, *countingQuerier) {
	t.Helper()
	s, err := newSelect(cfg, seededServices(t))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	counter := &countingQuerier{Querier: s.querier}
	s.querier = counter
	return s, counter
}

func readAll(t *testing.T, s core.Source) ([]*pool.Record, error) {
	t.Helper()
	stream, err := s.Read(context.Background())
	require.NoError(t, err)

	var records []*pool.Record
	for rec := range stream.Records {
		records = append(records, rec)
	}
	return records, <-stream.Errors
}

func ids(records []*pool.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		v, _ := r.Get("id")
		out[i] = v.(int64)
	}
	return out
}

func intPtr(v int) *int { return &v }

var limitPattern = regexp.MustCompile(`LIMIT (\d+)`)

func TestPagination(t *testing.T) {
	pageSizes := []int{1, 3, 10, 15}
	limits := []*int{nil, intPtr(0), intPtr(1), intPtr(4), intPtr(10), intPtr(25)}

	for _, pageSize := range pageSizes {
		for _, limit := range limits {
			name := fmt.Sprintf("page=%d/limit=nil", pageSize)
			if limit != nil {
				name = fmt.Sprintf("page=%d/limit=%d", pageSize, *limit)
			}

			t.Run(name, func(t *testing.T) {
				cfg := config.NewSelectConfig("SELECT id, value FROM items ORDER BY id")
				cfg.PageSize = pageSize
				cfg.Limit = limit

				s, counter := newCountingSelect(t, cfg)
				records, err := readAll(t, s)
				require.NoError(t, err)

				want := totalRows
				if limit != nil && *limit < want {
					want = *limit
				}
				expected := make([]int64, want)
				for i := range expected {
					expected[i] = int64(i + 1)
				}
				assert.Equal(t, expected, ids(records), "rows in order without gaps or duplicates")

				for i, r := range records {
					assert.Equal(t, int64(i), r.Metadata.Offset)
				}

				for _, q := range counter.queries {
					m := limitPattern.FindStringSubmatch(q)
					require.Len(t, m, 2, q)
					n, _ := strconv.Atoi(m[1])
					assert.LessOrEqual(t, n, pageSize, q)
					assert.Greater(t, n, 0, q)
				}

				var wantQueries int
				if limit != nil && *limit <= totalRows {
					wantQueries = (*limit + pageSize - 1) / pageSize
				} else {
					wantQueries = (totalRows+pageSize-1)/pageSize + 1
				}
				assert.Len(t, counter.queries, wantQueries)
			})
		}
	}
}

func TestLimitZeroIssuesNoQuery(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id FROM items").WithLimit(0)
	s, counter := newCountingSelect(t, cfg)

	records, err := readAll(t, s)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, counter.queries)
}

func TestFirstPageOmitsOffset(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id FROM items ORDER BY id;\n ")
	cfg.PageSize = 4
	s, counter := newCountingSelect(t, cfg)

	_, err := readAll(t, s)
	require.NoError(t, err)

	require.NotEmpty(t, counter.queries)
	assert.Equal(t, "SELECT id FROM items ORDER BY id LIMIT 4", counter.queries[0])
	assert.Equal(t, "SELECT id FROM items ORDER BY id LIMIT 4 OFFSET 4", counter.queries[1])
}

func TestEmptyResult(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id FROM items WHERE id > 1000")
	s, counter := newCountingSelect(t, cfg)

	records, err := readAll(t, s)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, counter.queries, 1)
	assert.Empty(t, s.OutputFields())
}

func TestReadRestartsFromTheBeginning(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id, value FROM items ORDER BY id")
	cfg.PageSize = 4
	s, _ := newCountingSelect(t, cfg)

	first, err := readAll(t, s)
	require.NoError(t, err)
	second, err := readAll(t, s)
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
}

func TestOutputFieldsInferredFromFirstRow(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT value, id FROM items ORDER BY id")
	s, _ := newCountingSelect(t, cfg)
	assert.Empty(t, s.OutputFields())

	records, err := readAll(t, s)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	assert.Equal(t, []string{"value", "id"}, s.OutputFields())
	assert.Equal(t, []string{"value", "id"}, records[0].Fields())

	v, _ := records[2].Get("value")
	assert.Equal(t, "value for 3", v)
}

func TestDeclaredOutputFields(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id, value FROM items ORDER BY id")
	cfg.OutputFields = []string{"id", "value"}
	s, counter := newCountingSelect(t, cfg)

	schema, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "value"}, schema.FieldNames())
	assert.Empty(t, counter.queries, "declared fields need no query")
}

func TestDiscoverAsksTheDatabase(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id, value AS label FROM items")
	s, counter := newCountingSelect(t, cfg)

	schema, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label"}, schema.FieldNames())
	assert.Len(t, counter.queries, 1)
}

func TestShapeMismatchIsValidationError(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id, value FROM items ORDER BY id")
	cfg.OutputFields = []string{"id", "value", "extra"}
	s, _ := newCountingSelect(t, cfg)

	records, err := readAll(t, s)
	require.Error(t, err)
	assert.Empty(t, records)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeValidation))
}

func TestRepeatedColumnNamesAreKept(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT a.id, b.id, a.value FROM items a JOIN items b ON b.id = a.id + 1 ORDER BY a.id")
	s, _ := newCountingSelect(t, cfg)

	records, err := readAll(t, s)
	require.NoError(t, err)
	require.Len(t, records, totalRows-1)

	assert.Equal(t, []string{"id", "id_1", "value"}, s.OutputFields())
	assert.Equal(t, []interface{}{int64(1), int64(2), "value for 1"}, records[0].Values())
}

func TestLookupBindsInputAfterArgs(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id, value FROM items WHERE id > ? AND id <= ? ORDER BY id")
	cfg.Args = []interface{}{5}
	cfg.PageSize = 2
	s, counter := newCountingSelect(t, cfg)

	in := pool.NewRecord("orders", []string{"upto"}, []interface{}{8})
	defer in.Release()

	records, err := s.Lookup(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"upto", "id", "value"}, records[0].Fields())
	assert.Equal(t, []int64{6, 7, 8}, ids(records))
	for _, r := range records {
		upto, _ := r.Get("upto")
		assert.Equal(t, 8, upto)
	}
	assert.Equal(t, []string{"upto", "id", "value"}, s.OutputFields())
	// pages of 2 and 1 rows, then an empty page ends the read
	require.Len(t, counter.queries, 3)
	assert.NotContains(t, counter.queries[0], "OFFSET")
	assert.Contains(t, counter.queries[1], "LIMIT 2 OFFSET 2")
	assert.Equal(t, 1, in.Len(), "input record is left untouched")
}

func TestLookupPerRecord(t *testing.T) {
	s, _ := newCountingSelect(t, config.NewSelectConfig("SELECT value FROM items WHERE id = ?"))
	ctx := context.Background()

	for _, id := range []int{3, 7} {
		in := pool.NewRecord("orders", []string{"id"}, []interface{}{id})
		records, err := s.Lookup(ctx, in)
		in.Release()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []interface{}{id, fmt.Sprintf("value for %d", id)}, records[0].Values())
	}

	in := pool.NewRecord("orders", []string{"id"}, []interface{}{42})
	defer in.Release()
	records, err := s.Lookup(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLookupInputCollidesWithColumn(t *testing.T) {
	s, _ := newCountingSelect(t, config.NewSelectConfig("SELECT id FROM items WHERE id = ?"))

	in := pool.NewRecord("orders", []string{"id"}, []interface{}{4})
	defer in.Release()

	records, err := s.Lookup(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"id", "id_1"}, records[0].Fields())
}

func TestLookupShapeMismatch(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT value FROM items WHERE id = ?")
	cfg.OutputFields = []string{"value"}
	s, _ := newCountingSelect(t, cfg)

	in := pool.NewRecord("orders", []string{"id"}, []interface{}{1})
	defer in.Release()

	_, err := s.Lookup(context.Background(), in)
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeValidation))
}

func TestFormatterSkipsAndReshapes(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id, value FROM items ORDER BY id")
	s, _ := newCountingSelect(t, cfg)
	s.SetFormatter(func(in, row *pool.Record) *pool.Record {
		id, _ := row.Get("id")
		if id.(int64)%2 == 1 {
			row.Release()
			return nil
		}
		row.Delete("value")
		return row
	})

	records, err := readAll(t, s)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6, 8, 10}, ids(records))
	assert.Equal(t, []string{"id"}, s.OutputFields())
}

func TestQueryErrorIsUnrecoverable(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT id FROM missing_table")
	s, counter := newCountingSelect(t, cfg)

	_, err := readAll(t, s)
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeQuery))
	assert.True(t, nebulaerrors.IsUnrecoverable(err))
	assert.Len(t, counter.queries, 1, "query errors are not retried")
}

func TestInitializeUnknownEngine(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT 1")
	cfg.Engine = "other.engine"

	s, err := newSelect(cfg, engine.NewServices())
	require.NoError(t, err)

	err = s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))
}

func TestNewSelectValidatesConfig(t *testing.T) {
	cfg := config.NewSelectConfig("SELECT 1")
	cfg.PageSize = -1

	_, err := NewSelect(cfg, engine.NewServices())
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))
}

func TestNextPageSize(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		pageSize int
		limit    *int
		want     int
	}{
		{"unlimited", 20, 10, nil, 10},
		{"limit above page", 0, 10, intPtr(25), 10},
		{"limit clamps last page", 20, 10, intPtr(25), 5},
		{"limit reached", 25, 10, intPtr(25), 0},
		{"limit zero", 0, 10, intPtr(0), 0},
		{"limit below page", 0, 10, intPtr(3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextPageSize(tt.offset, tt.pageSize, tt.limit))
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1", NormalizeQuery("SELECT 1;\n  ;"))
	assert.Equal(t, "SELECT ';'", NormalizeQuery("SELECT ';'"))
	assert.Equal(t, "SELECT 1 LIMIT 5 OFFSET 10", PageQuery("SELECT 1", 5, 10))
}
