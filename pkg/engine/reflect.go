package engine

import (
	"context"

	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// Table is the reflected shape of a database table.
type Table struct {
	Name       string
	Columns    []string
	PrimaryKey []string

	columns map[string]struct{}
}

// NewTable builds a Table from column names.
func NewTable(name string, columns, primaryKey []string) *Table {
	t := &Table{
		Name:       name,
		Columns:    columns,
		PrimaryKey: primaryKey,
		columns:    make(map[string]struct{}, len(columns)),
	}
	for _, c := range columns {
		t.columns[c] = struct{}{}
	}
	return t
}

// HasColumn reports whether the table has a column with that exact name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// ReflectTable reads the columns and primary key of table from the live
// database through q, which may be the pool, a dedicated connection or a
// transaction.
func (e *Engine) ReflectTable(ctx context.Context, q Querier, table string) (*Table, error) {
	inspector, schemaName, err := e.inspector(q)
	if err != nil {
		return nil, err
	}

	s, err := inspector.InspectSchema(ctx, schemaName, &schema.InspectOptions{
		Mode:   schema.InspectTables,
		Tables: []string{table},
	})
	if err != nil {
		if schema.IsNotExistError(err) {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeNotFound, "schema not found").
				WithDetail("table", table)
		}
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to inspect table").
			WithDetail("table", table)
	}

	t, ok := s.Table(table)
	if !ok {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeNotFound, "table not found").
			WithDetail("table", table).
			WithDetail("engine", e.name)
	}

	columns := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		columns = append(columns, c.Name)
	}

	var pk []string
	if t.PrimaryKey != nil {
		for _, part := range t.PrimaryKey.Parts {
			if part.C != nil {
				pk = append(pk, part.C.Name)
			}
		}
	}

	e.logger.Debug("reflected table",
		zap.String("table", t.Name),
		zap.Strings("columns", columns),
		zap.Strings("primary_key", pk))
	return NewTable(t.Name, columns, pk), nil
}

func (e *Engine) inspector(q Querier) (schema.Inspector, string, error) {
	var (
		inspector schema.Inspector
		name      string
		err       error
	)

	switch e.driver {
	case DriverPostgres:
		inspector, err = postgres.Open(q)
	case DriverMySQL:
		inspector, err = mysql.Open(q)
	case DriverSQLite:
		inspector, err = sqlite.Open(q)
		name = "main"
	default:
		return nil, "", nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "reflection is not supported for driver %q", e.driver)
	}
	if err != nil {
		return nil, "", nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to open schema inspector").
			WithDetail("engine", e.name)
	}
	return inspector, name, nil
}
