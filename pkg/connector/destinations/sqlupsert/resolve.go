package sqlupsert

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/metrics"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// insertOrUpdate writes rec through q. A row matching every discriminant
// column is updated, otherwise rec is inserted. rec is stamped with the
// timestamp fields and the configured fetch columns.
func (s *Session) insertOrUpdate(ctx context.Context, q engine.Querier, rec *pool.Record) error {
	cfg := s.w.cfg

	existing, err := s.find(ctx, q, rec)
	if err != nil {
		return err
	}
	found := existing != nil
	if found {
		existing.Release()
	}

	now := s.w.clock.Now()
	if s.table.HasColumn(cfg.UpdatedAtField) {
		rec.Set(cfg.UpdatedAtField, now)
	}

	var op config.Operation
	if found {
		op = config.OperationUpdate
		if !cfg.Allows(op) {
			return prohibited(op, cfg.Table)
		}
		if err := s.update(ctx, q, rec); err != nil {
			return err
		}
	} else {
		op = config.OperationInsert
		if !cfg.Allows(op) {
			return prohibited(op, cfg.Table)
		}
		if s.table.HasColumn(cfg.CreatedAtField) {
			rec.Set(cfg.CreatedAtField, now)
		} else {
			rec.Delete(cfg.CreatedAtField)
		}
		if err := s.insert(ctx, q, rec); err != nil {
			return err
		}
	}

	if len(cfg.FetchColumns) > 0 {
		if err := s.fetchColumns(ctx, q, rec); err != nil {
			return err
		}
	}

	rec.Metadata.Table = cfg.Table
	rec.Metadata.Operation = string(op)
	metrics.RowsWritten.WithLabelValues(cfg.Table, string(op)).Inc()
	s.w.GetMetricsCollector().RecordCounter("rows_"+string(op), 1)
	return nil
}

// find returns the first row matching rec's discriminant values, or nil.
func (s *Session) find(ctx context.Context, q engine.Querier, rec *pool.Record) (*pool.Record, error) {
	query, args := s.w.engine.Builder().
		Select().
		From(entsql.Table(s.w.cfg.Table)).
		Where(s.discriminantPredicate(rec)).
		Limit(1).
		Query()

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(err, query)
	}
	defer rows.Close()

	records, err := engine.ScanRecords(rows, s.w.Name())
	if err != nil {
		return nil, queryError(err, query)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// discriminantPredicate matches every discriminant column. Missing or nil
// values compare with IS NULL.
func (s *Session) discriminantPredicate(rec *pool.Record) *entsql.Predicate {
	preds := make([]*entsql.Predicate, 0, len(s.w.cfg.Discriminant))
	for _, col := range s.w.cfg.Discriminant {
		v, ok := rec.Get(col)
		if !ok || v == nil {
			preds = append(preds, entsql.IsNull(col))
			continue
		}
		preds = append(preds, entsql.EQ(col, v))
	}
	return entsql.And(preds...)
}

func (s *Session) update(ctx context.Context, q engine.Querier, rec *pool.Record) error {
	columns := s.updateColumns(rec)
	if len(columns) == 0 {
		s.log.Debug("nothing to update", zap.String("record", rec.ID))
		return nil
	}

	b := s.w.engine.Builder().Update(s.w.cfg.Table)
	for _, col := range columns {
		v, _ := rec.Get(col)
		b.Set(col, v)
	}
	query, args := b.Where(s.discriminantPredicate(rec)).Query()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return queryError(err, query)
	}
	return nil
}

func (s *Session) insert(ctx context.Context, q engine.Querier, rec *pool.Record) error {
	columns := s.insertColumns(rec)
	b := s.w.engine.Builder().Insert(s.w.cfg.Table)
	if len(columns) == 0 {
		// no table column on the record: let the database fill every column
		b.Default()
	} else {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i], _ = rec.Get(col)
		}
		b.Columns(columns...).Values(values...)
	}

	query, args := b.Query()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return queryError(err, query)
	}
	return nil
}

// insertColumns are the table columns present on rec, in table order.
func (s *Session) insertColumns(rec *pool.Record) []string {
	columns := make([]string, 0, len(s.table.Columns))
	for _, col := range s.table.Columns {
		if rec.Has(col) {
			columns = append(columns, col)
		}
	}
	return columns
}

// updateColumns are the insert columns without the insert-only fields.
func (s *Session) updateColumns(rec *pool.Record) []string {
	columns := s.insertColumns(rec)
	if len(s.w.cfg.InsertOnlyFields) == 0 {
		return columns
	}

	out := columns[:0]
	for _, col := range columns {
		if !contains(s.w.cfg.InsertOnlyFields, col) {
			out = append(out, col)
		}
	}
	return out
}

// fetchColumns reads the written row back and copies each configured column
// onto rec under its alias.
func (s *Session) fetchColumns(ctx context.Context, q engine.Querier, rec *pool.Record) error {
	row, err := s.find(ctx, q, rec)
	if err != nil {
		return err
	}
	if row == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "could not find matching row after load").
			WithDetail("table", s.w.cfg.Table).
			WithDetail("discriminant", s.w.cfg.Discriminant)
	}
	defer row.Release()

	for _, fc := range s.w.cfg.FetchColumns {
		v, _ := row.Get(fc.Column)
		rec.Set(fc.Alias, v)
	}
	return nil
}

func prohibited(op config.Operation, table string) error {
	return nebulaerrors.Newf(nebulaerrors.ErrorTypeProhibited, "%s is not allowed", op).
		WithDetail("table", table)
}

func queryError(err error, query string) error {
	return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "unable to execute query").
		WithDetail("query", query).
		Unrecoverable()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
