// Package sqlselect implements the sql_select source: a paginated reader that
// runs a base query page by page with LIMIT/OFFSET and emits one record per row.
package sqlselect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/base"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/metrics"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sql/pkg/observability"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// ConnectorName is the registry name of the reader.
const ConnectorName = "sql_select"

// Select reads the result of a query in pages.
type Select struct {
	*base.BaseConnector

	cfg      *config.SelectConfig
	query    string
	services *engine.Services
	engine   *engine.Engine
	querier  engine.Querier

	mu           sync.RWMutex
	outputFields []string
	formatter    FormatFunc
}

// FormatFunc turns a result row into the emitted record. in is the lookup
// input and nil when reading as a source. Returning nil skips the row.
// The function owns row.
type FormatFunc func(in, row *pool.Record) *pool.Record

// NewSelect creates a reader. The engine named by cfg.Engine is resolved from
// services in Initialize.
func NewSelect(cfg *config.SelectConfig, services *engine.Services) (core.Source, error) {
	return newSelect(cfg, services)
}

func newSelect(cfg *config.SelectConfig, services *engine.Services) (*Select, error) {
	if cfg == nil {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "select config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid select config").
			WithDetail("connector", cfg.Name)
	}

	s := &Select{
		BaseConnector: base.NewBaseConnector(cfg.Name, core.ConnectorTypeSource, "1.0.0"),
		cfg:           cfg,
		query:         NormalizeQuery(cfg.Query),
		services:      services,
		formatter:     PrefixInput,
	}
	s.Configure(&cfg.BaseConfig)
	if len(cfg.OutputFields) > 0 {
		s.outputFields = append([]string(nil), cfg.OutputFields...)
	}
	return s, nil
}

// SetFormatter replaces the row formatter. The default is PrefixInput.
func (s *Select) SetFormatter(f FormatFunc) {
	if f == nil {
		f = PrefixInput
	}
	s.formatter = f
}

// PrefixInput returns row unchanged without input, otherwise a record with
// the fields of in followed by the fields of row. Repeated names are made
// unique with engine.UniqueFields.
func PrefixInput(in, row *pool.Record) *pool.Record {
	if in == nil || in.Len() == 0 {
		return row
	}

	fields := engine.UniqueFields(append(in.Fields(), row.Fields()...))
	values := append(in.Values(), row.Values()...)
	out := pool.NewRecord(row.Metadata.Source, fields, values)
	out.Metadata.Offset = row.Metadata.Offset
	row.Release()
	return out
}

// NormalizeQuery strips trailing spaces, newlines and semicolons so the
// query can be suffixed with LIMIT and OFFSET.
func NormalizeQuery(query string) string {
	return strings.TrimRight(query, " \n;")
}

// Initialize resolves the engine.
func (s *Select) Initialize(ctx context.Context) error {
	if s.querier != nil {
		return nil
	}
	if s.services == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "no engine services configured").
			WithDetail("connector", s.Name())
	}

	e, err := s.services.Get(s.cfg.Engine)
	if err != nil {
		return err
	}
	s.engine = e
	s.querier = e.DB()

	s.GetLogger().Info("sql select initialized",
		zap.String("engine", e.Name()),
		zap.Int("page_size", s.cfg.PageSize),
		zap.Any("limit", s.cfg.Limit))
	return nil
}

// OutputFields returns the declared fields, or the columns of the first row
// read once one has been read.
func (s *Select) OutputFields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.outputFields...)
}

// Discover returns the output fields, asking the database for the result
// columns when none are known yet.
func (s *Select) Discover(ctx context.Context) (*core.Schema, error) {
	fields := s.OutputFields()
	if len(fields) == 0 {
		if err := s.ensureInitialized(ctx); err != nil {
			return nil, err
		}

		qctx, cancel := s.WithStatementTimeout(ctx)
		defer cancel()

		rows, err := s.querier.QueryContext(qctx, "SELECT * FROM ("+s.query+") AS q LIMIT 0", s.cfg.Args...)
		if err != nil {
			return nil, queryError(err, s.query)
		}
		defer rows.Close()

		if fields, err = rows.Columns(); err != nil {
			return nil, queryError(err, s.query)
		}
	}

	schema := &core.Schema{Name: s.Name(), Fields: make([]core.Field, len(fields))}
	for i, f := range fields {
		schema.Fields[i] = core.Field{Name: f}
	}
	return schema, nil
}

// Read starts a fresh paginated read. Records are delivered on the stream
// until the limit is reached or a page comes back empty.
func (s *Select) Read(ctx context.Context) (*core.RecordStream, error) {
	if err := s.Health(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	records := make(chan *pool.Record, s.cfg.PageSize)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		emit := func(rec *pool.Record) error {
			select {
			case records <- rec:
				return nil
			case <-ctx.Done():
				rec.Release()
				return ctx.Err()
			}
		}
		if err := s.readPages(ctx, nil, emit); err != nil {
			errs <- err
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}, nil
}

// Lookup runs the paginated query for one input record. The values of in are
// bound after the configured args, and each result row is passed through the
// formatter, by default prefixing it with the fields of in.
func (s *Select) Lookup(ctx context.Context, in *pool.Record) ([]*pool.Record, error) {
	if err := s.Health(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	var out []*pool.Record
	err := s.readPages(ctx, in, func(rec *pool.Record) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		for _, r := range out {
			r.Release()
		}
		return nil, err
	}
	s.GetMetricsCollector().RecordCounter("lookups", 1)
	return out, nil
}

func (s *Select) ensureInitialized(ctx context.Context) error {
	if s.querier != nil {
		return nil
	}
	return s.Initialize(ctx)
}

// readPages runs the query page by page and hands every formatted row to
// emit, which owns it from then on.
func (s *Select) readPages(ctx context.Context, in *pool.Record, emit func(*pool.Record) error) error {
	log := s.GetLogger()
	collector := s.GetMetricsCollector()
	offset := 0

	args := s.cfg.Args
	if in != nil {
		args = append(append([]interface{}(nil), s.cfg.Args...), in.Values()...)
	}

	for {
		n := nextPageSize(offset, s.cfg.PageSize, s.cfg.Limit)
		if n == 0 {
			log.Debug("limit reached", zap.Int("offset", offset))
			return nil
		}

		page, err := s.fetchPage(ctx, n, offset, args)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			log.Debug("empty page, read complete", zap.Int("offset", offset))
			return nil
		}

		metrics.PagesFetched.WithLabelValues(s.Name()).Inc()
		collector.RecordCounter("pages_fetched", 1)

		for i, row := range page {
			row.Metadata.Offset = int64(offset + i)
			rec := s.formatter(in, row)
			if rec == nil {
				continue
			}
			if err := s.checkShape(rec); err != nil {
				rec.Release()
				releaseFrom(page, i+1)
				return err
			}
			if err := emit(rec); err != nil {
				releaseFrom(page, i+1)
				return err
			}
		}

		metrics.RowsRead.WithLabelValues(s.Name()).Add(float64(len(page)))
		collector.RecordCounter("rows_read", float64(len(page)))
		offset += len(page)
	}
}

func (s *Select) fetchPage(ctx context.Context, n, offset int, args []interface{}) (records []*pool.Record, err error) {
	ctx, span := observability.StartSpan(ctx, "sql_select.page",
		attribute.String("connector", s.Name()),
		attribute.Int("limit", n),
		attribute.Int("offset", offset))
	defer func() { observability.EndSpan(span, err) }()

	qctx, cancel := s.WithStatementTimeout(ctx)
	defer cancel()

	query := PageQuery(s.query, n, offset)
	s.GetLogger().Debug("executing page query", zap.String("query", query))

	rows, err := s.querier.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, queryError(err, query)
	}
	defer rows.Close()

	records, err = engine.ScanRecords(rows, s.Name())
	if err != nil {
		return nil, queryError(err, query)
	}
	return records, nil
}

// checkShape publishes the fields of the first row when none are known, and
// rejects rows whose width differs from the published fields.
func (s *Select) checkShape(rec *pool.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.outputFields) == 0 {
		s.outputFields = rec.Fields()
		s.GetLogger().Debug("output fields published", zap.Strings("fields", s.outputFields))
		return nil
	}
	if rec.Len() != len(s.outputFields) {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeValidation,
			"row has %d fields, expected %d", rec.Len(), len(s.outputFields)).
			WithDetail("fields", rec.Fields()).
			WithDetail("output_fields", s.outputFields)
	}
	return nil
}

// Close closes the reader. The engine belongs to the services registry and
// stays open.
func (s *Select) Close(ctx context.Context) error {
	return s.BaseConnector.Close(ctx)
}

// PageQuery appends the pagination clause to a normalized query. OFFSET is
// left out for the first page.
func PageQuery(query string, n, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, n, offset)
	}
	return fmt.Sprintf("%s LIMIT %d", query, n)
}

// nextPageSize returns how many rows the page at offset should fetch. With a
// limit the page never reaches past it; zero means stop.
func nextPageSize(offset, pageSize int, limit *int) int {
	if limit == nil {
		return pageSize
	}
	return max(min(pageSize, *limit-offset), 0)
}

func queryError(err error, query string) error {
	return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "unable to execute query").
		WithDetail("query", query).
		Unrecoverable()
}

func releaseFrom(records []*pool.Record, i int) {
	for _, r := range records[i:] {
		r.Release()
	}
}
