// Package sqlupsert implements the sql_insert_or_update destination, a
// buffered writer that resolves each record to an insert or an update of a
// reflected table and persists buffered records in one transaction per flush.
package sqlupsert

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/base"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// ConnectorName is the registry name of the writer.
const ConnectorName = "sql_insert_or_update"

// InsertOrUpdate writes records into a table, updating rows matched by the
// discriminant columns and inserting the rest.
type InsertOrUpdate struct {
	*base.BaseConnector

	cfg      *config.InsertOrUpdateConfig
	services *engine.Services
	engine   *engine.Engine
	clock    clockwork.Clock
	emit     core.EmitFunc
}

// Option configures an InsertOrUpdate.
type Option func(*InsertOrUpdate)

// WithClock sets the clock used for created_at and updated_at.
func WithClock(c clockwork.Clock) Option {
	return func(w *InsertOrUpdate) {
		w.clock = c
	}
}

// WithEngine uses e instead of resolving cfg.Engine from the services.
func WithEngine(e *engine.Engine) Option {
	return func(w *InsertOrUpdate) {
		w.engine = e
	}
}

// NewInsertOrUpdate creates the writer as a core.Destination. emit, if not
// nil, receives the records of every committed flush.
func NewInsertOrUpdate(cfg *config.InsertOrUpdateConfig, services *engine.Services, emit core.EmitFunc) (core.Destination, error) {
	return New(cfg, services, emit)
}

// New creates the writer.
func New(cfg *config.InsertOrUpdateConfig, services *engine.Services, emit core.EmitFunc, opts ...Option) (*InsertOrUpdate, error) {
	if cfg == nil {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "insert or update config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid insert or update config").
			WithDetail("connector", cfg.Name)
	}

	w := &InsertOrUpdate{
		BaseConnector: base.NewBaseConnector(cfg.Name, core.ConnectorTypeDestination, "1.0.0"),
		cfg:           cfg,
		services:      services,
		clock:         clockwork.NewRealClock(),
		emit:          emit,
	}
	w.Configure(&cfg.BaseConfig)

	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Initialize resolves the engine.
func (w *InsertOrUpdate) Initialize(ctx context.Context) error {
	if w.engine != nil {
		return nil
	}
	if w.services == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "no engine services configured").
			WithDetail("connector", w.Name())
	}

	e, err := w.services.Get(w.cfg.Engine)
	if err != nil {
		return err
	}
	w.engine = e

	w.GetLogger().Info("sql insert or update initialized",
		zap.String("engine", e.Name()),
		zap.String("table", w.cfg.Table),
		zap.Strings("discriminant", w.cfg.Discriminant),
		zap.Int("buffer_size", w.cfg.BufferSize))
	return nil
}

// Health checks the connector state and that the engine is reachable.
func (w *InsertOrUpdate) Health(ctx context.Context) error {
	if err := w.BaseConnector.Health(ctx); err != nil {
		return err
	}
	if w.engine == nil {
		return nil
	}
	return w.engine.Ping(ctx)
}

// Write consumes the stream through one session. Records are flushed every
// BufferSize records and once more when the stream ends. On error or
// cancellation the session is aborted and unflushed records are dropped.
func (w *InsertOrUpdate) Write(ctx context.Context, stream *core.RecordStream) error {
	session, err := w.OpenSession(ctx)
	if err != nil {
		return err
	}

	abort := func(err error) error {
		session.Abort()
		w.GetLogger().Error("write aborted", zap.Error(err))
		return err
	}

	records, errs := stream.Records, stream.Errors
	for {
		select {
		case <-ctx.Done():
			return abort(ctx.Err())

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return abort(err)
			}

		case rec, ok := <-records:
			if !ok {
				// the producer reports its error before closing Records
				if err := stream.Err(); err != nil {
					return abort(err)
				}

				flushed, err := session.Close(ctx)
				if err != nil {
					return err
				}
				return w.emitRecords(ctx, flushed)
			}

			flushed, err := session.Put(ctx, rec)
			if err != nil {
				return abort(err)
			}
			if err := w.emitRecords(ctx, flushed); err != nil {
				return abort(err)
			}
		}
	}
}

func (w *InsertOrUpdate) emitRecords(ctx context.Context, records []*pool.Record) error {
	if len(records) == 0 {
		return nil
	}
	if w.emit == nil {
		for _, r := range records {
			r.Release()
		}
		return nil
	}
	return w.emit(ctx, records)
}

// SupportsUpsert returns true
func (w *InsertOrUpdate) SupportsUpsert() bool {
	return true
}

// SupportsTransactions returns true
func (w *InsertOrUpdate) SupportsTransactions() bool {
	return true
}
