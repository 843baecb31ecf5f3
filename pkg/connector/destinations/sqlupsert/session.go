package sqlupsert

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/lockfree"
	"github.com/ajitpratap0/nebula-sql/pkg/metrics"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sql/pkg/observability"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateTableResolved
	StateAccepting
	StateFlushing
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateTableResolved:
		return "table_resolved"
	case StateAccepting:
		return "accepting"
	case StateFlushing:
		return "flushing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one execution of the writer. It owns a dedicated connection and
// the buffer of records not yet persisted. Put, Flush, Close and Abort are
// serialized.
type Session struct {
	w      *InsertOrUpdate
	conn   *sql.Conn
	table  *engine.Table
	buffer *lockfree.Queue[*pool.Record]
	log    *zap.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// OpenSession acquires a connection, reflects the target table and returns a
// session ready to accept records.
func (w *InsertOrUpdate) OpenSession(ctx context.Context) (*Session, error) {
	if err := w.BaseConnector.Health(ctx); err != nil {
		return nil, err
	}
	if err := w.Initialize(ctx); err != nil {
		return nil, err
	}

	s := &Session{
		w:   w,
		log: w.GetLogger().With(zap.String("table", w.cfg.Table)),
	}
	s.setState(StateUninitialized)

	var conn *sql.Conn
	err := w.ExecuteWithRetry(ctx, func() error {
		cctx, cancel := w.WithConnectionTimeout(ctx)
		defer cancel()

		var err error
		conn, err = w.engine.Conn(cctx)
		return err
	})
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "could not create connection").
			WithDetail("engine", w.engine.Name()).
			Unrecoverable()
	}
	s.conn = conn
	s.setState(StateConnected)
	metrics.ActiveConnections.WithLabelValues(w.engine.Name()).Inc()

	table, err := w.engine.ReflectTable(ctx, conn, w.cfg.Table)
	if err != nil {
		s.release()
		return nil, err
	}
	s.table = table
	s.setState(StateTableResolved)

	s.buffer = lockfree.NewQueue[*pool.Record](w.cfg.BufferSize + 1)
	s.setState(StateAccepting)

	s.log.Debug("session opened",
		zap.Strings("columns", table.Columns),
		zap.Int("buffer_capacity", s.buffer.Capacity()))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Table returns the reflected target table.
func (s *Session) Table() *engine.Table {
	return s.table
}

// Buffered returns the number of records waiting for the next flush.
func (s *Session) Buffered() int {
	return s.buffer.Size()
}

// Put buffers rec. When the buffer reaches the configured size it is flushed
// and the persisted records are returned.
func (s *Session) Put(ctx context.Context, rec *pool.Record) ([]*pool.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("put"); err != nil {
		return nil, err
	}

	// the buffer is drained whenever it reaches BufferSize, below its capacity
	_ = s.buffer.Enqueue(rec)
	metrics.BufferDepth.WithLabelValues(s.w.cfg.Table).Set(float64(s.buffer.Size()))

	if s.buffer.Size() < s.w.cfg.BufferSize {
		return nil, nil
	}
	return s.flushLocked(ctx)
}

// Flush persists the buffered records in one transaction and returns them.
func (s *Session) Flush(ctx context.Context) ([]*pool.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("flush"); err != nil {
		return nil, err
	}
	return s.flushLocked(ctx)
}

// Close flushes what is left in the buffer and releases the connection. The
// session is closed even when the final flush fails.
func (s *Session) Close(ctx context.Context) ([]*pool.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("close"); err != nil {
		return nil, err
	}

	s.setState(StateFinalizing)
	flushed, err := s.flushLocked(ctx)
	if err != nil {
		s.release()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "flushing query buffer failed").
			WithDetail("table", s.w.cfg.Table).
			Unrecoverable()
	}

	s.release()
	s.log.Debug("session closed")
	return flushed, nil
}

// Abort drops the buffered records and releases the connection without
// flushing. It is a no-op on a closed session.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return
	}
	dropped := s.buffer.Drain(nil, 0)
	for _, r := range dropped {
		r.Release()
	}
	s.release()
	s.log.Warn("session aborted", zap.Int("dropped", len(dropped)))
}

func (s *Session) checkOpen(op string) error {
	if st := s.State(); st == StateClosed {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeState, "cannot %s: session is %s", op, st).
			WithDetail("table", s.w.cfg.Table)
	}
	return nil
}

func (s *Session) release() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Warn("failed to close connection", zap.Error(err))
		}
		s.conn = nil
		metrics.ActiveConnections.WithLabelValues(s.w.engine.Name()).Dec()
	}
	if s.buffer != nil {
		metrics.BufferDepth.WithLabelValues(s.w.cfg.Table).Set(0)
	}
	s.setState(StateClosed)
}

func (s *Session) flushLocked(ctx context.Context) (flushed []*pool.Record, err error) {
	finalizing := s.State() == StateFinalizing
	if !finalizing {
		s.setState(StateFlushing)
		defer s.setState(StateAccepting)
	}

	if s.buffer.IsEmpty() {
		return nil, nil
	}
	records := s.buffer.Drain(make([]*pool.Record, 0, s.buffer.Size()), 0)
	metrics.BufferDepth.WithLabelValues(s.w.cfg.Table).Set(0)

	table := s.w.cfg.Table
	ctx, span := observability.StartSpan(ctx, "sql_insert_or_update.flush",
		attribute.String("table", table),
		attribute.Int("records", len(records)),
		attribute.Bool("final", finalizing))
	defer func() { observability.EndSpan(span, err) }()

	timer := metrics.NewTimer()
	defer func() {
		metrics.FlushLatency.WithLabelValues(table).Observe(timer.Stop().Seconds())
	}()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		releaseAll(records)
		metrics.Flushes.WithLabelValues(table, "failed").Inc()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to begin transaction").
			WithDetail("table", table).
			Unrecoverable()
	}

	for i, rec := range records {
		if err := s.insertOrUpdate(ctx, tx, rec); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("rollback failed", zap.Error(rbErr))
			}
			metrics.Flushes.WithLabelValues(table, "rolled_back").Inc()
			s.w.GetMetricsCollector().RecordCounter("flushes_rolled_back", 1)
			s.log.Error("flush rolled back",
				zap.Int("record", i),
				zap.Int("records", len(records)),
				zap.Error(err))
			releaseAll(records)
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to write record").
				WithDetail("table", table).
				WithDetail("position", i).
				Unrecoverable()
		}
	}

	if err := tx.Commit(); err != nil {
		releaseAll(records)
		metrics.Flushes.WithLabelValues(table, "failed").Inc()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to commit transaction").
			WithDetail("table", table).
			Unrecoverable()
	}

	metrics.Flushes.WithLabelValues(table, "committed").Inc()
	s.w.GetMetricsCollector().RecordCounter("flushes", 1)
	s.log.Debug("flush committed", zap.Int("records", len(records)))
	return records, nil
}

func releaseAll(records []*pool.Record) {
	for _, r := range records {
		r.Release()
	}
}
