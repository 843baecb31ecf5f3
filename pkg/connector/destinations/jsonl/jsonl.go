// Package jsonl writes records as JSON lines, one object per record with
// keys in field order.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/connector/base"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// Destination writes JSON lines to an io.Writer.
type Destination struct {
	*base.BaseConnector

	writer  *bufio.Writer
	buf     bytes.Buffer
	written int64
}

// New creates a destination writing to w.
func New(name string, w io.Writer) *Destination {
	return &Destination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		writer:        bufio.NewWriterSize(w, 64*1024),
	}
}

// Initialize is a no-op.
func (d *Destination) Initialize(ctx context.Context) error {
	return nil
}

// Write encodes every record of the stream. Records are released once written.
func (d *Destination) Write(ctx context.Context, stream *core.RecordStream) error {
	defer func() {
		if err := d.writer.Flush(); err != nil {
			d.GetLogger().Warn("failed to flush output", zap.Error(err))
		}
	}()

	errs := stream.Errors
	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				return stream.Err()
			}

			err := d.writeRecord(record)
			record.Release()
			if err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Destination) writeRecord(record *pool.Record) error {
	d.buf.Reset()
	if err := EncodeRecord(&d.buf, record); err != nil {
		return err
	}
	d.buf.WriteByte('\n')

	if _, err := d.writer.Write(d.buf.Bytes()); err != nil {
		return err
	}
	d.written++
	d.GetMetricsCollector().RecordCounter("records_written", 1)
	return nil
}

// EncodeRecord writes record to buf as a JSON object, keeping field order.
func EncodeRecord(buf *bytes.Buffer, record *pool.Record) error {
	buf.WriteByte('{')

	var err error
	first := true
	record.Range(func(field string, value interface{}) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		var b []byte
		if b, err = json.Marshal(field); err != nil {
			return false
		}
		buf.Write(b)
		buf.WriteByte(':')

		if b, err = json.Marshal(value); err != nil {
			err = fmt.Errorf("field %s: %w", field, err)
			return false
		}
		buf.Write(b)
		return true
	})
	if err != nil {
		return err
	}

	buf.WriteByte('}')
	return nil
}

// Written returns the number of records written.
func (d *Destination) Written() int64 {
	return d.written
}

// SupportsUpsert returns false
func (d *Destination) SupportsUpsert() bool {
	return false
}

// SupportsTransactions returns false
func (d *Destination) SupportsTransactions() bool {
	return false
}
