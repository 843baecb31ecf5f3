package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/nebula-sql/pkg/connector/base"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// sliceSource emits count generated records {id: i, value: "value for i"}.
type sliceSource struct {
	*base.BaseConnector
	count int
}

func newSliceSource(count int) *sliceSource {
	return &sliceSource{
		BaseConnector: base.NewBaseConnector("slice", core.ConnectorTypeSource, "1.0.0"),
		count:         count,
	}
}

func (s *sliceSource) Initialize(ctx context.Context) error { return nil }

func (s *sliceSource) Discover(ctx context.Context) (*core.Schema, error) {
	return &core.Schema{Name: "slice", Fields: []core.Field{{Name: "id", Primary: true}, {Name: "value"}}}, nil
}

func (s *sliceSource) OutputFields() []string { return []string{"id", "value"} }

func (s *sliceSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *pool.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)
		for i := 1; i <= s.count; i++ {
			rec := pool.NewRecord(s.Name(), []string{"id", "value"}, []interface{}{i, fmt.Sprintf("value for %d", i)})
			select {
			case records <- rec:
			case <-ctx.Done():
				rec.Release()
				return
			}
		}
	}()
	return &core.RecordStream{Records: records, Errors: errs}, nil
}

// collectingDestination keeps the values of every record it receives.
type collectingDestination struct {
	*base.BaseConnector

	mu   sync.Mutex
	rows []map[string]interface{}
}

func newCollectingDestination() *collectingDestination {
	return &collectingDestination{
		BaseConnector: base.NewBaseConnector("collect", core.ConnectorTypeDestination, "1.0.0"),
	}
}

func (d *collectingDestination) Initialize(ctx context.Context) error { return nil }

func (d *collectingDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	for rec := range stream.Records {
		d.mu.Lock()
		row := make(map[string]interface{}, rec.Len())
		rec.Range(func(field string, value interface{}) bool {
			row[field] = value
			return true
		})
		d.rows = append(d.rows, row)
		d.mu.Unlock()
		rec.Release()
	}
	return stream.Err()
}

func (d *collectingDestination) SupportsUpsert() bool       { return false }
func (d *collectingDestination) SupportsTransactions() bool { return false }
