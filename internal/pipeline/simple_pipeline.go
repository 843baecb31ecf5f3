// Package pipeline runs a source into a destination.
//
// Each node runs on its own goroutine under an errgroup. Records flow from the
// source through the transforms to the destination over a bounded channel.
// The first error cancels the other node and is returned from Run.
//
//	p := pipeline.NewSimplePipeline(source, destination, nil, logger)
//	p.AddTransform(func(r *pool.Record) (*pool.Record, error) { ... })
//	p.AddLookup(lookup)
//	err := p.Run(ctx)
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/metrics"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// SimplePipeline connects one source to one destination.
type SimplePipeline struct {
	source      core.Source
	destination core.Destination
	transforms  []core.TransformFunc
	lookups     []core.Lookup

	bufferSize int

	recordsRead    atomic.Int64
	recordsDropped atomic.Int64
	throughput     *metrics.ThroughputTracker

	logger *zap.Logger
}

// PipelineConfig tunes a SimplePipeline.
type PipelineConfig struct {
	// BufferSize is the capacity of the channel between the nodes
	BufferSize int
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{BufferSize: 1000}
}

// NewSimplePipeline creates a pipeline. Call Run to start it.
func NewSimplePipeline(source core.Source, destination core.Destination, config *PipelineConfig, logger *zap.Logger) *SimplePipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultPipelineConfig().BufferSize
	}

	return &SimplePipeline{
		source:      source,
		destination: destination,
		bufferSize:  config.BufferSize,
		throughput:  metrics.NewThroughputTracker(source.Name(), destination.Name()),
		logger: logger.With(
			zap.String("source", source.Name()),
			zap.String("destination", destination.Name())),
	}
}

// AddTransform appends a transform. Transforms run in the order added; one
// returning nil drops the record.
func (p *SimplePipeline) AddTransform(transform core.TransformFunc) {
	p.transforms = append(p.transforms, transform)
}

// AddLookup appends a lookup. Lookups run after the transforms, in the order
// added; every record is replaced by the rows its lookup returns.
func (p *SimplePipeline) AddLookup(lookup core.Lookup) {
	p.lookups = append(p.lookups, lookup)
}

// RecordsRead returns the number of records taken from the source.
func (p *SimplePipeline) RecordsRead() int64 {
	return p.recordsRead.Load()
}

// Run initializes both nodes, streams the source into the destination and
// closes both. It blocks until the destination is done or either node fails.
func (p *SimplePipeline) Run(ctx context.Context) error {
	start := time.Now()
	p.logger.Info("starting pipeline",
		zap.Int("buffer_size", p.bufferSize),
		zap.Int("transforms", len(p.transforms)),
		zap.Int("lookups", len(p.lookups)))

	if err := p.source.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	defer p.closeNode(p.source)

	if err := p.destination.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize destination: %w", err)
	}
	defer p.closeNode(p.destination)

	for _, l := range p.lookups {
		if err := l.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize lookup %s: %w", l.Name(), err)
		}
		defer p.closeNode(l)
	}

	g, gctx := errgroup.WithContext(ctx)

	records := make(chan *pool.Record, p.bufferSize)
	errs := make(chan error, 1)

	g.Go(func() error {
		defer close(records)
		defer close(errs)

		if err := p.readSource(gctx, records); err != nil {
			errs <- err
			return err
		}
		return nil
	})

	g.Go(func() error {
		return p.destination.Write(gctx, &core.RecordStream{Records: records, Errors: errs})
	})

	if err := g.Wait(); err != nil {
		p.logger.Error("pipeline failed",
			zap.Int64("records_read", p.recordsRead.Load()),
			zap.Error(err))
		return err
	}

	duration := time.Since(start)
	p.logger.Info("pipeline completed",
		zap.Int64("records_read", p.recordsRead.Load()),
		zap.Int64("records_dropped", p.recordsDropped.Load()),
		zap.Duration("duration", duration),
		zap.Float64("throughput_rps", p.throughput.GetAndReset()))
	p.logger.Debug("record pools", zap.Any("stats", pool.GetGlobalStats()))
	return nil
}

// readSource forwards the source stream through the transforms into out.
func (p *SimplePipeline) readSource(ctx context.Context, out chan<- *pool.Record) error {
	stream, err := p.source.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to start source read: %w", err)
	}

	errs := stream.Errors
	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				p.logger.Debug("source stream closed")
				return nil
			}
			p.recordsRead.Add(1)
			p.throughput.Increment(1)

			transformed, err := p.transform(record)
			if err != nil {
				return err
			}
			if transformed == nil {
				p.recordsDropped.Add(1)
				continue
			}

			batch, err := p.lookup(ctx, transformed)
			if err != nil {
				return err
			}
			for i, r := range batch {
				select {
				case out <- r:
				case <-ctx.Done():
					for _, rest := range batch[i:] {
						rest.Release()
					}
					return ctx.Err()
				}
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
			p.logger.Debug("source reader cancelled")
			return ctx.Err()
		}
	}
}

func (p *SimplePipeline) transform(record *pool.Record) (*pool.Record, error) {
	current := record
	for i, t := range p.transforms {
		next, err := t(current)
		if err != nil {
			current.Release()
			return nil, fmt.Errorf("transform %d failed: %w", i, err)
		}
		if next == nil {
			current.Release()
			return nil, nil
		}
		current = next
	}
	return current, nil
}

// lookup runs record through every lookup and releases it.
func (p *SimplePipeline) lookup(ctx context.Context, record *pool.Record) ([]*pool.Record, error) {
	batch := []*pool.Record{record}
	for _, l := range p.lookups {
		var next []*pool.Record
		for i, r := range batch {
			rows, err := l.Lookup(ctx, r)
			r.Release()
			if err != nil {
				for _, rest := range batch[i+1:] {
					rest.Release()
				}
				for _, n := range next {
					n.Release()
				}
				return nil, fmt.Errorf("lookup %s failed: %w", l.Name(), err)
			}
			next = append(next, rows...)
		}
		batch = next
	}
	return batch, nil
}

func (p *SimplePipeline) closeNode(c core.Connector) {
	if err := c.Close(context.Background()); err != nil {
		p.logger.Warn("failed to close connector", zap.String("connector", c.Name()), zap.Error(err))
	}
}
