package pipeline

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// FromConfig builds the pipeline described by cfg from the registered
// connectors. The connector packages must be imported for their
// registrations to exist. Every lookup must be a source implementing
// core.Lookup. emit, if not nil, receives the records the
// destination persisted.
func FromConfig(cfg *config.PipelineConfig, services *engine.Services, emit core.EmitFunc, logger *zap.Logger) (*SimplePipeline, error) {
	source, err := registry.CreateSource(&cfg.Source, services)
	if err != nil {
		return nil, err
	}

	lookups := make([]core.Lookup, 0, len(cfg.Lookups))
	for i := range cfg.Lookups {
		src, err := registry.CreateSource(&cfg.Lookups[i], services)
		if err != nil {
			return nil, err
		}
		lookup, ok := src.(core.Lookup)
		if !ok {
			return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "source %s cannot be used as a lookup", cfg.Lookups[i].Type).
				WithDetail("lookup", i)
		}
		lookups = append(lookups, lookup)
	}

	destination, err := registry.CreateDestination(&cfg.Destination, services, emit)
	if err != nil {
		return nil, err
	}

	p := NewSimplePipeline(source, destination, &PipelineConfig{
		BufferSize: cfg.Source.Performance.BufferSize,
	}, logger.With(zap.String("pipeline", cfg.Name)))
	for _, l := range lookups {
		p.AddLookup(l)
	}
	return p, nil
}
