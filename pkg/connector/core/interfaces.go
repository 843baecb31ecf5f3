package core

import (
	"context"

	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Schema represents the shape of the records a connector produces or accepts
type Schema struct {
	Name   string
	Fields []Field
}

// Field represents a field in the schema
type Field struct {
	Name    string
	Primary bool
}

// FieldNames returns the field names in order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// RecordStream represents a stream of records. Records is closed when the
// producer is done; at most one error is sent on Errors before it is closed.
type RecordStream struct {
	Records <-chan *pool.Record
	Errors  <-chan error
}

// Err waits for Errors to close and returns the producer's error, if any.
// Call it once Records is closed.
func (s *RecordStream) Err() error {
	if s.Errors == nil {
		return nil
	}
	for err := range s.Errors {
		if err != nil {
			return err
		}
	}
	return nil
}

// EmitFunc receives records a destination has persisted, in flush order.
// Ownership of the records passes to the callee.
type EmitFunc func(ctx context.Context, records []*pool.Record) error

// Connector is the base interface for all connectors
type Connector interface {
	// Metadata
	Name() string
	Type() ConnectorType
	Version() string

	// Lifecycle
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error

	// Health and monitoring
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Source is the interface that all source connectors must implement
type Source interface {
	Connector

	// Discover describes the records Read will produce without reading them.
	Discover(ctx context.Context) (*Schema, error)
	// Read starts a fresh read from the beginning every time it is called.
	Read(ctx context.Context) (*RecordStream, error)
	// OutputFields returns the field names published to downstream consumers.
	// It is empty until they are known.
	OutputFields() []string
}

// Lookup is a source that can also run once per input record, using the
// record's values as query parameters.
type Lookup interface {
	Source

	// Lookup returns the rows produced for in. The caller keeps ownership of in.
	Lookup(ctx context.Context, in *pool.Record) ([]*pool.Record, error)
}

// Destination is the interface that all destination connectors must implement
type Destination interface {
	Connector

	// Write consumes the stream until Records is closed or ctx is done.
	Write(ctx context.Context, stream *RecordStream) error

	// Capabilities
	SupportsUpsert() bool
	SupportsTransactions() bool
}

// TransformFunc is a function that transforms records. Returning nil drops the record.
type TransformFunc func(record *pool.Record) (*pool.Record, error)

// ConnectorMetadata provides metadata about a connector
type ConnectorMetadata struct {
	Name         string                 `json:"name"`
	Type         ConnectorType          `json:"type"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	Capabilities []string               `json:"capabilities"`
	ConfigSchema map[string]interface{} `json:"config_schema"`
}
