// Package destinations registers every destination connector with the registry.
package destinations

import (
	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"

	// Import all destination connectors to trigger init() registration
	"github.com/ajitpratap0/nebula-sql/pkg/connector/destinations/sqlupsert"
)

// NewSQLInsertOrUpdateDestination creates a buffered upsert writer
func NewSQLInsertOrUpdateDestination(cfg *config.InsertOrUpdateConfig, services *engine.Services, emit core.EmitFunc) (core.Destination, error) {
	return sqlupsert.NewInsertOrUpdate(cfg, services, emit)
}
