// Package sources registers every source connector with the registry.
package sources

import (
	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"

	// Import all source connectors to trigger init() registration
	"github.com/ajitpratap0/nebula-sql/pkg/connector/sources/sqlselect"
)

// NewSQLSelectSource creates a paginated SQL reader
func NewSQLSelectSource(cfg *config.SelectConfig, services *engine.Services) (core.Source, error) {
	return sqlselect.NewSelect(cfg, services)
}
