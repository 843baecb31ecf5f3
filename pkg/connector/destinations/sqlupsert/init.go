package sqlupsert

import (
	"github.com/ajitpratap0/nebula-sql/pkg/connector/registry"
)

func init() {
	// Register the buffered upsert writer
	_ = registry.RegisterDestination(ConnectorName, NewInsertOrUpdate)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        ConnectorName,
		Type:        "destination",
		Description: "Inserts or updates records in a SQL table, one transaction per flush",
		Version:     "1.0.0",
		Capabilities: []string{
			"batch",
			"upsert",
			"transactions",
			"schema_reflection",
			"metrics",
		},
		ConfigSchema: map[string]interface{}{
			"table": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "Target table",
			},
			"discriminant": map[string]interface{}{
				"type":        "array",
				"required":    false,
				"default":     []string{"id"},
				"description": "Columns identifying an existing row",
			},
			"insert_only_fields": map[string]interface{}{
				"type":        "array",
				"required":    false,
				"description": "Fields written on insert and never updated",
			},
			"allowed_operations": map[string]interface{}{
				"type":        "array",
				"required":    false,
				"default":     []string{"insert", "update"},
				"description": "Operations the writer may perform",
			},
			"buffer_size": map[string]interface{}{
				"type":        "integer",
				"required":    false,
				"default":     1000,
				"description": "Buffered records that trigger a flush",
			},
			"fetch_columns": map[string]interface{}{
				"type":        "array",
				"required":    false,
				"description": "List of {alias, column} pairs read back after each write",
			},
			"engine": map[string]interface{}{
				"type":        "string",
				"required":    false,
				"default":     "sql.engine",
				"description": "Name of the database engine to write to",
			},
		},
	})
}
