package sqlselect

import (
	"github.com/ajitpratap0/nebula-sql/pkg/connector/registry"
)

func init() {
	// Register the paginated SQL reader
	_ = registry.RegisterSource(ConnectorName, NewSelect)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        ConnectorName,
		Type:        "source",
		Description: "Reads the result of a SQL query page by page",
		Version:     "1.0.0",
		Capabilities: []string{
			"batch",
			"pagination",
			"schema_discovery",
			"custom_queries",
			"lookup",
			"metrics",
		},
		ConfigSchema: map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "Base SQL query, without LIMIT or OFFSET",
			},
			"args": map[string]interface{}{
				"type":        "array",
				"required":    false,
				"description": "Bind arguments passed with every page query; lookup record values follow them",
			},
			"page_size": map[string]interface{}{
				"type":        "integer",
				"required":    false,
				"default":     1000,
				"description": "Rows fetched per query",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"required":    false,
				"description": "Maximum number of rows to read",
			},
			"output_fields": map[string]interface{}{
				"type":        "array",
				"required":    false,
				"description": "Field names of the rows; inferred from the first row when omitted",
			},
			"engine": map[string]interface{}{
				"type":        "string",
				"required":    false,
				"default":     "sql.engine",
				"description": "Name of the database engine to query",
			},
		},
	})
}
