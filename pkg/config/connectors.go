package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultEngineName is the service name components look their engine up by
// when none is configured.
const DefaultEngineName = "sql.engine"

// Operation is a write operation the upsert writer may perform.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

// SelectConfig configures the paginated reader.
type SelectConfig struct {
	BaseConfig `yaml:",inline" json:",inline" mapstructure:",squash"`

	// Query is the base statement, without LIMIT/OFFSET
	Query string `yaml:"query" json:"query" mapstructure:"query" required:"true"`
	// Args are bind arguments passed with every page query
	Args []interface{} `yaml:"args" json:"args" mapstructure:"args"`
	// PageSize is the number of rows fetched per query
	PageSize int `yaml:"page_size" json:"page_size" mapstructure:"page_size" default:"1000"`
	// Limit caps the total number of rows read; nil reads everything
	Limit *int `yaml:"limit" json:"limit" mapstructure:"limit"`
	// OutputFields declares the row shape up front instead of taking it from the first row
	OutputFields []string `yaml:"output_fields" json:"output_fields" mapstructure:"output_fields"`
	// Engine is the service name of the engine to read from
	Engine string `yaml:"engine" json:"engine" mapstructure:"engine" default:"sql.engine"`
}

// NewSelectConfig creates a reader config with defaults.
func NewSelectConfig(query string) *SelectConfig {
	cfg := &SelectConfig{Query: query}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *SelectConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "sql_select"
	}
	if c.Type == "" {
		c.Type = "sql_select"
	}
	c.BaseConfig.ApplyDefaults()
	if c.PageSize == 0 {
		c.PageSize = 1000
	}
	if c.Engine == "" {
		c.Engine = DefaultEngineName
	}
}

// Validate checks the reader settings.
func (c *SelectConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be greater than 0, got %d", c.PageSize)
	}
	if c.Limit != nil && *c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", *c.Limit)
	}
	if c.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	return nil
}

// WithLimit sets Limit and returns the config.
func (c *SelectConfig) WithLimit(limit int) *SelectConfig {
	c.Limit = &limit
	return c
}

// InsertOrUpdateConfig configures the buffered upsert writer.
type InsertOrUpdateConfig struct {
	BaseConfig `yaml:",inline" json:",inline" mapstructure:",squash"`

	// Table is the target table
	Table string `yaml:"table" json:"table" mapstructure:"table" required:"true"`
	// Discriminant lists the columns that identify an existing row
	Discriminant []string `yaml:"discriminant" json:"discriminant" mapstructure:"discriminant"`
	// InsertOnlyFields are written on insert and never updated
	InsertOnlyFields []string `yaml:"insert_only_fields" json:"insert_only_fields" mapstructure:"insert_only_fields"`
	// CreatedAtField is stamped on insert when the table has that column
	CreatedAtField string `yaml:"created_at_field" json:"created_at_field" mapstructure:"created_at_field" default:"created_at"`
	// UpdatedAtField is stamped on every write when the table has that column
	UpdatedAtField string `yaml:"updated_at_field" json:"updated_at_field" mapstructure:"updated_at_field" default:"updated_at"`
	// AllowedOperations is a subset of {insert, update}
	AllowedOperations []Operation `yaml:"allowed_operations" json:"allowed_operations" mapstructure:"allowed_operations"`
	// BufferSize is the number of buffered rows that triggers a flush
	BufferSize int `yaml:"buffer_size" json:"buffer_size" mapstructure:"buffer_size" default:"1000"`
	// FetchColumns are columns re-read after each write and copied onto the
	// record under their alias, in declaration order
	FetchColumns []FetchColumn `yaml:"fetch_columns" json:"fetch_columns" mapstructure:"fetch_columns"`
	// Engine is the service name of the engine to write to
	Engine string `yaml:"engine" json:"engine" mapstructure:"engine" default:"sql.engine"`
}

// FetchColumn copies Column of the written row onto the record as Alias.
type FetchColumn struct {
	Alias  string `yaml:"alias" json:"alias" mapstructure:"alias"`
	Column string `yaml:"column" json:"column" mapstructure:"column"`
}

// NewInsertOrUpdateConfig creates a writer config with defaults.
func NewInsertOrUpdateConfig(table string) *InsertOrUpdateConfig {
	cfg := &InsertOrUpdateConfig{Table: table}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *InsertOrUpdateConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "sql_insert_or_update"
	}
	if c.Type == "" {
		c.Type = "sql_insert_or_update"
	}
	c.BaseConfig.ApplyDefaults()
	if len(c.Discriminant) == 0 {
		c.Discriminant = []string{"id"}
	}
	if c.CreatedAtField == "" {
		c.CreatedAtField = "created_at"
	}
	if c.UpdatedAtField == "" {
		c.UpdatedAtField = "updated_at"
	}
	if c.AllowedOperations == nil {
		c.AllowedOperations = []Operation{OperationInsert, OperationUpdate}
	}
	if c.BufferSize == 0 {
		c.BufferSize = 1000
	}
	if c.Engine == "" {
		c.Engine = DefaultEngineName
	}
}

// Validate checks the writer settings.
func (c *InsertOrUpdateConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return err
	}
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}
	if len(c.Discriminant) == 0 {
		return fmt.Errorf("discriminant must name at least one column")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be greater than 0, got %d", c.BufferSize)
	}
	for _, op := range c.AllowedOperations {
		if op != OperationInsert && op != OperationUpdate {
			return fmt.Errorf("unknown operation %q in allowed_operations", op)
		}
	}
	for _, fc := range c.FetchColumns {
		if fc.Alias == "" || fc.Column == "" {
			return fmt.Errorf("fetch_columns entries need both an alias and a column")
		}
	}
	if c.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	return nil
}

// WithFetchColumn appends a fetch column and returns the config.
func (c *InsertOrUpdateConfig) WithFetchColumn(alias, column string) *InsertOrUpdateConfig {
	c.FetchColumns = append(c.FetchColumns, FetchColumn{Alias: alias, Column: column})
	return c
}

// Allows reports whether op is in AllowedOperations.
func (c *InsertOrUpdateConfig) Allows(op Operation) bool {
	for _, allowed := range c.AllowedOperations {
		if allowed == op {
			return true
		}
	}
	return false
}

// EngineConfig describes how to open a database engine. Either DSN is set, or
// the connection is assembled from the individual fields.
type EngineConfig struct {
	// Driver is one of postgres, mysql or sqlite
	Driver   string            `yaml:"driver" json:"driver" mapstructure:"driver" required:"true"`
	DSN      string            `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	Host     string            `yaml:"host" json:"host" mapstructure:"host"`
	Port     int               `yaml:"port" json:"port" mapstructure:"port"`
	User     string            `yaml:"user" json:"user" mapstructure:"user"`
	Password string            `yaml:"password" json:"password" mapstructure:"password"`
	Database string            `yaml:"database" json:"database" mapstructure:"database"`
	Params   map[string]string `yaml:"params" json:"params" mapstructure:"params"`

	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Validate checks the engine settings.
func (c *EngineConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql", "sqlite":
	case "":
		return fmt.Errorf("driver is required")
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.DSN == "" && c.Database == "" {
		return fmt.Errorf("either dsn or database is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	return nil
}

// PipelineConfig is the document read by `nebula-sql run`.
type PipelineConfig struct {
	Name          string                  `yaml:"name" json:"name" mapstructure:"name"`
	Engines       map[string]EngineConfig `yaml:"engines" json:"engines" mapstructure:"engines"`
	Source        SelectConfig            `yaml:"source" json:"source" mapstructure:"source"`
	// Lookups run once per source record, in order, binding its values after their own args
	Lookups       []SelectConfig          `yaml:"lookups" json:"lookups" mapstructure:"lookups"`
	Destination   InsertOrUpdateConfig    `yaml:"destination" json:"destination" mapstructure:"destination"`
	Observability ObservabilityConfig     `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// ApplyDefaults completes the source and destination configs.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "pipeline"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	c.Source.ApplyDefaults()
	for i := range c.Lookups {
		c.Lookups[i].ApplyDefaults()
	}
	c.Destination.ApplyDefaults()
}

// Validate checks the whole pipeline, including that every referenced engine is declared.
func (c *PipelineConfig) Validate() error {
	if len(c.Engines) == 0 {
		return fmt.Errorf("at least one engine is required")
	}
	for name, engine := range c.Engines {
		engine := engine
		if err := engine.Validate(); err != nil {
			return fmt.Errorf("engine %s: %w", name, err)
		}
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	for i := range c.Lookups {
		if err := c.Lookups[i].Validate(); err != nil {
			return fmt.Errorf("lookup %d: %w", i, err)
		}
		if _, ok := c.Engines[c.Lookups[i].Engine]; !ok {
			return fmt.Errorf("lookup %d: engine %q is not declared", i, c.Lookups[i].Engine)
		}
	}
	if err := c.Destination.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if _, ok := c.Engines[c.Source.Engine]; !ok {
		return fmt.Errorf("source: engine %q is not declared", c.Source.Engine)
	}
	if _, ok := c.Engines[c.Destination.Engine]; !ok {
		return fmt.Errorf("destination: engine %q is not declared", c.Destination.Engine)
	}
	return nil
}
