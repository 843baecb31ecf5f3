package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/engine"
	"github.com/ajitpratap0/nebula-sql/pkg/logger"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	mu           sync.RWMutex
	logger       *zap.Logger
}

// SourceFactory creates a source from its config. The source resolves its
// engine from services during Initialize.
type SourceFactory func(cfg *config.SelectConfig, services *engine.Services) (core.Source, error)

// DestinationFactory creates a destination from its config. emit, if not nil,
// receives every persisted record.
type DestinationFactory func(cfg *config.InsertOrUpdateConfig, services *engine.Services, emit core.EmitFunc) (core.Destination, error)

var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
		logger:       logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "source connector %s already registered", name)
	}

	r.sources[name] = factory
	r.logger.Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterDestination registers a destination connector factory
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "destination connector %s already registered", name)
	}

	r.destinations[name] = factory
	r.logger.Debug("destination connector registered", zap.String("name", name))
	return nil
}

// CreateSource creates the source registered under cfg.Type
func (r *Registry) CreateSource(cfg *config.SelectConfig, services *engine.Services) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "source connector %s not found", cfg.Type)
	}

	source, err := factory(cfg, services)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to create source connector "+cfg.Type)
	}
	return source, nil
}

// CreateDestination creates the destination registered under cfg.Type
func (r *Registry) CreateDestination(cfg *config.InsertOrUpdateConfig, services *engine.Services, emit core.EmitFunc) (core.Destination, error) {
	r.mu.RLock()
	factory, exists := r.destinations[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "destination connector %s not found", cfg.Type)
	}

	destination, err := factory(cfg, services, emit)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to create destination connector "+cfg.Type)
	}
	return destination, nil
}

// ListSources returns the registered source names, sorted
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// ListDestinations returns the registered destination names, sorted
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.destinations)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(cfg *config.SelectConfig, services *engine.Services) (core.Source, error) {
	return globalRegistry.CreateSource(cfg, services)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(cfg *config.InsertOrUpdateConfig, services *engine.Services, emit core.EmitFunc) (core.Destination, error) {
	return globalRegistry.CreateDestination(cfg, services, emit)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// ConnectorInfo provides information about a connector
type ConnectorInfo struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Description  string                 `json:"description"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities"`
	ConfigSchema map[string]interface{} `json:"config_schema"`
}

// ConnectorCatalog manages connector metadata
type ConnectorCatalog struct {
	connectors map[string]*ConnectorInfo
	mu         sync.RWMutex
}

// NewConnectorCatalog creates a new connector catalog
func NewConnectorCatalog() *ConnectorCatalog {
	return &ConnectorCatalog{
		connectors: make(map[string]*ConnectorInfo),
	}
}

// Register adds a connector to the catalog
func (c *ConnectorCatalog) Register(info *ConnectorInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.connectors[info.Name]; exists {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "connector %s already in catalog", info.Name)
	}

	c.connectors[info.Name] = info
	return nil
}

// Get retrieves connector information
func (c *ConnectorCatalog) Get(name string) (*ConnectorInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, exists := c.connectors[name]
	if !exists {
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "connector %s not found in catalog", name)
	}
	return info, nil
}

// List returns all connectors in the catalog, sorted by name
func (c *ConnectorCatalog) List() []*ConnectorInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(c.connectors))
	for _, name := range sortedKeys(c.connectors) {
		infos = append(infos, c.connectors[name])
	}
	return infos
}

var globalCatalog = NewConnectorCatalog()

// RegisterConnectorInfo registers connector information in the global catalog
func RegisterConnectorInfo(info *ConnectorInfo) error {
	return globalCatalog.Register(info)
}

// GetConnectorInfo retrieves connector information from the global catalog
func GetConnectorInfo(name string) (*ConnectorInfo, error) {
	return globalCatalog.Get(name)
}

// ListConnectorInfo lists all connectors in the global catalog
func ListConnectorInfo() []*ConnectorInfo {
	return globalCatalog.List()
}
