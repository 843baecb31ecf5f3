// Package base provides BaseConnector, the shared foundation of the SQL
// connectors. It carries connector identity, the connector logger, a metrics
// collector and the retry policy used for acquiring connections.
//
//	type MyConnector struct {
//	    *base.BaseConnector
//	}
//
//	func NewMyConnector(cfg *config.BaseConfig) *MyConnector {
//	    c := &MyConnector{BaseConnector: base.NewBaseConnector(cfg.Name, core.ConnectorTypeSource, "1.0.0")}
//	    c.Configure(cfg)
//	    return c
//	}
package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/connector/core"
	"github.com/ajitpratap0/nebula-sql/pkg/logger"
	"github.com/ajitpratap0/nebula-sql/pkg/metrics"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// BaseConnector provides common functionality for all connectors.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string
	config        *config.BaseConfig
	logger        *zap.Logger

	metricsCollector *metrics.Collector
	retryPolicy      *RetryPolicy

	closeMutex sync.Mutex
	closed     bool
}

// NewBaseConnector creates a base connector with a default retry policy.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	return &BaseConnector{
		name:             name,
		connectorType:    connectorType,
		version:          version,
		logger:           logger.Get().With(zap.String("connector", name)),
		metricsCollector: metrics.NewCollector(name),
		retryPolicy:      DefaultRetryPolicy(),
	}
}

// Configure attaches the shared configuration and derives the retry policy from it.
func (bc *BaseConnector) Configure(cfg *config.BaseConfig) {
	bc.config = cfg
	if cfg == nil {
		return
	}
	bc.retryPolicy = NewRetryPolicyFromConfig(cfg.Reliability)
	if cfg.Observability.LogLevel == "debug" {
		bc.logger.Debug("connector configured",
			zap.String("type", string(bc.connectorType)),
			zap.Int("retry_attempts", bc.retryPolicy.MaxAttempts))
	}
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType {
	return bc.connectorType
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// Health reports an error once the connector is closed.
func (bc *BaseConnector) Health(ctx context.Context) error {
	if bc.IsClosed() {
		return nebulaerrors.New(nebulaerrors.ErrorTypeState, "connector is closed").
			WithDetail("connector", bc.name)
	}
	return nil
}

// Metrics returns current metrics
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := bc.metricsCollector.GetAll()
	m["name"] = bc.name
	m["type"] = bc.connectorType
	m["version"] = bc.version
	return m
}

// Close marks the connector closed. It is safe to call more than once.
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true
	bc.logger.Info("connector closed", zap.Any("metrics", bc.metricsCollector.GetAll()))
	return nil
}

// IsClosed reports whether Close was called.
func (bc *BaseConnector) IsClosed() bool {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()
	return bc.closed
}

// ExecuteWithRetry runs fn under the retry policy, retrying only errors
// nebulaerrors.IsRetryable accepts.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return bc.retryPolicy.ExecuteWithCondition(ctx, fn, nebulaerrors.IsRetryable)
}

// WithStatementTimeout bounds ctx by the configured statement timeout, if any.
func (bc *BaseConnector) WithStatementTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, bc.timeouts().Statement)
}

// WithConnectionTimeout bounds ctx by the configured connection timeout, if any.
func (bc *BaseConnector) WithConnectionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, bc.timeouts().Connection)
}

func (bc *BaseConnector) timeouts() config.TimeoutConfig {
	if bc.config == nil {
		return config.TimeoutConfig{}
	}
	return bc.config.Timeouts
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// GetConfig returns the connector configuration
func (bc *BaseConnector) GetConfig() *config.BaseConfig {
	return bc.config
}

// GetMetricsCollector returns the metrics collector
func (bc *BaseConnector) GetMetricsCollector() *metrics.Collector {
	return bc.metricsCollector
}

// GetRetryPolicy returns the retry policy
func (bc *BaseConnector) GetRetryPolicy() *RetryPolicy {
	return bc.retryPolicy
}

// SetRetryPolicy replaces the retry policy
func (bc *BaseConnector) SetRetryPolicy(p *RetryPolicy) {
	bc.retryPolicy = p
}
