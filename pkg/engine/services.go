package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// Services resolves engines by name. Connectors never open engines
// themselves; they look them up here.
type Services struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewServices creates an empty registry.
func NewServices() *Services {
	return &Services{engines: make(map[string]*Engine)}
}

// OpenServices opens one engine per entry of cfgs. On failure every engine
// opened so far is closed.
func OpenServices(ctx context.Context, cfgs map[string]config.EngineConfig, timeout time.Duration) (*Services, error) {
	s := NewServices()
	for name, cfg := range cfgs {
		e, err := Open(ctx, name, cfg, timeout)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Register(e)
	}
	return s, nil
}

// Register adds e under e.Name(), replacing any previous engine of that name.
func (s *Services) Register(e *Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[e.Name()] = e
}

// Get returns the engine registered under name.
func (s *Services) Get(name string) (*Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.engines[name]
	if !ok {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "engine not registered").
			WithDetail("engine", name)
	}
	return e, nil
}

// Names lists registered engine names in sorted order.
func (s *Services) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes and forgets every engine.
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, e := range s.engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.engines, name)
	}
	return errors.Join(errs...)
}
