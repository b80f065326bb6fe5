// Package registry maps output modes to sink factories. Sink
// implementations register themselves from init.
package registry

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
	"github.com/ajitpratap0/emarsys-tap/pkg/logger"
)

// SinkFactory creates a sink from the tap configuration. stdout is the
// process output stream for sinks that write messages there.
type SinkFactory func(cfg *config.TapConfig, stdout io.Writer, logger *zap.Logger) (core.Sink, error)

// Registry manages sink registration and instantiation
type Registry struct {
	sinks map[string]SinkFactory
	mu    sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]SinkFactory),
	}
}

// RegisterSink registers a sink factory under an output mode
func (r *Registry) RegisterSink(mode string, factory SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[mode]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink %s already registered", mode))
	}

	r.sinks[mode] = factory
	return nil
}

// CreateSink creates the sink registered for mode
func (r *Registry) CreateSink(mode string, cfg *config.TapConfig, stdout io.Writer) (core.Sink, error) {
	r.mu.RLock()
	factory, exists := r.sinks[mode]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink %s not found", mode))
	}

	log := logger.Get().With(zap.String("component", "sink"), zap.String("mode", mode))
	sink, err := factory(cfg, stdout, log)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create sink %s", mode))
	}
	return sink, nil
}

// ListSinks returns the registered output modes, sorted
func (r *Registry) ListSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes := make([]string, 0, len(r.sinks))
	for mode := range r.sinks {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// HasSink checks if a sink is registered for mode
func (r *Registry) HasSink(mode string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sinks[mode]
	return exists
}

// RegisterSink registers a sink in the global registry
func RegisterSink(mode string, factory SinkFactory) error {
	return globalRegistry.RegisterSink(mode, factory)
}

// CreateSink creates a sink from the global registry
func CreateSink(mode string, cfg *config.TapConfig, stdout io.Writer) (core.Sink, error) {
	return globalRegistry.CreateSink(mode, cfg, stdout)
}

// ListSinks returns output modes from the global registry
func ListSinks() []string {
	return globalRegistry.ListSinks()
}

// HasSink checks the global registry
func HasSink(mode string) bool {
	return globalRegistry.HasSink(mode)
}
