// Package plugin defines the contract for business plugins and the registry
// that collects them at startup.
package plugin

import (
	"fmt"

	"github.com/gorilla/mux"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/relay"
)

// Plugin is one business extension. Plugins declare their gas budgets and
// mount their HTTP routes under APIPrefix; handlers delegate to the relay
// engine received in Initialize.
type Plugin interface {
	Name() string
	APIPrefix() string
	OpenAPITags() []string
	GasOperations() []gasrelay.OperationBudget
	Initialize(engine *relay.Engine) error
	RegisterRoutes(router *mux.Router)
}

// Registry holds the active plugins. It is populated once at startup and
// immutable afterwards.
type Registry struct {
	plugins []Plugin
	byName  map[string]Plugin
	logger  logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Plugin),
		logger: logging.New("plugins"),
	}
}

// Register adds a plugin. Duplicate names are rejected.
func (r *Registry) Register(p Plugin) error {
	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("plugin %q is already registered", p.Name())
	}
	r.plugins = append(r.plugins, p)
	r.byName[p.Name()] = p
	return nil
}

// Initialize initializes all plugins in registration order. The first
// failure aborts startup.
func (r *Registry) Initialize(engine *relay.Engine) error {
	for _, p := range r.plugins {
		if err := p.Initialize(engine); err != nil {
			return fmt.Errorf("plugin %q failed to initialize: %w", p.Name(), err)
		}
		r.logger.Infof("initialized plugin %q (prefix %s, %d gas operations)",
			p.Name(), p.APIPrefix(), len(p.GasOperations()))
	}
	return nil
}

// MountRoutes registers every plugin's routes under its prefix.
func (r *Registry) MountRoutes(router *mux.Router) {
	for _, p := range r.plugins {
		p.RegisterRoutes(router.PathPrefix(p.APIPrefix()).Subrouter())
	}
}

// ActivePlugins returns the registered plugin names in registration order.
func (r *Registry) ActivePlugins() []string {
	names := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		names = append(names, p.Name())
	}
	return names
}

// AllGasOperations returns every declared operation budget across plugins.
func (r *Registry) AllGasOperations() []gasrelay.OperationBudget {
	var ops []gasrelay.OperationBudget
	for _, p := range r.plugins {
		ops = append(ops, p.GasOperations()...)
	}
	return ops
}

// Budget looks up the declared budget for an operation name.
func (r *Registry) Budget(operation string) (gasrelay.OperationBudget, bool) {
	for _, p := range r.plugins {
		for _, op := range p.GasOperations() {
			if op.Operation == operation {
				return op, true
			}
		}
	}
	return gasrelay.OperationBudget{}, false
}
