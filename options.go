package custos

import (
	"log/slog"

	"github.com/xraph/custos/plugin"
	"github.com/xraph/custos/store"
	"github.com/xraph/custos/target"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithRegistry sets a pre-built target registry.
func WithRegistry(r *target.Registry) Option { return func(e *Engine) { e.registry = r } }

// WithPrincipalCache sets the principal cache.
func WithPrincipalCache(c PrincipalCache) Option { return func(e *Engine) { e.cache = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithPlugin registers a plugin with the engine.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) {
		if e.plugins == nil {
			e.plugins = plugin.NewRegistry(e.logger)
		}
		e.plugins.Register(x)
	}
}
