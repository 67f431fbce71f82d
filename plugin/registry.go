package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/principal"
)

// Named entry types pair a hook with the plugin name for logging.

type userGrantAssignedEntry struct {
	name string
	hook UserGrantAssigned
}
type groupGrantAssignedEntry struct {
	name string
	hook GroupGrantAssigned
}
type userGrantRemovedEntry struct {
	name string
	hook UserGrantRemoved
}
type groupGrantRemovedEntry struct {
	name string
	hook GroupGrantRemoved
}
type anonymousCreatedEntry struct {
	name string
	hook AnonymousCreated
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	userGrantAssigned  []userGrantAssignedEntry
	groupGrantAssigned []groupGrantAssignedEntry
	userGrantRemoved   []userGrantRemovedEntry
	groupGrantRemoved  []groupGrantRemovedEntry
	anonymousCreated   []anonymousCreatedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(UserGrantAssigned); ok {
		r.userGrantAssigned = append(r.userGrantAssigned, userGrantAssignedEntry{name, h})
	}
	if h, ok := p.(GroupGrantAssigned); ok {
		r.groupGrantAssigned = append(r.groupGrantAssigned, groupGrantAssignedEntry{name, h})
	}
	if h, ok := p.(UserGrantRemoved); ok {
		r.userGrantRemoved = append(r.userGrantRemoved, userGrantRemovedEntry{name, h})
	}
	if h, ok := p.(GroupGrantRemoved); ok {
		r.groupGrantRemoved = append(r.groupGrantRemoved, groupGrantRemovedEntry{name, h})
	}
	if h, ok := p.(AnonymousCreated); ok {
		r.anonymousCreated = append(r.anonymousCreated, anonymousCreatedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Grant event emitters
// ──────────────────────────────────────────────────

// EmitUserGrantAssigned notifies all plugins that implement UserGrantAssigned.
func (r *Registry) EmitUserGrantAssigned(ctx context.Context, g *grant.UserGrant) {
	for _, e := range r.userGrantAssigned {
		if err := e.hook.OnUserGrantAssigned(ctx, g); err != nil {
			r.logHookError("OnUserGrantAssigned", e.name, err)
		}
	}
}

// EmitGroupGrantAssigned notifies all plugins that implement GroupGrantAssigned.
func (r *Registry) EmitGroupGrantAssigned(ctx context.Context, g *grant.GroupGrant) {
	for _, e := range r.groupGrantAssigned {
		if err := e.hook.OnGroupGrantAssigned(ctx, g); err != nil {
			r.logHookError("OnGroupGrantAssigned", e.name, err)
		}
	}
}

// EmitUserGrantRemoved notifies all plugins that implement UserGrantRemoved.
func (r *Registry) EmitUserGrantRemoved(ctx context.Context, g *grant.UserGrant) {
	for _, e := range r.userGrantRemoved {
		if err := e.hook.OnUserGrantRemoved(ctx, g); err != nil {
			r.logHookError("OnUserGrantRemoved", e.name, err)
		}
	}
}

// EmitGroupGrantRemoved notifies all plugins that implement GroupGrantRemoved.
func (r *Registry) EmitGroupGrantRemoved(ctx context.Context, g *grant.GroupGrant) {
	for _, e := range r.groupGrantRemoved {
		if err := e.hook.OnGroupGrantRemoved(ctx, g); err != nil {
			r.logHookError("OnGroupGrantRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Principal event emitters
// ──────────────────────────────────────────────────

// EmitAnonymousCreated notifies all plugins that implement AnonymousCreated.
func (r *Registry) EmitAnonymousCreated(ctx context.Context, u *principal.User) {
	for _, e := range r.anonymousCreated {
		if err := e.hook.OnAnonymousCreated(ctx, u); err != nil {
			r.logHookError("OnAnonymousCreated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
