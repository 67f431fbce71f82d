// Package extension provides a Forge extension entry point for Custos.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/custos"
	"github.com/xraph/custos/plugin"
	"github.com/xraph/custos/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "custos"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Object-level permission grants and checks for users and groups"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Custos as a Forge extension.
type Extension struct {
	config     Config
	eng        *custos.Engine
	logger     *slog.Logger
	engineOpts []custos.Option
	plugins    []plugin.Plugin
}

// New creates a Custos Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Custos engine.
func (e *Extension) Engine() *custos.Engine { return e.eng }

// Register implements [forge.Extension]. It initializes the engine and
// registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*custos.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("custos: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Build engine options.
	opts := make([]custos.Option, 0, len(e.engineOpts)+len(e.plugins)+2)
	opts = append(opts, custos.WithLogger(logger))

	// Try to resolve store from DI container, fall back to option-provided store.
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		opts = append(opts, custos.WithStore(s))
	}

	// Append user-provided options (may override store).
	opts = append(opts, e.engineOpts...)

	// Register extension hooks.
	for _, x := range e.plugins {
		opts = append(opts, custos.WithPlugin(x))
	}

	eng, err := custos.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("custos: create engine: %w", err)
	}
	e.eng = eng

	return nil
}

// Start runs migrations if enabled, optionally resolves the anonymous
// principal, and begins the Custos engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("custos: extension not initialized")
	}

	// Run migrations unless disabled.
	if !e.config.DisableMigrate {
		s := e.eng.Store()
		if s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("custos: migration failed: %w", err)
			}
		}
	}

	if e.config.EnsureAnonymous {
		if _, err := e.eng.AnonymousUser(ctx); err != nil {
			return fmt.Errorf("custos: ensure anonymous user: %w", err)
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the Custos engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("custos: extension not initialized")
	}
	s := e.eng.Store()
	if s == nil {
		return errors.New("custos: no store configured")
	}
	return s.Ping(ctx)
}
