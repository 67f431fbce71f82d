package extension

// Config holds the Custos extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custos" or "custos" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// EnsureAnonymous resolves the anonymous principal once on start, so
	// the backing row exists before the first request needs it.
	EnsureAnonymous bool `json:"ensure_anonymous" mapstructure:"ensure_anonymous" yaml:"ensure_anonymous"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{}
}
