package custos

import (
	"fmt"
	"strings"
	"time"
)

// Config holds configuration for the Custos engine.
type Config struct {
	// AnonymousUserName is the username reserved for the anonymous user.
	// Empty disables anonymous support entirely.
	AnonymousUserName string `json:"anonymous_user_name,omitempty"`

	// AnonymousCacheTTL is the time-to-live for the cached anonymous user
	// row. Zero means every lookup hits the store; a negative value caches
	// it for the lifetime of the process.
	AnonymousCacheTTL time.Duration `json:"anonymous_cache_ttl,omitempty"`

	// AutoPrefetch makes checkers load every grant the principal holds on
	// the first check, so all later checks are answered from memory.
	AutoPrefetch bool `json:"auto_prefetch,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AnonymousUserName: "AnonymousUser",
	}
}

func (c Config) validate() error {
	if c.AnonymousUserName != strings.TrimSpace(c.AnonymousUserName) {
		return fmt.Errorf("%w: anonymous user name has surrounding whitespace", ErrInvalidConfig)
	}
	if c.AnonymousUserName == "" && c.AnonymousCacheTTL != 0 {
		return fmt.Errorf("%w: anonymous cache ttl set but anonymous user disabled", ErrInvalidConfig)
	}
	return nil
}

func (c Config) anonymousEnabled() bool { return c.AnonymousUserName != "" }
