package forgeext

import "time"

// Config holds the annex Forge extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.annex" or "annex" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for annex routes (default: none).
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// OperationTimeout bounds every store call made by the engine. Zero
	// keeps the engine default.
	OperationTimeout time.Duration `json:"operation_timeout" mapstructure:"operation_timeout" yaml:"operation_timeout"`

	// RequireOwner restricts every route to the owning user or
	// organization of the addressed extension.
	RequireOwner bool `json:"require_owner" mapstructure:"require_owner" yaml:"require_owner"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequireOwner: true,
	}
}
