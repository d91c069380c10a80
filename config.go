package annex

import "time"

// Config holds configuration for the annex engine.
type Config struct {
	// OperationTimeout bounds every call into the store. Zero disables the
	// bound. Defaults to 5s.
	OperationTimeout time.Duration `json:"operation_timeout,omitempty" yaml:"operation_timeout"`

	// PermissiveSettings stores settings values without checking them
	// against the extension's declared schema.
	PermissiveSettings bool `json:"permissive_settings,omitempty" yaml:"permissive_settings"`

	// DisableEventLog stops recording lifecycle events.
	DisableEventLog bool `json:"disable_event_log,omitempty" yaml:"disable_event_log"`

	// EventRetention, when positive, purges older lifecycle events each
	// time the engine starts.
	EventRetention time.Duration `json:"event_retention,omitempty" yaml:"event_retention"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		OperationTimeout: 5 * time.Second,
	}
}
