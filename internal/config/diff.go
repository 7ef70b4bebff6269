package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (listen address, store backend, catalog wiring) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	OriginsChanged bool
	NewOrigins     []string
}

// Changed reports whether the diff carries any reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.OriginsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.OriginsChanged = true
		d.NewOrigins = slices.Clone(new.Server.AllowedOrigins)
	}

	return d
}
