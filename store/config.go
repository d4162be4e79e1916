package store

import (
	"io/fs"
	"log/slog"
	"time"
)

// Config holds configuration for a database handle.
type Config struct {
	// RegistryBucket is the name of the hidden bucket holding one marker
	// entry per registered store.
	// Default: "__registry"
	RegistryBucket string

	// RelationBucket is the name of the hidden bucket holding the
	// directed free-relation edge records.
	// Default: "__free_relations"
	RelationBucket string

	// Logger receives cascade-delete progress at debug level.
	// Default: slog.Default()
	Logger *slog.Logger

	// FileMode is the mode the database file is created with.
	// Default: 0600
	FileMode fs.FileMode

	// OpenTimeout bounds how long Open waits for the file lock.
	// Zero waits indefinitely.
	OpenTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RegistryBucket: "__registry",
		RelationBucket: "__free_relations",
		Logger:         slog.Default(),
		FileMode:       0o600,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.RegistryBucket == "" {
		c.RegistryBucket = "__registry"
	}
	if c.RelationBucket == "" {
		c.RelationBucket = "__free_relations"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.FileMode == 0 {
		c.FileMode = 0o600
	}
}
