package querycache

import "time"

// Config sizes the response store.
type Config struct {
	// Capacity is the maximum number of cached responses.
	Capacity int
	// NumShards splits the store to reduce lock contention.
	NumShards int
	// TTL is how long a response stays fresh.
	TTL time.Duration
	// EvictionPercentage of entries is dropped when the store is full (1-100).
	EvictionPercentage int
}

// DefaultConfig returns the store settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                30 * time.Second,
		EvictionPercentage: 10,
	}
}

// Validate checks the store settings.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	return nil
}

// ConfigError reports an invalid store setting.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "query cache config error in field " + e.Field + ": " + e.Message
}
