package driven

import "context"

// ConfigStore is the flattened key/value view of the config file.
// Nested tables appear as dotted keys ("openleg.base_url").
type ConfigStore interface {
	// Get returns the raw value and whether the key exists.
	Get(key string) (any, bool)

	// GetString returns "" if the key is missing or not a string.
	GetString(key string) string

	// GetInt accepts any integer or float value; 0 otherwise.
	GetInt(key string) int

	GetBool(key string) bool

	// GetStringSlice returns nil if the key is missing or not a list.
	GetStringSlice(key string) []string

	// Keys returns all keys under the dotted prefix, sorted.
	Keys(prefix string) []string

	// Set changes a value in memory; Save persists it.
	Set(key string, value any) error

	Save() error
	Load() error

	// Path is where the configuration lives.
	Path() string

	// Watch calls onChange after every reload of the configuration until
	// ctx is done. It returns once watching has started.
	Watch(ctx context.Context, onChange func(error)) error
}
