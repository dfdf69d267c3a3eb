package domain

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultBaseURL is the public Openleg API.
const DefaultBaseURL = "https://legislation.nysenate.gov"

// APISettings configures the upstream API client.
type APISettings struct {
	// BaseURL is the scheme and host of the Openleg API.
	BaseURL string

	// APIKey is sent as the "key" query parameter.
	APIKey string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// RetrySettings configures the importer's backoff on transient failures.
type RetrySettings struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level    string
	Encoding string
}

// SyncSettings is the resolved configuration of the pipeline.
type SyncSettings struct {
	API   APISettings
	Retry RetrySettings

	// Workers bounds how many importers a sweep runs at once.
	Workers int

	Scheduler SchedulerConfig
	Log       LogSettings

	// DisabledImporters are excluded from sweeps.
	DisabledImporters []string

	// ImporterParams override binding parameters, keyed by importer id.
	ImporterParams map[string]map[string]string
}

// DefaultSyncSettings returns the defaults used when no config is present.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		API: APISettings{
			BaseURL: DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Retry: RetrySettings{
			MaxRetries:      5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
		},
		Workers:   2,
		Scheduler: DefaultSchedulerConfig(),
		Log: LogSettings{
			Level:    "info",
			Encoding: "console",
		},
		ImporterParams: map[string]map[string]string{},
	}
}

// Validate checks settings that would otherwise fail at request time.
func (s SyncSettings) Validate() error {
	u, err := url.Parse(s.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewConfigurationError("openleg.base_url", "invalid URL %q", s.API.BaseURL)
	}
	if s.API.Timeout <= 0 {
		return NewConfigurationError("openleg.timeout_seconds", "must be positive")
	}
	if s.Retry.MaxRetries < 0 {
		return NewConfigurationError("retry.max_retries", "must not be negative")
	}
	if s.Workers < 1 {
		return NewConfigurationError("coordinator.workers", "must be at least 1, got %d", s.Workers)
	}
	return nil
}

// IsDisabled returns true if the importer is switched off in settings.
func (s SyncSettings) IsDisabled(importerID string) bool {
	for _, id := range s.DisabledImporters {
		if id == importerID {
			return true
		}
	}
	return false
}

// String hides the API key.
func (a APISettings) String() string {
	key := ""
	if a.APIKey != "" {
		key = "****"
	}
	return fmt.Sprintf("base=%s key=%s timeout=%s", a.BaseURL, key, a.Timeout)
}
