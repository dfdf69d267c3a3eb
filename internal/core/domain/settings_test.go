package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSyncSettings_Valid(t *testing.T) {
	s := DefaultSyncSettings()

	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultBaseURL, s.API.BaseURL)
	assert.Equal(t, 30*time.Second, s.API.Timeout)
	assert.Equal(t, 5, s.Retry.MaxRetries)
	assert.Equal(t, 2, s.Workers)
}

func TestSyncSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SyncSettings)
		key    string
	}{
		{"bad url", func(s *SyncSettings) { s.API.BaseURL = "not a url" }, "openleg.base_url"},
		{"zero timeout", func(s *SyncSettings) { s.API.Timeout = 0 }, "openleg.timeout_seconds"},
		{"negative retries", func(s *SyncSettings) { s.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"no workers", func(s *SyncSettings) { s.Workers = 0 }, "coordinator.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSyncSettings()
			tt.mutate(&s)

			err := s.Validate()
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.key, cfgErr.Subject)
		})
	}
}

func TestSyncSettings_IsDisabled(t *testing.T) {
	s := DefaultSyncSettings()
	s.DisabledImporters = []string{"agendas"}

	assert.True(t, s.IsDisabled("agendas"))
	assert.False(t, s.IsDisabled("bills"))
}

func TestAPISettings_StringHidesKey(t *testing.T) {
	a := APISettings{BaseURL: "https://x", APIKey: "secret", Timeout: time.Second}
	assert.NotContains(t, a.String(), "secret")
	assert.Contains(t, a.String(), "****")
}
