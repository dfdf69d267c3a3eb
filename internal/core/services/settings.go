package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyBaseURL          = "openleg.base_url"
	keyAPIKey           = "openleg.api_key"
	keyTimeoutSeconds   = "openleg.timeout_seconds"
	keyMaxRetries       = "retry.max_retries"
	keyInitialInterval  = "retry.initial_interval_ms"
	keyMaxInterval      = "retry.max_interval_ms"
	keyWorkers          = "coordinator.workers"
	keySchedulerEnabled = "scheduler.enabled"
	keySchedulerMinutes = "scheduler.interval_minutes"
	keySchedulerCron    = "scheduler.cron"
	keyLogLevel         = "log.level"
	keyLogEncoding      = "log.encoding"
	keyImporters        = "importers"
	keyDisabled         = "importers.disabled"
)

// SettingsService reads and writes pipeline settings through a ConfigStore.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current settings merged over the defaults.
func (s *SettingsService) Get() (*domain.SyncSettings, error) {
	d := domain.DefaultSyncSettings()

	settings := &domain.SyncSettings{
		API: domain.APISettings{
			BaseURL: s.getString(keyBaseURL, d.API.BaseURL),
			APIKey:  s.configStore.GetString(keyAPIKey),
			Timeout: s.getDuration(keyTimeoutSeconds, time.Second, d.API.Timeout),
		},
		Retry: domain.RetrySettings{
			MaxRetries:      s.getInt(keyMaxRetries, d.Retry.MaxRetries),
			InitialInterval: s.getDuration(keyInitialInterval, time.Millisecond, d.Retry.InitialInterval),
			MaxInterval:     s.getDuration(keyMaxInterval, time.Millisecond, d.Retry.MaxInterval),
		},
		Workers: s.getInt(keyWorkers, d.Workers),
		Log: domain.LogSettings{
			Level:    s.getString(keyLogLevel, d.Log.Level),
			Encoding: s.getString(keyLogEncoding, d.Log.Encoding),
		},
		DisabledImporters: s.configStore.GetStringSlice(keyDisabled),
		ImporterParams:    s.importerParams(),
	}

	sweep := d.Scheduler.GetTaskConfig(domain.TaskIDSweep)
	sweep.Interval = s.getDuration(keySchedulerMinutes, time.Minute, sweep.Interval)
	sweep.Schedule = s.configStore.GetString(keySchedulerCron)
	settings.Scheduler = domain.SchedulerConfig{
		Enabled:     s.getBool(keySchedulerEnabled, d.Scheduler.Enabled),
		TaskConfigs: map[string]domain.TaskConfig{domain.TaskIDSweep: sweep},
	}

	return settings, nil
}

// importerParams collects importers.<id>.<param> keys.
func (s *SettingsService) importerParams() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, key := range s.configStore.Keys(keyImporters) {
		if key == keyDisabled {
			continue
		}
		rest := strings.TrimPrefix(key, keyImporters+".")
		id, param, ok := strings.Cut(rest, ".")
		if !ok || id == "" || param == "" {
			continue
		}
		val, _ := s.configStore.Get(key)
		if out[id] == nil {
			out[id] = make(map[string]string)
		}
		out[id][param] = fmt.Sprint(val)
	}
	return out
}

// Save persists settings.
func (s *SettingsService) Save(settings *domain.SyncSettings) error {
	sweep := settings.Scheduler.GetTaskConfig(domain.TaskIDSweep)

	values := []struct {
		key string
		val any
	}{
		{keyBaseURL, settings.API.BaseURL},
		{keyTimeoutSeconds, int(settings.API.Timeout / time.Second)},
		{keyMaxRetries, settings.Retry.MaxRetries},
		{keyInitialInterval, int(settings.Retry.InitialInterval / time.Millisecond)},
		{keyMaxInterval, int(settings.Retry.MaxInterval / time.Millisecond)},
		{keyWorkers, settings.Workers},
		{keySchedulerEnabled, settings.Scheduler.Enabled},
		{keySchedulerMinutes, int(sweep.Interval / time.Minute)},
		{keySchedulerCron, sweep.Schedule},
		{keyLogLevel, settings.Log.Level},
		{keyLogEncoding, settings.Log.Encoding},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if settings.API.APIKey != "" {
		if err := s.configStore.Set(keyAPIKey, settings.API.APIKey); err != nil {
			return fmt.Errorf("save %s: %w", keyAPIKey, err)
		}
	}
	if settings.DisabledImporters != nil {
		if err := s.configStore.Set(keyDisabled, settings.DisabledImporters); err != nil {
			return fmt.Errorf("save %s: %w", keyDisabled, err)
		}
	}

	ids := make([]string, 0, len(settings.ImporterParams))
	for id := range settings.ImporterParams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for param, val := range settings.ImporterParams[id] {
			key := keyImporters + "." + id + "." + param
			if err := s.configStore.Set(key, val); err != nil {
				return fmt.Errorf("save %s: %w", key, err)
			}
		}
	}

	return nil
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if expr := settings.Scheduler.GetTaskConfig(domain.TaskIDSweep).Schedule; expr != "" {
		if _, err := ParseSchedule(expr); err != nil {
			return err
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.SyncSettings {
	return domain.DefaultSyncSettings()
}

// ApplyBindings overlays configured parameters and disabled flags onto
// bindings. Unknown importer ids in the config are a configuration error.
func (s *SettingsService) ApplyBindings(bindings []domain.ImporterBinding) ([]domain.ImporterBinding, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		known[b.ID] = true
	}
	for id := range settings.ImporterParams {
		if !known[id] {
			return nil, domain.NewConfigurationError(keyImporters+"."+id, "no such importer")
		}
	}
	for _, id := range settings.DisabledImporters {
		if !known[id] {
			return nil, domain.NewConfigurationError(keyDisabled, "no such importer %q", id)
		}
	}

	out := make([]domain.ImporterBinding, len(bindings))
	for i, b := range bindings {
		params := make(map[string]string, len(b.Params))
		for k, v := range b.Params {
			params[k] = v
		}
		for k, v := range settings.ImporterParams[b.ID] {
			params[k] = v
		}
		b.Params = params
		if settings.IsDisabled(b.ID) {
			b.Enabled = false
		}
		out[i] = b
	}
	return out, nil
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getInt distinguishes an explicit zero from a missing key.
func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, unit, defaultVal time.Duration) time.Duration {
	n := s.configStore.GetInt(key)
	if n <= 0 {
		return defaultVal
	}
	return time.Duration(n) * unit
}
