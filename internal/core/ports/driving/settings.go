package driving

import "github.com/custodia-labs/openleg-sync/internal/core/domain"

// SettingsService manages pipeline settings.
type SettingsService interface {
	// Get retrieves current settings merged over the defaults.
	Get() (*domain.SyncSettings, error)

	// Save persists settings.
	Save(settings *domain.SyncSettings) error

	// Validate checks the current settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.SyncSettings

	// ApplyBindings overlays configured parameters and enabled flags onto bindings.
	ApplyBindings(bindings []domain.ImporterBinding) ([]domain.ImporterBinding, error)
}
