package services

import (
	"context"
	"strconv"
	"time"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
	"github.com/custodia-labs/openleg-sync/internal/logger"
	"github.com/custodia-labs/openleg-sync/internal/processors"
	"github.com/custodia-labs/openleg-sync/internal/requests"
)

// Built-in importer ids.
const (
	ImporterMembers     = "members"
	ImporterBills       = "bills"
	ImporterBillUpdates = "bill-updates"
	ImporterCalendars   = "calendars"
	ImporterAgendas     = "agendas"
)

// SessionYear returns the start year of the two-year legislative session
// containing t. Sessions begin in odd years.
func SessionYear(t time.Time) int {
	y := t.Year()
	if y%2 == 0 {
		return y - 1
	}
	return y
}

// DefaultBindings returns the built-in importers for the session and year
// containing now. Members come first so bill sponsors resolve.
func DefaultBindings(now time.Time) []domain.ImporterBinding {
	session := strconv.Itoa(SessionYear(now))
	year := strconv.Itoa(now.Year())

	return []domain.ImporterBinding{
		{
			ID:            ImporterMembers,
			Label:         "Senate members",
			ResourceID:    requests.ResourceMemberList,
			Params:        map[string]string{"session": session},
			ResponseTypes: []string{domain.ResponseTypeMember},
			Bundle:        processors.BundleSenator,
			Identity:      domain.IdentityExternalKey,
			Enabled:       true,
		},
		{
			ID:            ImporterBills,
			Label:         "Bills of the session",
			ResourceID:    requests.ResourceBillSearch,
			Params:        map[string]string{"session": session},
			ResponseTypes: []string{domain.ResponseTypeBill},
			Bundle:        processors.BundleLegislation,
			Identity:      domain.IdentityAlias,
			Enabled:       true,
			DependsOn:     []string{ImporterMembers},
		},
		{
			ID:            ImporterBillUpdates,
			Label:         "Bill updates",
			ResourceID:    requests.ResourceBillUpdates,
			ResponseTypes: []string{domain.ResponseTypeBillUpdate},
			Bundle:        processors.BundleLegislation,
			Identity:      domain.IdentityAlias,
			Enabled:       true,
			DependsOn:     []string{ImporterMembers},
		},
		{
			ID:            ImporterCalendars,
			Label:         "Floor calendars",
			ResourceID:    requests.ResourceCalendarList,
			Params:        map[string]string{"year": year},
			ResponseTypes: []string{domain.ResponseTypeCalendar},
			Bundle:        processors.BundleCalendar,
			Identity:      domain.IdentityExternalKey,
			Enabled:       true,
		},
		{
			ID:            ImporterAgendas,
			Label:         "Committee agendas",
			ResourceID:    requests.ResourceAgendaList,
			Params:        map[string]string{"year": year},
			ResponseTypes: []string{domain.ResponseTypeAgenda},
			Bundle:        processors.BundleAgenda,
			Identity:      domain.IdentityExternalKey,
			Enabled:       true,
		},
	}
}

// WatchBindings rebinds coord every time store reloads. A configuration
// that fails validation is logged and the running bindings stay in place.
// API and retry settings are read once at startup.
func WatchBindings(
	ctx context.Context,
	store driven.ConfigStore,
	settings driving.SettingsService,
	coord *Coordinator,
) error {
	return store.Watch(ctx, func(loadErr error) {
		if loadErr != nil {
			logger.Warn("config reload failed: %v", loadErr)
			return
		}
		err := settings.Validate()
		if err == nil {
			var bindings []domain.ImporterBinding
			bindings, err = settings.ApplyBindings(DefaultBindings(coord.cfg.Clock.Now()))
			if err == nil {
				err = coord.Reload(bindings)
			}
		}
		if err != nil {
			logger.Warn("config reload rejected: %v", err)
			return
		}
		logger.Info("importers rebound from %s", store.Path())
	})
}
