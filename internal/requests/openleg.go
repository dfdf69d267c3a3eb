package requests

import (
	"time"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// Built-in Openleg resource ids.
const (
	ResourceBillSearch   = "bill-search"
	ResourceBillUpdates  = "bill-updates"
	ResourceCalendarList = "calendar-list"
	ResourceAgendaList   = "agenda-list"
	ResourceMemberList   = "member-list"
)

// OpenlegOrigin is the start of the Openleg data set; full runs of
// time-filtered resources begin here.
var OpenlegOrigin = time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC)

// openlegThrottle stays well under the public API's per-key limits.
var openlegThrottle = domain.ThrottlePolicy{Period: time.Second, Limit: 4}

func openlegPaging(size int) domain.PaginationPolicy {
	return domain.PaginationPolicy{
		Mode:        domain.PaginationOffsetLimit,
		PageSize:    size,
		LimitParam:  "limit",
		OffsetParam: "offset",
		FirstOffset: 1,
	}
}

// OpenlegResources returns the descriptors of the Openleg v3 API.
func OpenlegResources() []domain.ResourceDescriptor {
	return []domain.ResourceDescriptor{
		{
			ID:               ResourceBillSearch,
			Label:            "Bills by session",
			Description:      "All bills of a legislative session, full view",
			EndpointTemplate: "/api/3/bills/{session}",
			ResponseTypes:    []string{domain.ResponseTypeBill},
			Pagination:       openlegPaging(100),
			Throttle:         openlegThrottle,
			RequiredParams:   []string{"session"},
			QueryParams:      map[string]string{"view": "default", "full": "true"},
		},
		{
			ID:               ResourceBillUpdates,
			Label:            "Bill updates",
			Description:      "Bills changed in a processed-time window, with detail",
			EndpointTemplate: "/api/3/bills/updates/{from}/{to}",
			ResponseTypes:    []string{domain.ResponseTypeBillUpdate},
			Pagination:       openlegPaging(100),
			Throttle:         openlegThrottle,
			Incremental:      domain.IncrementalPolicy{Mode: domain.IncrementalSince},
			QueryParams:      map[string]string{"detail": "true", "type": "processed"},
			Origin:           OpenlegOrigin,
		},
		{
			ID:               ResourceCalendarList,
			Label:            "Calendars by year",
			Description:      "Senate floor calendars of a year",
			EndpointTemplate: "/api/3/calendars/{year}",
			ResponseTypes:    []string{domain.ResponseTypeCalendar},
			Pagination:       openlegPaging(50),
			Throttle:         openlegThrottle,
			RequiredParams:   []string{"year"},
			QueryParams:      map[string]string{"full": "true"},
		},
		{
			ID:               ResourceAgendaList,
			Label:            "Agendas by year",
			Description:      "Weekly committee agendas of a year",
			EndpointTemplate: "/api/3/agendas/{year}",
			ResponseTypes:    []string{domain.ResponseTypeAgenda},
			Pagination:       openlegPaging(50),
			Throttle:         openlegThrottle,
			RequiredParams:   []string{"year"},
		},
		{
			ID:               ResourceMemberList,
			Label:            "Members by session",
			Description:      "Senate members serving in a session",
			EndpointTemplate: "/api/3/members/{session}/{chamber}",
			ResponseTypes:    []string{domain.ResponseTypeMember},
			Pagination:       openlegPaging(200),
			Throttle:         openlegThrottle,
			RequiredParams:   []string{"session"},
			DefaultParams:    map[string]string{"chamber": "senate"},
			QueryParams:      map[string]string{"full": "true"},
		},
	}
}

// NewOpenlegRegistry creates a registry with the Openleg resources registered.
func NewOpenlegRegistry(cfg Config, doer driven.HTTPDoer, clock driven.Clock) (*Registry, error) {
	r, err := NewRegistry(cfg, doer, clock)
	if err != nil {
		return nil, err
	}
	for _, d := range OpenlegResources() {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}
