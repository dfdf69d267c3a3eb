package processors

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// Local bundles written by the Openleg importers.
const (
	BundleLegislation = "legislation"
	BundleSenator     = "senator"
	BundleCalendar    = "calendar"
	BundleAgenda      = "agenda"
)

func src(dest, source string) FieldMapping {
	return FieldMapping{Dest: dest, Source: source}
}

func intField(fields map[string]any, key string) (int, error) {
	v, ok := fields[key].(int)
	if !ok {
		return 0, fmt.Errorf("%s: expected int, got %T", key, fields[key])
	}
	return v, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// senateBill reports whether a bill originates in the Senate. Only Senate
// members are imported, so Assembly sponsors are never checked.
func senateBill(f map[string]any) bool {
	if chamber := stringField(f, "chamber"); chamber != "" {
		return strings.EqualFold(chamber, "SENATE")
	}
	return strings.HasPrefix(strings.ToUpper(stringField(f, "basePrintNo")), "S")
}

// LegislationDefinition maps bills onto the legislation bundle.
func LegislationDefinition() Definition {
	return Definition{
		Bundle:  BundleLegislation,
		Accepts: []string{domain.ResponseTypeBill},
		Mappings: []FieldMapping{
			{Dest: "title", Derive: func(f map[string]any) (any, error) {
				return fmt.Sprintf("%s: %s", stringField(f, "printNo"), stringField(f, "title")), nil
			}},
			src("field_bill_title", "title"),
			src("field_print_no", "printNo"),
			src("field_base_print_no", "basePrintNo"),
			src("field_session", "session"),
			src("field_version", "version"),
			src("field_summary", "summary"),
			src("field_chamber", "chamber"),
			src("field_bill_type", "billType"),
			src("field_law_section", "lawSection"),
			src("field_status", "status"),
			src("field_status_date", "statusDate"),
			src("field_published_date", "published"),
			src("field_signed", "signed"),
			src("field_substituted_by", "substitutedBy"),
			src("field_sponsor", "sponsorKey"),
			src("field_cosponsors", "cosponsorKeys"),
			{Dest: "field_is_amended", Derive: func(f map[string]any) (any, error) {
				return stringField(f, "version") != "", nil
			}},
		},
		Parents: []ParentRef{
			{Field: "sponsorKey", Bundle: BundleSenator, When: senateBill},
		},
	}
}

// SenatorDefinition maps members onto the senator bundle.
func SenatorDefinition() Definition {
	return Definition{
		Bundle:  BundleSenator,
		Accepts: []string{domain.ResponseTypeMember},
		Mappings: []FieldMapping{
			{Dest: "title", Derive: func(f map[string]any) (any, error) {
				if name := stringField(f, "fullName"); name != "" {
					return name, nil
				}
				return stringField(f, "shortName"), nil
			}},
			src("field_member_id", "memberId"),
			src("field_session", "sessionYear"),
			src("field_short_name", "shortName"),
			src("field_chamber", "chamber"),
			src("field_district", "districtCode"),
			src("field_current_duty", "incumbent"),
			src("field_image_name", "imageName"),
		},
	}
}

// CalendarDefinition maps floor calendars onto the calendar bundle.
func CalendarDefinition() Definition {
	return Definition{
		Bundle:  BundleCalendar,
		Accepts: []string{domain.ResponseTypeCalendar},
		Mappings: []FieldMapping{
			{Dest: "title", Derive: func(f map[string]any) (any, error) {
				n, err := intField(f, "calendarNumber")
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Senate Calendar No. %d (%s)", n, stringField(f, "date")), nil
			}},
			src("field_calendar_no", "calendarNumber"),
			src("field_year", "year"),
			src("field_date", "date"),
			src("field_released", "released"),
			src("field_active_lists", "activeLists"),
			src("field_floor_entries", "floorEntries"),
		},
	}
}

// AgendaDefinition maps committee agendas onto the agenda bundle.
func AgendaDefinition() Definition {
	return Definition{
		Bundle:  BundleAgenda,
		Accepts: []string{domain.ResponseTypeAgenda},
		Mappings: []FieldMapping{
			{Dest: "title", Derive: func(f map[string]any) (any, error) {
				n, err := intField(f, "number")
				if err != nil {
					return nil, err
				}
				year, err := intField(f, "year")
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Agenda %d, %d", n, year), nil
			}},
			src("field_agenda_no", "number"),
			src("field_year", "year"),
			src("field_week_of", "weekOf"),
			src("field_published", "published"),
			src("field_committees", "committees"),
		},
	}
}

// NewOpenlegRegistry creates a registry with the Openleg bundles registered.
func NewOpenlegRegistry(store driven.RecordStore) *Registry {
	r := NewRegistry(store)
	r.MustRegister(SenatorDefinition())
	r.MustRegister(LegislationDefinition())
	r.MustRegister(CalendarDefinition())
	r.MustRegister(AgendaDefinition())
	return r
}
