package domain

import (
	"strconv"
	"strings"
)

// Response types produced by the Openleg parsers.
const (
	ResponseTypeBill       = "bill"
	ResponseTypeBillUpdate = "bill-update"
	ResponseTypeCalendar   = "calendar"
	ResponseTypeAgenda     = "agenda"
	ResponseTypeMember     = "member"
)

// NormalizedRecord is the canonical in-memory form of one upstream entity.
// The set of implementations is closed: *Bill, *Calendar, *Agenda and *Member.
type NormalizedRecord interface {
	// ResponseType is the discriminator of the variant.
	ResponseType() string

	// ExternalKey is the upstream identifier, unique within ResponseType.
	ExternalKey() string

	// SourceFields exposes the record as a flat map for field mapping.
	SourceFields() map[string]any

	normalized()
}

// CompositeKey joins key parts with "-".
func CompositeKey(parts ...any) string {
	strs := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			strs = append(strs, v)
		case int:
			strs = append(strs, strconv.Itoa(v))
		case int64:
			strs = append(strs, strconv.FormatInt(v, 10))
		}
	}
	return strings.Join(strs, "-")
}

// Bill is a versioned piece of legislation.
type Bill struct {
	Session     int
	BasePrintNo string

	// Version is the active amendment letter, empty for the original print.
	Version string

	Title         string
	Summary       string
	Chamber       string
	BillType      string
	LawSection    string
	Status        string
	StatusDate    string
	Published     string
	Signed        bool
	SubstitutedBy string

	// SponsorKey references the sponsoring member, empty for committee or
	// budget bills without an individual sponsor.
	SponsorKey string

	Cosponsors []string
}

// PrintNo is the base print number with the amendment version.
func (b *Bill) PrintNo() string {
	return b.BasePrintNo + b.Version
}

func (b *Bill) ResponseType() string { return ResponseTypeBill }

// ExternalKey is session + print number, e.g. "2023-S1234A".
func (b *Bill) ExternalKey() string {
	return CompositeKey(b.Session, b.PrintNo())
}

func (b *Bill) SourceFields() map[string]any {
	cosponsors := b.Cosponsors
	if cosponsors == nil {
		cosponsors = []string{}
	}
	return map[string]any{
		"session":       b.Session,
		"printNo":       b.PrintNo(),
		"basePrintNo":   b.BasePrintNo,
		"version":       b.Version,
		"title":         b.Title,
		"summary":       b.Summary,
		"chamber":       b.Chamber,
		"billType":      b.BillType,
		"lawSection":    b.LawSection,
		"status":        b.Status,
		"statusDate":    b.StatusDate,
		"published":     b.Published,
		"signed":        b.Signed,
		"substitutedBy": b.SubstitutedBy,
		"sponsorKey":    b.SponsorKey,
		"cosponsorKeys": cosponsors,
	}
}

func (*Bill) normalized() {}

// Calendar is a floor calendar for one session day.
type Calendar struct {
	Year           int
	CalendarNumber int
	Date           string
	Released       string
	ActiveLists    int
	FloorEntries   []string
}

func (c *Calendar) ResponseType() string { return ResponseTypeCalendar }

// ExternalKey is year + calendar number, e.g. "2023-12".
func (c *Calendar) ExternalKey() string {
	return CompositeKey(c.Year, c.CalendarNumber)
}

func (c *Calendar) SourceFields() map[string]any {
	entries := c.FloorEntries
	if entries == nil {
		entries = []string{}
	}
	return map[string]any{
		"year":           c.Year,
		"calendarNumber": c.CalendarNumber,
		"date":           c.Date,
		"released":       c.Released,
		"activeLists":    c.ActiveLists,
		"floorEntries":   entries,
	}
}

func (*Calendar) normalized() {}

// Agenda is a weekly committee agenda.
type Agenda struct {
	Year       int
	Number     int
	WeekOf     string
	Published  string
	Committees []string
}

func (a *Agenda) ResponseType() string { return ResponseTypeAgenda }

// ExternalKey is year + agenda number, e.g. "2023-3".
func (a *Agenda) ExternalKey() string {
	return CompositeKey(a.Year, a.Number)
}

func (a *Agenda) SourceFields() map[string]any {
	committees := a.Committees
	if committees == nil {
		committees = []string{}
	}
	return map[string]any{
		"year":       a.Year,
		"number":     a.Number,
		"weekOf":     a.WeekOf,
		"published":  a.Published,
		"committees": committees,
	}
}

func (*Agenda) normalized() {}

// Member is a legislator serving in one session.
type Member struct {
	MemberID     int
	SessionYear  int
	ShortName    string
	FullName     string
	Chamber      string
	DistrictCode int
	Incumbent    bool
	ImageName    string
}

func (m *Member) ResponseType() string { return ResponseTypeMember }

// ExternalKey is session year + member id, e.g. "2023-371".
func (m *Member) ExternalKey() string {
	return MemberKey(m.SessionYear, m.MemberID)
}

func (m *Member) SourceFields() map[string]any {
	return map[string]any{
		"memberId":     m.MemberID,
		"sessionYear":  m.SessionYear,
		"shortName":    m.ShortName,
		"fullName":     m.FullName,
		"chamber":      m.Chamber,
		"districtCode": m.DistrictCode,
		"incumbent":    m.Incumbent,
		"imageName":    m.ImageName,
	}
}

func (*Member) normalized() {}

// MemberKey builds the external key used by members and by references to them.
func MemberKey(sessionYear, memberID int) string {
	return CompositeKey(sessionYear, memberID)
}
