package responses

import (
	"strconv"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// ParseBill normalises an Openleg "bill" payload.
func ParseBill(raw []byte) (domain.NormalizedRecord, error) {
	return parseBill(raw, domain.ResponseTypeBill, "")
}

// ParseBillUpdate normalises a "bill-update" digest, whose bill sits under "item".
func ParseBillUpdate(raw []byte) (domain.NormalizedRecord, error) {
	return parseBill(raw, domain.ResponseTypeBillUpdate, "item")
}

func parseBill(raw []byte, responseType, prefix string) (domain.NormalizedRecord, error) {
	r, err := newReader(raw, responseType, prefix)
	if err != nil {
		return nil, err
	}

	b := &domain.Bill{
		Session:       r.requireInt("session"),
		BasePrintNo:   r.requireString("basePrintNo"),
		Version:       r.optString("activeVersion"),
		Title:         r.requireString("title"),
		Summary:       r.optString("summary"),
		Chamber:       r.optString("billType.chamber"),
		BillType:      r.optString("billType.desc"),
		LawSection:    r.optString("lawSection"),
		Status:        r.optString("status.statusType"),
		StatusDate:    r.optString("status.actionDate"),
		Published:     r.optString("publishedDateTime"),
		Signed:        r.optBool("signed"),
		SubstitutedBy: r.optString("substitutedBy.basePrintNo"),
	}

	// Budget and committee bills carry a sponsor without a member.
	if r.has("sponsor.member") {
		b.SponsorKey = domain.MemberKey(
			r.requireInt("sponsor.member.sessionYear"),
			r.requireInt("sponsor.member.memberId"),
		)
	}

	if r.has("coSponsors.items") {
		ids := r.get("coSponsors.items").Array()
		b.Cosponsors = make([]string, 0, len(ids))
		for i := range ids {
			b.Cosponsors = append(b.Cosponsors, domain.MemberKey(
				r.requireInt(itemPath("coSponsors.items", i, "sessionYear")),
				r.requireInt(itemPath("coSponsors.items", i, "memberId")),
			))
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return b, nil
}

// ParseCalendar normalises an Openleg "calendar" payload.
func ParseCalendar(raw []byte) (domain.NormalizedRecord, error) {
	r, err := newReader(raw, domain.ResponseTypeCalendar, "")
	if err != nil {
		return nil, err
	}

	c := &domain.Calendar{
		Year:           r.requireInt("year"),
		CalendarNumber: r.requireInt("calendarNumber"),
		Date:           r.requireString("calDate"),
		Released:       r.optString("releaseDateTime"),
		ActiveLists:    r.optInt("activeLists.size"),
		FloorEntries:   r.stringList("floorCalendar.entries.items.#.printNo"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// ParseAgenda normalises an Openleg "agenda" payload.
func ParseAgenda(raw []byte) (domain.NormalizedRecord, error) {
	r, err := newReader(raw, domain.ResponseTypeAgenda, "")
	if err != nil {
		return nil, err
	}

	a := &domain.Agenda{
		Year:       r.requireInt("id.year"),
		Number:     r.requireInt("id.number"),
		WeekOf:     r.requireString("weekOf"),
		Published:  r.optString("publishedDateTime"),
		Committees: r.stringList("committeeAgendas.items.#.committeeId.name"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}

// ParseMember normalises an Openleg "member" payload.
func ParseMember(raw []byte) (domain.NormalizedRecord, error) {
	r, err := newReader(raw, domain.ResponseTypeMember, "")
	if err != nil {
		return nil, err
	}

	m := &domain.Member{
		MemberID:     r.requireInt("memberId"),
		SessionYear:  r.requireInt("sessionYear"),
		ShortName:    r.requireString("shortName"),
		FullName:     r.optString("fullName"),
		Chamber:      r.optString("chamber"),
		DistrictCode: r.optInt("districtCode"),
		Incumbent:    r.optBool("incumbent"),
		ImageName:    r.optString("imgName"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func itemPath(list string, i int, field string) string {
	return list + "." + strconv.Itoa(i) + "." + field
}
