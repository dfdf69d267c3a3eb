package domain

import (
	"regexp"
	"time"
)

// PaginationMode declares how a resource splits results across pages.
type PaginationMode string

// Pagination modes.
const (
	PaginationNone        PaginationMode = "none"
	PaginationOffsetLimit PaginationMode = "offset-limit"
	PaginationCursorToken PaginationMode = "cursor-token"
)

// IsValid returns true if the pagination mode is recognised.
func (m PaginationMode) IsValid() bool {
	switch m {
	case PaginationNone, PaginationOffsetLimit, PaginationCursorToken:
		return true
	default:
		return false
	}
}

// PaginationPolicy describes the paging parameters of a resource.
type PaginationPolicy struct {
	Mode PaginationMode

	// PageSize is the number of items requested per page.
	PageSize int

	// LimitParam and OffsetParam name the query parameters for offset-limit paging.
	LimitParam  string
	OffsetParam string

	// FirstOffset is the offset of the first item; Openleg offsets are 1-based.
	FirstOffset int

	// TokenParam names the query parameter carrying the next-page token.
	TokenParam string
}

// ThrottlePolicy limits outbound requests to Limit per Period.
// A zero Limit disables throttling.
type ThrottlePolicy struct {
	Period time.Duration
	Limit  int
}

// IncrementalMode declares how a cursor filters a resource.
type IncrementalMode string

// Incremental modes.
const (
	// IncrementalNone re-fetches the whole resource on every run.
	IncrementalNone IncrementalMode = "none"

	// IncrementalSince filters by the cursor watermark, either through path
	// placeholders ({from}, {to}) or a query parameter.
	IncrementalSince IncrementalMode = "since"

	// IncrementalToken resumes from the last upstream token.
	IncrementalToken IncrementalMode = "token"
)

// IncrementalPolicy describes how a resource applies a SyncCursor.
type IncrementalPolicy struct {
	Mode IncrementalMode

	// Param is the query parameter used when the filter is not in the path.
	Param string

	// TimeLayout formats watermarks; defaults to RFC 3339 without zone.
	TimeLayout string
}

// Placeholders filled by the request layer when building incremental requests.
const (
	PlaceholderFrom = "from"
	PlaceholderTo   = "to"
)

// DefaultTimeLayout is the Openleg ISO date-time layout.
const DefaultTimeLayout = "2006-01-02T15:04:05"

// ResourceDescriptor is immutable metadata for one remote resource.
type ResourceDescriptor struct {
	// ID is the registry key (e.g., "bill-search").
	ID string

	// Label is a human-readable name.
	Label string

	// Description explains what the resource returns.
	Description string

	// EndpointTemplate is the path relative to the API base URL and may
	// contain {placeholder} segments.
	EndpointTemplate string

	// ResponseTypes lists the item response types the resource can yield.
	ResponseTypes []string

	Pagination  PaginationPolicy
	Throttle    ThrottlePolicy
	Incremental IncrementalPolicy

	// RequiredParams must resolve to a non-empty value before a request is built.
	RequiredParams []string

	// DefaultParams are used when a binding does not supply a value.
	DefaultParams map[string]string

	// QueryParams are static query parameters added to every request.
	QueryParams map[string]string

	// Origin is where a full run starts when the resource filters by time.
	Origin time.Time
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Placeholders returns the placeholder names in the endpoint template, in order.
func (d ResourceDescriptor) Placeholders() []string {
	matches := placeholderPattern.FindAllStringSubmatch(d.EndpointTemplate, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Yields returns true if the resource declares the response type.
func (d ResourceDescriptor) Yields(responseType string) bool {
	for _, t := range d.ResponseTypes {
		if t == responseType {
			return true
		}
	}
	return false
}

// RawPage is one HTTP response body plus its paging metadata.
// It is consumed immediately by the response registry and never persisted.
type RawPage struct {
	// ResourceID identifies the resource that produced the page.
	ResourceID string

	// URL is the request URL with credentials removed.
	URL string

	// StatusCode is the HTTP status.
	StatusCode int

	// Body is the raw JSON payload.
	Body []byte

	// ResponseType is the envelope discriminator (e.g., "bill list").
	ResponseType string

	// ItemCount is the number of items on this page.
	ItemCount int

	// Offset and Limit echo the request window for offset-limit paging.
	Offset int
	Limit  int

	// OffsetEnd is the upstream offset of the last item, zero if absent.
	OffsetEnd int

	// Total is the upstream total-count hint, -1 if absent.
	Total int

	// NextToken is the upstream continuation token for cursor-token paging.
	NextToken string

	// Done is an explicit "no more pages" signal from the upstream.
	Done bool

	// FetchedAt is when the response was received.
	FetchedAt time.Time
}

// RawItem is one item payload split from a page envelope.
type RawItem struct {
	// ResponseType is the item's own discriminator, or the one implied by the envelope.
	ResponseType string

	// Raw is the item JSON.
	Raw []byte
}
