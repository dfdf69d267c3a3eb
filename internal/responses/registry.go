package responses

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// DiscriminatorField is the top-level field naming a payload's response type.
const DiscriminatorField = "responseType"

// listSuffix marks an envelope whose result holds an item list.
const listSuffix = " list"

// ParseFunc normalises one payload. Implementations must be pure: no I/O
// and no registry lookups.
type ParseFunc func(raw []byte) (domain.NormalizedRecord, error)

// Ensure Registry implements the interface.
var _ driven.ResponseRegistry = (*Registry)(nil)

// Registry maps response type discriminators to parsers.
// It is populated at startup and read-only afterwards.
type Registry struct {
	parsers map[string]ParseFunc
}

// NewRegistry creates an empty response registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]ParseFunc),
	}
}

// NewOpenlegRegistry creates a registry with the built-in Openleg parsers.
func NewOpenlegRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(domain.ResponseTypeBill, ParseBill)
	r.MustRegister(domain.ResponseTypeBillUpdate, ParseBillUpdate)
	r.MustRegister(domain.ResponseTypeCalendar, ParseCalendar)
	r.MustRegister(domain.ResponseTypeAgenda, ParseAgenda)
	r.MustRegister(domain.ResponseTypeMember, ParseMember)
	return r
}

// Register adds a parser for a response type.
func (r *Registry) Register(responseType string, fn ParseFunc) error {
	if responseType == "" || fn == nil {
		return fmt.Errorf("%w: response type and parser are required", domain.ErrInvalidInput)
	}
	if _, ok := r.parsers[responseType]; ok {
		return fmt.Errorf("response type %q: %w", responseType, domain.ErrAlreadyExists)
	}
	r.parsers[responseType] = fn
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(responseType string, fn ParseFunc) {
	if err := r.Register(responseType, fn); err != nil {
		panic(err)
	}
}

// Has returns true if a parser is registered for the response type.
func (r *Registry) Has(responseType string) bool {
	_, ok := r.parsers[responseType]
	return ok
}

// Types returns the registered response types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Parse normalises raw with the parser registered for responseType.
func (r *Registry) Parse(responseType string, raw []byte) (domain.NormalizedRecord, error) {
	fn, ok := r.parsers[responseType]
	if !ok {
		return nil, &domain.ParseError{Kind: domain.UnknownResponseType, ResponseType: responseType}
	}
	return fn(raw)
}

// Dispatch reads the payload's own discriminator and parses it.
func (r *Registry) Dispatch(raw []byte) (domain.NormalizedRecord, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &domain.ParseError{Kind: domain.MalformedPayload, Path: "$", Reason: "invalid JSON"}
	}
	return r.Parse(gjson.GetBytes(raw, DiscriminatorField).String(), raw)
}

// Items splits a page envelope into item payloads.
//
// A "<type> list" envelope yields result.items; any other envelope is a
// single item under result. An item's own responseType overrides the type
// implied by the envelope. A page whose envelope has no discriminator, or
// implies a type with no parser, fails with UnknownResponseType.
func (r *Registry) Items(page *domain.RawPage) ([]domain.RawItem, error) {
	body := page.Body
	if !gjson.ValidBytes(body) {
		return nil, &domain.ParseError{Kind: domain.MalformedPayload, ResponseType: page.ResponseType, Path: "$", Reason: "invalid JSON"}
	}

	envType := gjson.GetBytes(body, DiscriminatorField).String()
	if envType == "" {
		return nil, &domain.ParseError{Kind: domain.UnknownResponseType}
	}
	isList := strings.HasSuffix(envType, listSuffix)
	itemType := strings.TrimSuffix(envType, listSuffix)
	if !r.Has(itemType) {
		return nil, &domain.ParseError{Kind: domain.UnknownResponseType, ResponseType: envType}
	}

	result := gjson.GetBytes(body, "result")
	var elems []gjson.Result
	switch {
	case isList:
		list := result.Get("items")
		if !list.IsArray() {
			return nil, &domain.ParseError{Kind: domain.MalformedPayload, ResponseType: envType, Path: "result.items", Reason: "expected array"}
		}
		elems = list.Array()
	case result.IsObject():
		elems = []gjson.Result{result}
	default:
		return nil, &domain.ParseError{Kind: domain.MalformedPayload, ResponseType: envType, Path: "result", Reason: "expected object"}
	}

	items := make([]domain.RawItem, 0, len(elems))
	for _, e := range elems {
		t := e.Get(DiscriminatorField).String()
		if t == "" {
			t = itemType
		}
		items = append(items, domain.RawItem{ResponseType: t, Raw: []byte(e.Raw)})
	}
	return items, nil
}
