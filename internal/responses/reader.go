package responses

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// reader extracts fields from one payload and keeps the first
// MalformedPayload error, so parsers read straight through.
type reader struct {
	responseType string
	root         gjson.Result
	prefix       string
	err          error
}

func newReader(raw []byte, responseType, prefix string) (*reader, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &domain.ParseError{Kind: domain.MalformedPayload, ResponseType: responseType, Path: "$", Reason: "invalid JSON"}
	}
	r := &reader{responseType: responseType, root: gjson.ParseBytes(raw), prefix: prefix}
	if prefix != "" && !r.has("") {
		r.fail("", "required")
	}
	return r, nil
}

func (r *reader) path(p string) string {
	switch {
	case r.prefix == "":
		return p
	case p == "":
		return r.prefix
	default:
		return r.prefix + "." + p
	}
}

func (r *reader) get(p string) gjson.Result {
	return r.root.Get(r.path(p))
}

func (r *reader) has(p string) bool {
	v := r.get(p)
	return v.Exists() && v.Type != gjson.Null
}

func (r *reader) fail(p, reason string) {
	if r.err == nil {
		r.err = &domain.ParseError{
			Kind:         domain.MalformedPayload,
			ResponseType: r.responseType,
			Path:         r.path(p),
			Reason:       reason,
		}
	}
}

func (r *reader) requireString(p string) string {
	v := r.get(p)
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		r.fail(p, "required")
		return ""
	case v.Type != gjson.String:
		r.fail(p, "expected string")
		return ""
	case strings.TrimSpace(v.Str) == "":
		r.fail(p, "empty")
		return ""
	}
	return v.Str
}

func (r *reader) requireInt(p string) int {
	v := r.get(p)
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		r.fail(p, "required")
		return 0
	case v.Type != gjson.Number:
		r.fail(p, "expected number")
		return 0
	case math.Trunc(v.Num) != v.Num:
		r.fail(p, "expected integer")
		return 0
	}
	return int(v.Int())
}

func (r *reader) optString(p string) string {
	v := r.get(p)
	if v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

func (r *reader) optInt(p string) int {
	return int(r.get(p).Int())
}

func (r *reader) optBool(p string) bool {
	return r.get(p).Bool()
}

// stringList collects the string values at p, which may use gjson's "#" queries.
func (r *reader) stringList(p string) []string {
	v := r.get(p)
	if !v.IsArray() {
		return []string{}
	}
	out := make([]string, 0, len(v.Array()))
	for _, e := range v.Array() {
		if s := e.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
