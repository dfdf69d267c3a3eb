package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// DeriveFunc computes a destination value from a record's source fields.
// It must be pure.
type DeriveFunc func(src map[string]any) (any, error)

// FieldMapping fills one destination field from exactly one source field
// or one derivation.
type FieldMapping struct {
	Dest   string
	Source string
	Derive DeriveFunc
}

// ParentRef declares that the source field Field holds the identity key of
// a record in Bundle. An empty value means the record has no parent.
type ParentRef struct {
	Field  string
	Bundle string

	// When limits the check to records whose parent Bundle can hold;
	// nil checks every record.
	When func(src map[string]any) bool
}

// Definition is the reconciliation contract of one bundle.
type Definition struct {
	// Bundle is the local content type.
	Bundle string

	// Accepts lists the record response types the bundle takes.
	Accepts []string

	// Mappings are the only fields an import writes. Every other field
	// of a local record is left as it is.
	Mappings []FieldMapping

	// Parents must exist locally before a record is written.
	Parents []ParentRef
}

func (d Definition) accepts(responseType string) bool {
	for _, t := range d.Accepts {
		if t == responseType {
			return true
		}
	}
	return false
}

// Ensure Registry implements the interface.
var _ driven.RecordProcessor = (*Registry)(nil)

// Registry maps bundles to their definitions and applies them against
// the local record store.
type Registry struct {
	store driven.RecordStore
	defs  map[string]Definition
}

// NewRegistry creates an empty processor registry writing to store.
func NewRegistry(store driven.RecordStore) *Registry {
	return &Registry{
		store: store,
		defs:  make(map[string]Definition),
	}
}

// Register validates and adds a bundle definition.
func (r *Registry) Register(def Definition) error {
	if def.Bundle == "" {
		return domain.NewConfigurationError("processor", "bundle is required")
	}
	if _, ok := r.defs[def.Bundle]; ok {
		return domain.NewConfigurationError(def.Bundle, "processor already registered")
	}
	if len(def.Accepts) == 0 {
		return domain.NewConfigurationError(def.Bundle, "processor accepts no response types")
	}
	seen := make(map[string]bool, len(def.Mappings))
	for _, m := range def.Mappings {
		if m.Dest == "" {
			return domain.NewConfigurationError(def.Bundle, "mapping without destination")
		}
		if (m.Source == "") == (m.Derive == nil) {
			return domain.NewConfigurationError(def.Bundle, "field %q needs exactly one source or derivation", m.Dest)
		}
		if seen[m.Dest] {
			return domain.NewConfigurationError(def.Bundle, "field %q mapped twice", m.Dest)
		}
		seen[m.Dest] = true
	}
	for _, p := range def.Parents {
		if p.Field == "" || p.Bundle == "" {
			return domain.NewConfigurationError(def.Bundle, "parent reference needs a field and a bundle")
		}
	}
	r.defs[def.Bundle] = def
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Has returns true if a processor is registered for the bundle.
func (r *Registry) Has(bundle string) bool {
	_, ok := r.defs[bundle]
	return ok
}

// Bundles returns the registered bundles in sorted order.
func (r *Registry) Bundles() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Accepts returns true if the bundle takes records of the response type.
func (r *Registry) Accepts(bundle, responseType string) bool {
	def, ok := r.defs[bundle]
	return ok && def.accepts(responseType)
}

func (r *Registry) definition(bundle string) (Definition, error) {
	def, ok := r.defs[bundle]
	if !ok {
		return Definition{}, domain.NewConfigurationError(bundle, "no processor registered")
	}
	return def, nil
}

// Map applies the bundle's field mappings to a record.
func (r *Registry) Map(bundle string, record domain.NormalizedRecord) (map[string]any, error) {
	def, err := r.definition(bundle)
	if err != nil {
		return nil, err
	}
	return mapFields(def, record)
}

func mapFields(def Definition, record domain.NormalizedRecord) (map[string]any, error) {
	src := record.SourceFields()
	out := make(map[string]any, len(def.Mappings))
	for _, m := range def.Mappings {
		if m.Derive == nil {
			v, ok := src[m.Source]
			if !ok {
				return nil, fmt.Errorf("map %s.%s: source field %q not present on %s", def.Bundle, m.Dest, m.Source, record.ResponseType())
			}
			out[m.Dest] = v
			continue
		}
		v, err := m.Derive(src)
		if err != nil {
			return nil, fmt.Errorf("derive %s.%s: %w", def.Bundle, m.Dest, err)
		}
		out[m.Dest] = v
	}
	return out, nil
}

// Import looks up the local record by identity key and reconciles it.
func (r *Registry) Import(ctx context.Context, bundle, identityKey string, record domain.NormalizedRecord) (domain.Outcome, error) {
	existing, err := r.store.FindByIdentity(ctx, bundle, identityKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		existing = nil
	case err != nil:
		return domain.Outcome{}, &domain.StorageError{Op: "find", Err: err}
	}
	return r.Reconcile(ctx, bundle, identityKey, record, existing)
}

// Reconcile decides and applies the outcome for one record.
//
// A nil existing record is Created. Otherwise mapped fields are compared
// one by one and the record is Updated only if one differs; unmapped
// fields keep their local values. A record whose parent is not yet
// imported is Rejected without writing.
func (r *Registry) Reconcile(
	ctx context.Context,
	bundle, identityKey string,
	record domain.NormalizedRecord,
	existing *domain.LocalRecord,
) (domain.Outcome, error) {
	def, err := r.definition(bundle)
	if err != nil {
		return domain.Outcome{}, err
	}
	if !def.accepts(record.ResponseType()) {
		return domain.Outcome{}, domain.NewConfigurationError(bundle, "does not accept %s records", record.ResponseType())
	}
	if existing != nil {
		if existing.Bundle != bundle {
			return domain.Outcome{}, fmt.Errorf("%w: record %d is %s, not %s", domain.ErrInvalidInput, existing.ID, existing.Bundle, bundle)
		}
		if existing.IdentityKey != identityKey {
			return domain.Outcome{}, fmt.Errorf("%w: %q != %q", domain.ErrIdentityImmutable, existing.IdentityKey, identityKey)
		}
	}

	mapped, err := mapFields(def, record)
	if err != nil {
		return domain.Outcome{}, err
	}

	if reason, err := r.checkParents(ctx, def, record); err != nil {
		return domain.Outcome{}, err
	} else if reason != "" {
		return domain.Rejected("%s", reason), nil
	}

	if existing == nil {
		created, err := r.store.Create(ctx, bundle, identityKey, mapped)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			// Another importer writing the same bundle created it after
			// our lookup; reconcile against its copy instead.
			existing, err = r.store.FindByIdentity(ctx, bundle, identityKey)
			if err != nil {
				return domain.Outcome{}, &domain.StorageError{Op: "find", Err: err}
			}
		case err != nil:
			return domain.Outcome{}, &domain.StorageError{Op: "create", Err: err}
		default:
			return domain.Outcome{Kind: domain.OutcomeCreated, Record: created}, nil
		}
	}

	changed, err := ChangedFields(existing.Fields, mapped)
	if err != nil {
		return domain.Outcome{}, err
	}
	if len(changed) == 0 {
		return domain.Outcome{Kind: domain.OutcomeUnchanged, Record: existing}, nil
	}

	merged := existing.CloneFields()
	for _, k := range changed {
		merged[k] = mapped[k]
	}
	updated, err := r.store.Update(ctx, existing.ID, merged)
	if err != nil {
		return domain.Outcome{}, &domain.StorageError{Op: "update", Err: err}
	}
	return domain.Outcome{Kind: domain.OutcomeUpdated, Record: updated}, nil
}

func (r *Registry) checkParents(ctx context.Context, def Definition, record domain.NormalizedRecord) (string, error) {
	if len(def.Parents) == 0 {
		return "", nil
	}
	src := record.SourceFields()
	for _, p := range def.Parents {
		key, _ := src[p.Field].(string)
		if key == "" || (p.When != nil && !p.When(src)) {
			continue
		}
		_, err := r.store.FindByIdentity(ctx, p.Bundle, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fmt.Sprintf("%s %s references missing %s %q", record.ResponseType(), record.ExternalKey(), p.Bundle, key), nil
		case err != nil:
			return "", &domain.StorageError{Op: "find parent", Err: err}
		}
	}
	return "", nil
}

// ChangedFields returns, in sorted order, the keys of mapped whose values
// differ from current. Values are compared by their JSON encoding so
// numbers and lists read back from storage compare equal to fresh ones.
func ChangedFields(current, mapped map[string]any) ([]string, error) {
	var changed []string
	for k, want := range mapped {
		have, ok := current[k]
		if !ok {
			changed = append(changed, k)
			continue
		}
		eq, err := valuesEqual(have, want)
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", k, err)
		}
		if !eq {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func valuesEqual(a, b any) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}
