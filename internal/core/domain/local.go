package domain

import "time"

// LocalRecord is a content record owned by the local storage collaborator.
type LocalRecord struct {
	// ID is the storage-assigned numeric identifier.
	ID int64

	// Bundle is the content type (e.g., "legislation").
	Bundle string

	// IdentityKey is the external key or its alias. Immutable once set.
	IdentityKey string

	// Fields holds the record's field values, including fields no importer maps.
	Fields map[string]any

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// ChangedAt is when the record was last written.
	ChangedAt time.Time
}

// CloneFields returns a shallow copy of the record's fields.
func (r *LocalRecord) CloneFields() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}
