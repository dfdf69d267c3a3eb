package domain

import "strings"

// IdentityMode declares how a bundle's identity field is derived.
type IdentityMode string

// Identity modes.
const (
	// IdentityExternalKey stores the upstream external key verbatim.
	IdentityExternalKey IdentityMode = "external-key"

	// IdentityAlias stores a locally computed alias of the external key.
	IdentityAlias IdentityMode = "alias"
)

// ImporterBinding wires one request resource to the response types it
// accepts and the local bundle it writes to.
type ImporterBinding struct {
	// ID is the importer identifier and the key of its SyncCursor.
	ID string

	// Label is a human-readable name.
	Label string

	// ResourceID names the request resource to fetch.
	ResourceID string

	// Params fill the resource's endpoint placeholders.
	Params map[string]string

	// ResponseTypes lists the accepted item response types.
	ResponseTypes []string

	// Bundle is the target local content type.
	Bundle string

	// Identity selects how the bundle's identity field is computed.
	Identity IdentityMode

	// AliasPrefix prefixes the external key when Identity is IdentityAlias.
	AliasPrefix string

	// Enabled excludes the importer from sweeps when false.
	Enabled bool

	// DependsOn names importers declared earlier that a sweep finishes
	// before starting this one, e.g. members before the bills they sponsor.
	DependsOn []string
}

// Accepts returns true if the binding accepts the response type.
func (b ImporterBinding) Accepts(responseType string) bool {
	for _, t := range b.ResponseTypes {
		if t == responseType {
			return true
		}
	}
	return false
}

// IdentityFor computes the local identity key for an external key.
func (b ImporterBinding) IdentityFor(externalKey string) string {
	if b.Identity != IdentityAlias {
		return externalKey
	}
	prefix := b.AliasPrefix
	if prefix == "" {
		prefix = "/" + b.Bundle + "/"
	}
	return prefix + strings.ToLower(externalKey)
}

// Param returns a binding parameter or the fallback.
func (b ImporterBinding) Param(key, fallback string) string {
	if v, ok := b.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}
