package driven

import (
	"context"
	"net/http"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// RequestRegistry knows how to ask a resource for its pages.
// It throttles outbound calls but never retries them.
type RequestRegistry interface {
	// Descriptor returns the registered descriptor for a resource.
	Descriptor(resourceID string) (domain.ResourceDescriptor, error)

	// Validate checks that params resolve every required placeholder.
	Validate(resourceID string, params map[string]string) error

	// BuildRequest builds the first page request for a run.
	BuildRequest(ctx context.Context, resourceID string, params map[string]string, cursor domain.SyncCursor, mode domain.RunMode) (*http.Request, error)

	// NextPage builds the request following page, or returns nil when
	// the resource is exhausted.
	NextPage(ctx context.Context, page *domain.RawPage) (*http.Request, error)

	// Fetch executes one request under the resource's throttle.
	Fetch(ctx context.Context, resourceID string, req *http.Request) (*domain.RawPage, error)
}

// ResponseRegistry normalises payloads by their responseType discriminator.
type ResponseRegistry interface {
	// Parse normalises one item payload of the given response type.
	Parse(responseType string, raw []byte) (domain.NormalizedRecord, error)

	// Items splits a page envelope into item payloads.
	Items(page *domain.RawPage) ([]domain.RawItem, error)

	// Has returns true if a parser is registered for the response type.
	Has(responseType string) bool
}

// RecordProcessor reconciles normalised records into local storage.
type RecordProcessor interface {
	// Import looks up the local record by identity key and reconciles it.
	Import(ctx context.Context, bundle, identityKey string, record domain.NormalizedRecord) (domain.Outcome, error)

	// Has returns true if a processor is registered for the bundle.
	Has(bundle string) bool
}
