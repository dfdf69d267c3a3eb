// Package domain defines the core types of the Openleg sync pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ResourceDescriptor: A remote resource with paging and throttle policy
//   - RawPage: One HTTP response body, never persisted
//   - NormalizedRecord: A parsed bill, calendar, agenda or member
//   - ImporterBinding: A resource bound to response types and a bundle
//   - SyncCursor: Per-importer progress marker
//   - LocalRecord: A record in local storage
//   - RunSummary: The report of one importer run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
package domain
