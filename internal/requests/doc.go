// Package requests knows how to ask the Openleg API for pages.
//
// Each resource is registered once with its endpoint template, paging and
// throttle policy. The registry fills placeholders, applies the incremental
// filter from a SyncCursor, waits on the resource's token bucket and turns
// HTTP failures into domain.TransportError values. Retrying is left to the
// importer.
package requests
