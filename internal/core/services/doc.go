// Package services implements the driving port interfaces.
//
// The Importer drives one binding through fetch, parse and process. The
// Coordinator owns cursors and run history and sequences importers; the
// Scheduler runs periodic sweeps through it. Services only talk to the
// outside world through driven ports.
package services
