// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - RequestRegistry: Builds, throttles and executes requests per resource
//   - ResponseRegistry: Splits pages and parses items by discriminator
//   - RecordProcessor: Reconciles normalised records into local storage
//   - RecordStore: Local content records
//   - CursorStore: Per-importer sync cursors
//   - RunStore: Run summary history
//   - SchedulerStore: Scheduled task state
//   - ConfigStore: Application configuration
//   - HTTPDoer: Outbound HTTP
//   - Clock: Time source
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
