// Package logging builds the slog loggers used by the daemon and CLI.
//
// Two handlers are available: a human-oriented console handler that lifts the
// component, session, task, and segment fields into a compact header, and a
// JSON handler for machine ingestion. Helpers in this package standardize field
// keys so warnings always carry an event type, a hint, and an impact.
package logging
