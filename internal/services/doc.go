// Package services defines the error taxonomy and context helpers shared by
// the synthesis, merge, and queue components.
//
// Sentinel markers classify failures (transient, empty result, client
// rejected, missing segments, exhausted) so retry policy, HTTP status mapping,
// and operator hints stay uniform. Context helpers stamp session, task, owner,
// and request identifiers for logging.
package services
