// Package events publishes owner-facing pipeline events onto NATS.
//
// Subjects are formed as <prefix>.<kind>, for example narrator.word.completed.
// Payloads are JSON-encoded Event values. When no NATS URL is configured the
// package hands out a no-op publisher so callers never branch on it.
package events
