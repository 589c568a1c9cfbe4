// Package api defines the JSON payloads exchanged between the narrator daemon
// and its clients, plus a small HTTP client used by the CLI.
//
// The daemon's HTTP server encodes these types and the CLI decodes them, so
// both sides stay in sync without sharing internal store structs directly.
package api
