// Package daemon coordinates the long-running narrator process.
//
// It wires configuration, the task and session store, the synthesis pipeline,
// and the word queue processor into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon serves the JSON API and
// the merged artifacts over HTTP, exposes queue maintenance helpers, and
// reports preflight health alongside workflow status.
//
// Keep orchestration logic here: synthesis, merging and queue processing live
// in their own packages while the daemon focuses on startup, shutdown, and the
// HTTP surface.
package daemon
