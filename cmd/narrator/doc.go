// Package main implements the narrator command line.
//
// "narrator daemon" runs the synthesis daemon in the foreground. The other
// commands talk to a running daemon over its HTTP API, except the queue
// maintenance commands that operate on the task store directly and the
// offline helpers (config, check, segment preview).
package main
