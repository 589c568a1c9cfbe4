// Package workflow drains the word clip queue.
//
// The Manager runs one supervised loop. Each cycle reclaims tasks whose
// heartbeat went stale, claims a batch of pending tasks in creation order, and
// synthesizes each clip sequentially with a short spacing between tasks. A
// heartbeat goroutine keeps the in-flight task's row fresh so a crashed daemon's
// work is recognised and reset on the next sweep.
//
// Success flips the owner's audio flag and deletes the task row. Failure goes
// through queue.FailWordTask; a task that reaches its attempt ceiling is
// surfaced as a QueueExhaustedError, recorded on the owner record, and
// announced via notifications and NATS events.
//
// Stop stops claiming, lets the in-flight task finish within the configured
// drain timeout, and hands claimed-but-unstarted tasks back to Pending without
// charging an attempt.
package workflow
