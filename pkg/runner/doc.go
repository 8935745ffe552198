/*
Package runner spawns check-plugin subprocesses and reports their exit
status, stdout, and timing back to the caller.

# Contract

	Run(ctx, argv, env, stdin, timeout) -> types.CheckResult

argv[0] is the executable path; it is never interpreted by a shell. A
spawn failure or a timeout is never an error return — it is reported as
exit_status 128 with a diagnostic note in Output, so callers (the
scheduler, and its soft/hard state machine) have one uniform result shape
to reason about.

# Concurrency

A Runner bounds the number of plugins in flight with a
golang.org/x/sync/semaphore rather than a fixed pool of goroutines: each
Run call acquires one unit of weight for the lifetime of the child
process and releases it on exit, so callers can submit arbitrarily more
runs than the concurrency limit and have the excess block on Acquire
instead of needing a hand-sized work queue in front of the runner.

# Timeout enforcement

A child that outruns its timeout is sent SIGTERM; if it has not exited
within a short grace period it is sent SIGKILL. Either way the returned
CheckResult carries whatever stdout/stderr was captured up to that point,
plus a trailing note, and exit_status 128.
*/
package runner
