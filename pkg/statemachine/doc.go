/*
Package statemachine implements the soft/hard state machine that
turns one plugin CheckResult into a Service state transition.

Apply is the entire package surface: a pure function, no I/O, so it can be
unit-tested exhaustively and reused verbatim by both the scheduler (for
locally-executed checks) and the cluster router (for inbound check-result
messages applying a peer's result).

# Transition table

	new == OK:                      type := Hard, attempt := 1
	non-OK, attempt >= max:          type := Hard, attempt := 1
	non-OK, type == Soft or old==OK: type := Soft, attempt++
	non-OK, already Hard non-OK:     type := Hard, attempt := 1

The last branch is intentionally asymmetric with the others — see
DESIGN.md for why it is kept exactly as-is rather than normalized.
*/
package statemachine
