/*
Package log provides structured logging for sentryd using zerolog.

It wraps zerolog to give every component a logger carrying its own fields
(component name, endpoint name, host/service pair, zone) so that log lines
from the scheduler, the cluster router, and a single endpoint's read loop
can all be filtered independently without threading a logger through every
call site by hand.

# Usage

Initializing the global logger once at startup:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

Deriving a component logger:

	logger := log.WithComponent("cluster-router")
	logger.Info().Str("peer", peerName).Msg("relayed check result")

Deriving a per-checkable logger:

	logger := log.WithService(host.Name, svc.Name)
	logger.Warn().Int("attempt", svc.CurrentAttempt).Msg("soft state change")

# Notes

JSONOutput controls whether Init configures a JSON sink or a
zerolog.ConsoleWriter for human-readable local development. All derived
loggers share the same global level set by Init; there is no per-component
level override, matching the corpus's convention of one process-wide level.
*/
package log
