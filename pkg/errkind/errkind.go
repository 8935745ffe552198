// Package errkind classifies sentryd's own errors into a small closed set
// so callers can decide retry-vs-fatal without string-matching messages.
//
// The shape (a closed Kind enumeration plus a sentinel wrapper type that
// carries one alongside the wrapped error) mirrors a common error
// classifier pattern, adapted from classifying network syscall errors to
// classifying this engine's own error sources.
package errkind

import "errors"

// Kind is one of the five error categories this engine distinguishes.
type Kind int

const (
	// Unknown is the zero value: an error nothing has classified yet.
	Unknown Kind = iota
	// Config marks a malformed or invalid configuration file.
	Config
	// TransientIO marks a retryable I/O failure (socket reset, disk full).
	TransientIO
	// Protocol marks a cluster wire-format violation (bad netstring, bad JSON-RPC).
	Protocol
	// PluginFailure marks a check plugin that could not be started or timed out.
	PluginFailure
	// Corruption marks on-disk state that failed to parse (replay log, state.dat).
	Corruption
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case TransientIO:
		return "transient_io"
	case Protocol:
		return "protocol"
	case PluginFailure:
		return "plugin_failure"
	case Corruption:
		return "corruption"
	default:
		return "unknown"
	}
}

// kindError pairs an error with the Kind it was classified as.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Wrap annotates err with kind. Wrap(nil, kind) returns nil.
func Wrap(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Of returns the Kind attached to err via Wrap, or Unknown if none is.
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Is reports whether err was wrapped with the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
