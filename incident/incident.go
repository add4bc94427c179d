// Package incident defines the recoverable, per-request conditions that the
// dispatch pipeline can raise and the default HTTP status each maps to.
package incident

import "fmt"

// Kind identifies a recoverable per-request condition.
type Kind uint8

const (
	// InvalidHeaders is raised when a response's header transform returns
	// an error.
	InvalidHeaders Kind = iota

	// ContentTooLarge is raised when a request body exceeds the active
	// body plan's length limit.
	ContentTooLarge

	// BadRequest is raised when a request body fails to decode against
	// its body plan (e.g. malformed JSON).
	BadRequest

	// AmbiguousRequest is raised when two or more resolved responses
	// match a request's coarse dispatch key and its structured query.
	AmbiguousRequest

	// ResponseNotFound is raised when no resolved response matches a
	// request.
	ResponseNotFound

	// MethodNotAllowed is raised when a path matches but no response is
	// declared for the request method.
	MethodNotAllowed

	// ProcessingFailed is raised when a response's content callback
	// returns a non-nil error. Unlike the other kinds it is not a
	// recoverable dispatch condition: it always defaults to 500, and the
	// pipeline additionally invokes every error callback on the chain
	// before walking the incident handler chain with it.
	ProcessingFailed
)

// DefaultStatus is the HTTP status code sent when no incident handler along
// the chain produces a response content for the incident.
func (k Kind) DefaultStatus() int {
	switch k {
	case InvalidHeaders:
		return 400
	case ContentTooLarge:
		return 413
	case BadRequest:
		return 400
	case AmbiguousRequest:
		return 400
	case ResponseNotFound:
		return 404
	case MethodNotAllowed:
		return 405
	case ProcessingFailed:
		return 500
	}
	return 500
}

// String returns a human-readable name for the kind, used by the logger.
func (k Kind) String() string {
	switch k {
	case InvalidHeaders:
		return "InvalidHeaders"
	case ContentTooLarge:
		return "ContentTooLarge"
	case BadRequest:
		return "BadRequest"
	case AmbiguousRequest:
		return "AmbiguousRequest"
	case ResponseNotFound:
		return "ResponseNotFound"
	case MethodNotAllowed:
		return "MethodNotAllowed"
	case ProcessingFailed:
		return "ProcessingFailed"
	}
	return "Unknown"
}

// Incident is a concrete occurrence of a Kind, optionally carrying the
// underlying error that triggered it (e.g. a header transform's error, or a
// JSON decode failure).
type Incident struct {
	Kind Kind
	Err  error
}

// New returns an Incident of the given kind with no underlying error.
func New(kind Kind) Incident {
	return Incident{Kind: kind}
}

// Wrap returns an Incident of the given kind carrying err.
func Wrap(kind Kind, err error) Incident {
	return Incident{Kind: kind, Err: err}
}

// Error implements the error interface so an Incident can be returned or
// logged like any other error.
func (i Incident) Error() string {
	if i.Err != nil {
		return fmt.Sprintf("%s: %v", i.Kind, i.Err)
	}
	return i.Kind.String()
}

// DefaultStatus is a convenience alias for i.Kind.DefaultStatus().
func (i Incident) DefaultStatus() int {
	return i.Kind.DefaultStatus()
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (i Incident) Unwrap() error {
	return i.Err
}

// ProcessingError wraps a failure raised by a response's content callback.
// It is routed through the same handler chain as an Incident, but it is not
// itself an Incident: it always defaults to HTTP 500 and additionally
// invokes every error callback on the chain.
type ProcessingError struct {
	Err error
}

// Error implements the error interface.
func (p ProcessingError) Error() string {
	return fmt.Sprintf("processing failed: %v", p.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (p ProcessingError) Unwrap() error {
	return p.Err
}

// DefaultStatus is always 500 for a processing failure.
func (ProcessingError) DefaultStatus() int {
	return 500
}

// BuildError is a fatal, build-time tree-resolution error. NewServer
// returns it before any socket is bound, and it is never routed through an
// incident handler.
type BuildError struct {
	Message string
}

// Error implements the error interface.
func (b BuildError) Error() string {
	return "canopy: " + b.Message
}
