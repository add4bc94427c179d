// Package body implements the request-body plans: prohibited, collect,
// stream-reduce, and decode-as-JSON, each carrying a byte-length limit, and
// the Ingester each compiles into.
package body

import (
	"bytes"
	"encoding/json"

	"github.com/canopy-http/canopy/incident"
)

// kind tags which of the four plan shapes a Plan represents.
type kind uint8

const (
	kindProhibited kind = iota
	kindCollect
	kindReduce
	kindJSON
)

// Plan describes how to ingest a request body into a value of type T.
// When a Response declaration does not specify one, the effective plan is
// Prohibited (T = struct{}).
type Plan[T any] struct {
	kind     kind
	hasLimit bool
	limit    uint64

	initial T
	step    func(T, []byte) (T, error)
}

// DefaultLimit is used when a plan never receives a limit from its
// declaration or any enclosing group (see MergeWith).
const DefaultLimit uint64 = 10 << 20 // 10 MiB

// Prohibited declares a plan that rejects any non-zero-length body with
// ContentTooLarge.
func Prohibited() Plan[struct{}] {
	return Plan[struct{}]{kind: kindProhibited, hasLimit: true, limit: 0}
}

// Collect declares a plan that buffers the whole body. limit is optional:
// when omitted, the plan carries no explicit limit of its own and inherits
// whichever default is in effect at the response's declaration site (see
// MergeWith) when it is ingested.
func Collect(limit ...uint64) Plan[[]byte] {
	p := Plan[[]byte]{kind: kindCollect}
	if len(limit) > 0 {
		p.hasLimit, p.limit = true, limit[0]
	}
	return p
}

// Reduce declares a plan that folds each chunk into an accumulator of type
// A, starting from initial. limit is optional, as in Collect.
func Reduce[A any](initial A, step func(A, []byte) (A, error), limit ...uint64) Plan[A] {
	p := Plan[A]{kind: kindReduce, initial: initial, step: step}
	if len(limit) > 0 {
		p.hasLimit, p.limit = true, limit[0]
	}
	return p
}

// JSON declares a plan that buffers the body and then decodes it as JSON
// into a T. limit is optional, as in Collect.
func JSON[T any](limit ...uint64) Plan[T] {
	p := Plan[T]{kind: kindJSON}
	if len(limit) > 0 {
		p.hasLimit, p.limit = true, limit[0]
	}
	return p
}

// MergeWith returns a copy of p that inherits outerDefaultLimit when p
// itself carries no explicit limit (i.e. its constructor was called with no
// limit argument). A response declared with an explicit limit keeps it
// regardless of any enclosing group's body_length_limit — only a plan left
// to inherit is affected by the cascade. See GroupAttributes.BodyLengthLimit
// in the root package.
func (p Plan[T]) MergeWith(outerDefaultLimit uint64) Plan[T] {
	if p.hasLimit {
		return p
	}
	cp := p
	cp.hasLimit = true
	cp.limit = outerDefaultLimit
	return cp
}

// Limit returns the plan's effective byte-length limit.
func (p Plan[T]) Limit() uint64 {
	if !p.hasLimit {
		return DefaultLimit
	}
	return p.limit
}

// Ingester receives zero or more byte chunks followed by an end marker and
// yields either the computed value or an incident.
type Ingester[T any] interface {
	// Feed processes one chunk. A non-nil Incident aborts ingestion
	// immediately (e.g. ContentTooLarge); the caller must not call Feed
	// or End again.
	Feed(chunk []byte) *incident.Incident

	// End finalizes ingestion after the last chunk. A non-nil Incident
	// (e.g. BadRequest on a decode failure) supersedes the value, which
	// is then the zero value of T.
	End() (T, *incident.Incident)
}

// MakeIngester builds the Ingester that p's declaration compiles to.
func (p Plan[T]) MakeIngester() Ingester[T] {
	switch p.kind {
	case kindProhibited:
		return &prohibitedIngester[T]{}
	case kindCollect:
		return &collectIngester[T]{limit: p.Limit()}
	case kindReduce:
		return &reduceIngester[T]{limit: p.Limit(), acc: p.initial, step: p.step}
	case kindJSON:
		return &jsonIngester[T]{limit: p.Limit()}
	}
	panic("body: unknown plan kind")
}

type prohibitedIngester[T any] struct {
	seenAny bool
}

func (i *prohibitedIngester[T]) Feed(chunk []byte) *incident.Incident {
	if len(chunk) > 0 {
		i.seenAny = true
		inc := incident.New(incident.ContentTooLarge)
		return &inc
	}
	return nil
}

func (i *prohibitedIngester[T]) End() (T, *incident.Incident) {
	var zero T
	return zero, nil
}

type collectIngester[T any] struct {
	limit uint64
	buf   bytes.Buffer
}

func (i *collectIngester[T]) Feed(chunk []byte) *incident.Incident {
	if uint64(i.buf.Len()+len(chunk)) > i.limit {
		inc := incident.New(incident.ContentTooLarge)
		return &inc
	}
	i.buf.Write(chunk)
	return nil
}

func (i *collectIngester[T]) End() (T, *incident.Incident) {
	// T is []byte for a Collect-built ingester; this cast is guarded by
	// Collect's return type, which always parameterizes Plan as
	// Plan[[]byte].
	out := append([]byte(nil), i.buf.Bytes()...)
	return any(out).(T), nil
}

type reduceIngester[T any] struct {
	limit      uint64
	cumulative uint64
	acc        T
	step       func(T, []byte) (T, error)
	failed     *incident.Incident
}

func (i *reduceIngester[T]) Feed(chunk []byte) *incident.Incident {
	i.cumulative += uint64(len(chunk))
	if i.cumulative > i.limit {
		inc := incident.New(incident.ContentTooLarge)
		return &inc
	}
	acc, err := i.step(i.acc, chunk)
	if err != nil {
		inc := incident.Wrap(incident.BadRequest, err)
		i.failed = &inc
		return &inc
	}
	i.acc = acc
	return nil
}

func (i *reduceIngester[T]) End() (T, *incident.Incident) {
	if i.failed != nil {
		var zero T
		return zero, i.failed
	}
	return i.acc, nil
}

type jsonIngester[T any] struct {
	limit uint64
	buf   bytes.Buffer
}

func (i *jsonIngester[T]) Feed(chunk []byte) *incident.Incident {
	if uint64(i.buf.Len()+len(chunk)) > i.limit {
		inc := incident.New(incident.ContentTooLarge)
		return &inc
	}
	i.buf.Write(chunk)
	return nil
}

func (i *jsonIngester[T]) End() (T, *incident.Incident) {
	var v T
	if i.buf.Len() == 0 {
		return v, nil
	}
	if err := json.Unmarshal(i.buf.Bytes(), &v); err != nil {
		inc := incident.Wrap(incident.BadRequest, err)
		var zero T
		return zero, &inc
	}
	return v, nil
}
