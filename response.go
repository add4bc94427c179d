package canopy

import (
	"net/http"

	"github.com/canopy-http/canopy/body"
	"github.com/canopy-http/canopy/incident"
	cpath "github.com/canopy-http/canopy/path"
	"github.com/canopy-http/canopy/query"
)

// Input is the typed record a content callback receives: the assembled
// query value, the header-transform's result, the ingested body value,
// and (for subpath responses) the subpath-transform's result.
type Input[Q, H, B, S any] struct {
	Query   Q
	Headers H
	Body    B
	Subpath S
}

// subpathKind distinguishes a response that matches only its exact
// dispatch path from one that matches any strictly longer path (subject
// to its filter/transform).
type subpathKind uint8

const (
	subpathNone subpathKind = iota
	subpathMatch
)

// ResponseBuilder accumulates a response declaration's query group,
// header transform, body plan, subpath handling, and terminal content
// callback, preserving their types through the chain (spec.md §4.4).
type ResponseBuilder[Q, H, B, S any] struct {
	queryGroup      *query.Group[Q]
	headerTransform func(http.Header) (H, error)
	bodyPlan        body.Plan[B]
	subpathKind     subpathKind
	subpathMatch    func(cpath.Path) (S, bool)
	onIncident      IncidentHandler
	onError         ErrorCallback
}

// NewResponse starts a response declaration with no query items, a
// pass-through header transform, a Prohibited body plan, and no subpath
// handling — the defaults named in spec.md §3's ResponseImpl invariant.
func NewResponse() *ResponseBuilder[struct{}, http.Header, struct{}, struct{}] {
	return &ResponseBuilder[struct{}, http.Header, struct{}, struct{}]{
		queryGroup: query.NewGroup(),
		headerTransform: func(h http.Header) (http.Header, error) {
			return h, nil
		},
		bodyPlan: body.Prohibited(),
	}
}

// Query appends a structured query item, growing the query tuple type
// (see query.Append). Panics if RawQuery was already applied to this
// builder.
func Query[Q, H, B, S, U any](rb *ResponseBuilder[Q, H, B, S], item query.Item[U]) *ResponseBuilder[query.Pair[Q, U], H, B, S] {
	return &ResponseBuilder[query.Pair[Q, U], H, B, S]{
		queryGroup:      query.Append(rb.queryGroup, item),
		headerTransform: rb.headerTransform,
		bodyPlan:        rb.bodyPlan,
		subpathKind:     rb.subpathKind,
		subpathMatch:    rb.subpathMatch,
		onIncident:      rb.onIncident,
		onError:         rb.onError,
	}
}

// QueryMap collapses the query tuple into a single value via f.
func QueryMap[Q, H, B, S, U any](rb *ResponseBuilder[Q, H, B, S], f func(Q) U) *ResponseBuilder[U, H, B, S] {
	return &ResponseBuilder[U, H, B, S]{
		queryGroup:      query.Map(rb.queryGroup, f),
		headerTransform: rb.headerTransform,
		bodyPlan:        rb.bodyPlan,
		subpathKind:     rb.subpathKind,
		subpathMatch:    rb.subpathMatch,
		onIncident:      rb.onIncident,
		onError:         rb.onError,
	}
}

// QueryFlatMap collapses the query tuple into a single value via f,
// additionally allowing f to reject the match.
func QueryFlatMap[Q, H, B, S, U any](rb *ResponseBuilder[Q, H, B, S], f func(Q) query.Result[U]) *ResponseBuilder[U, H, B, S] {
	return &ResponseBuilder[U, H, B, S]{
		queryGroup:      query.FlatMap(rb.queryGroup, f),
		headerTransform: rb.headerTransform,
		bodyPlan:        rb.bodyPlan,
		subpathKind:     rb.subpathKind,
		subpathMatch:    rb.subpathMatch,
		onIncident:      rb.onIncident,
		onError:         rb.onError,
	}
}

// RawQuery switches this builder to raw query mode: the whole (name,
// value) pair list is available to a user transform and always matches.
// Items added by earlier Query calls are discarded, and calling Query
// after RawQuery panics (see query.Append).
func RawQuery[Q, H, B, S any](rb *ResponseBuilder[Q, H, B, S]) *ResponseBuilder[[]query.RawItem, H, B, S] {
	return &ResponseBuilder[[]query.RawItem, H, B, S]{
		queryGroup:      query.NewRawGroup(),
		headerTransform: rb.headerTransform,
		bodyPlan:        rb.bodyPlan,
		subpathKind:     rb.subpathKind,
		subpathMatch:    rb.subpathMatch,
		onIncident:      rb.onIncident,
		onError:         rb.onError,
	}
}

// RequestHeaders replaces the header transform with f, which may reject
// the request with an error (surfaced as InvalidHeaders).
func RequestHeaders[Q, H, B, S, H2 any](rb *ResponseBuilder[Q, H, B, S], f func(http.Header) (H2, error)) *ResponseBuilder[Q, H2, B, S] {
	return &ResponseBuilder[Q, H2, B, S]{
		queryGroup:      rb.queryGroup,
		headerTransform: f,
		bodyPlan:        rb.bodyPlan,
		subpathKind:     rb.subpathKind,
		subpathMatch:    rb.subpathMatch,
		onIncident:      rb.onIncident,
		onError:         rb.onError,
	}
}

// RequestHeadersMap replaces the header transform with an infallible map
// over the raw headers.
func RequestHeadersMap[Q, H, B, S, H2 any](rb *ResponseBuilder[Q, H, B, S], f func(http.Header) H2) *ResponseBuilder[Q, H2, B, S] {
	return RequestHeaders(rb, func(h http.Header) (H2, error) {
		return f(h), nil
	})
}

// RequestBody replaces the body plan, changing the body value type.
func RequestBody[Q, H, B, S, B2 any](rb *ResponseBuilder[Q, H, B, S], plan body.Plan[B2]) *ResponseBuilder[Q, H, B2, S] {
	return &ResponseBuilder[Q, H, B2, S]{
		queryGroup:      rb.queryGroup,
		headerTransform: rb.headerTransform,
		bodyPlan:        plan,
		subpathKind:     rb.subpathKind,
		subpathMatch:    rb.subpathMatch,
		onIncident:      rb.onIncident,
		onError:         rb.onError,
	}
}

// Subpath makes this a subpath response: it matches every request whose
// URL path has this response's dispatch path as a strict prefix, subject
// to filter/transform f. When both an exact-path response and a subpath
// response are declared at the same (method, host, path), the exact-path
// response wins for that path (spec.md §4.4).
func Subpath[Q, H, B, S, S2 any](rb *ResponseBuilder[Q, H, B, S], f func(cpath.Path) query.Result[S2]) *ResponseBuilder[Q, H, B, S2] {
	return &ResponseBuilder[Q, H, B, S2]{
		queryGroup:      rb.queryGroup,
		headerTransform: rb.headerTransform,
		bodyPlan:        rb.bodyPlan,
		subpathKind:     subpathMatch,
		subpathMatch: func(p cpath.Path) (S2, bool) {
			return f(p).Get()
		},
		onIncident: rb.onIncident,
		onError:    rb.onError,
	}
}

// SubpathFilter is Subpath specialized to a boolean predicate over the
// remaining subpath components, passing the subpath itself through
// unchanged when accepted.
func SubpathFilter[Q, H, B, S any](rb *ResponseBuilder[Q, H, B, S], pred func(cpath.Path) bool) *ResponseBuilder[Q, H, B, cpath.Path] {
	return Subpath(rb, func(p cpath.Path) query.Result[cpath.Path] {
		if pred(p) {
			return query.Accepted(p)
		}
		return query.Rejected[cpath.Path]()
	})
}

// OnIncident attaches a per-response incident handler, tried before any
// group-level handler on the chain.
func (rb *ResponseBuilder[Q, H, B, S]) OnIncident(h IncidentHandler) *ResponseBuilder[Q, H, B, S] {
	rb.onIncident = h
	return rb
}

// OnError attaches a per-response error callback.
func (rb *ResponseBuilder[Q, H, B, S]) OnError(cb ErrorCallback) *ResponseBuilder[Q, H, B, S] {
	rb.onError = cb
	return rb
}

// Content terminates the builder: f is invoked with the assembled Input
// once a request has matched this response and cleared header/body/
// subpath processing. The returned Node is attached to a Group via Add.
func Content[Q, H, B, S any](rb *ResponseBuilder[Q, H, B, S], f func(Input[Q, H, B, S]) (*ResponseContent, error)) Node {
	r := &responseImpl{
		queryIsRaw: rb.queryGroup.IsRaw(),
		queryMatch: func(values map[string]string, present map[string]bool, raw []query.RawItem) (any, bool) {
			return rb.queryGroup.Match(values, present, raw)
		},
		headerTransform: func(h http.Header) (any, error) {
			return rb.headerTransform(h)
		},
		makeIngester: func(limit uint64) erasedIngester {
			return erasedIngesterOf(rb.bodyPlan.MergeWith(limit))
		},
		isSubpath: rb.subpathKind == subpathMatch,
		onIncident: rb.onIncident,
		onError:    rb.onError,
		content: func(q, h, b, s any) (*ResponseContent, error) {
			return f(Input[Q, H, B, S]{
				Query:   q.(Q),
				Headers: h.(H),
				Body:    b.(B),
				Subpath: s.(S),
			})
		},
	}
	if rb.subpathKind == subpathMatch {
		r.subpathMatch = func(p cpath.Path) (any, bool) {
			return rb.subpathMatch(p)
		}
	}
	return r
}

// erasedIngester is the type-erased view of a body.Ingester[T] used by the
// pipeline, which does not know T for a given resolved response.
type erasedIngester interface {
	Feed(chunk []byte) *incident.Incident
	End() (any, *incident.Incident)
}

type erasedIngesterAdapter[T any] struct {
	inner body.Ingester[T]
}

func (a erasedIngesterAdapter[T]) Feed(chunk []byte) *incident.Incident {
	return a.inner.Feed(chunk)
}

func (a erasedIngesterAdapter[T]) End() (any, *incident.Incident) {
	v, inc := a.inner.End()
	return v, inc
}

func erasedIngesterOf[T any](p body.Plan[T]) erasedIngester {
	return erasedIngesterAdapter[T]{inner: p.MakeIngester()}
}

// responseImpl is the internal, type-erased representation of a declared
// response, produced by Content and carried through tree resolution and
// dispatch.
type responseImpl struct {
	queryIsRaw      bool
	queryMatch      func(values map[string]string, present map[string]bool, raw []query.RawItem) (any, bool)
	headerTransform func(http.Header) (any, error)
	// makeIngester builds the body ingester for one request, given the
	// cascaded GroupAttributes.BodyLengthLimit in effect for this
	// response (body.DefaultLimit when no ancestor group set one) so a
	// Plan declared without its own explicit limit inherits the
	// enclosing group's, per body.Plan.MergeWith.
	makeIngester func(limit uint64) erasedIngester
	isSubpath    bool
	subpathMatch    func(p cpath.Path) (any, bool)
	onIncident      IncidentHandler
	onError         ErrorCallback
	content         func(q, h, b, s any) (*ResponseContent, error)
}

func (r *responseImpl) resolveInto(ancestor GroupAttributes, counter *int, out *[]resolved) {
	order := *counter
	*counter++
	*out = append(*out, resolved{attrs: ancestor, resp: r, order: order})
}
