package canopy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	bodypkg "github.com/canopy-http/canopy/body"
	"github.com/canopy-http/canopy/incident"
	cpath "github.com/canopy-http/canopy/path"
)

// Ctx is the per-request context handed to incident handlers and error
// callbacks. It is pooled (see ctxPool) the way the teacher pools its own
// request context, since one is allocated per inbound request.
type Ctx struct {
	context.Context

	Request        *http.Request
	ResponseWriter http.ResponseWriter

	Endpoint Endpoint
	Path     cpath.Path
	Subpath  cpath.Path
}

var ctxPool = sync.Pool{
	New: func() any { return &Ctx{} },
}

func acquireCtx() *Ctx {
	return ctxPool.Get().(*Ctx)
}

func releaseCtx(c *Ctx) {
	c.Context = nil
	c.Request = nil
	c.ResponseWriter = nil
	c.Endpoint = Endpoint{}
	c.Path = cpath.Empty
	c.Subpath = cpath.Empty
	ctxPool.Put(c)
}

// runIncidentChain tries the per-response handler, then the nearest
// cascaded group handler (attrs.IncidentHandler already reflects the
// closest ancestor's handler per the overlay cascade — see attributes.go),
// falling back to the incident's default status (spec.md §4.9).
func runIncidentChain(inc incident.Incident, attrs GroupAttributes, respHandler IncidentHandler, ctx *Ctx) *ResponseContent {
	if respHandler != nil {
		if c := respHandler(inc, ctx); c != nil {
			if c.Status == 0 {
				c.Status = inc.DefaultStatus()
			}
			return c
		}
	}
	if attrs.IncidentHandler != nil {
		if c := attrs.IncidentHandler(inc, ctx); c != nil {
			if c.Status == 0 {
				c.Status = inc.DefaultStatus()
			}
			return c
		}
	}
	return Status(inc.DefaultStatus())
}

func runErrorCallbacks(err error, attrs GroupAttributes, respCallback ErrorCallback, ctx *Ctx) {
	if respCallback != nil {
		respCallback(err, ctx)
	}
	if attrs.ErrorCallback != nil {
		attrs.ErrorCallback(err, ctx)
	}
}

// coordinatesOf extracts the dispatcher's lookup coordinates from a
// net/http request. User is the URL userinfo component, matching spec.md
// §4.5's GroupAttributes.Users field (this is not HTTP Basic Auth).
func coordinatesOf(ep Endpoint, r *http.Request) requestCoordinates {
	user := ""
	if r.URL.User != nil {
		user = r.URL.User.Username()
	}
	return requestCoordinates{
		endpoint: ep,
		method:   r.Method,
		user:     user,
		host:     r.Host,
		path:     cpath.FromRaw(r.URL.Path),
		rawQuery: r.URL.RawQuery,
	}
}

// Process runs the full request pipeline (spec.md §4.8) against idx for
// one inbound request bound to ep, returning the ResponseContent to emit.
// A panic in the content callback is recovered and handled like a returned
// error. Process returns nil only when the content callback itself returns
// a nil content with a nil error.
func Process(idx *DispatchIndex, ep Endpoint, w http.ResponseWriter, r *http.Request) *ResponseContent {
	if primary, redirect := idx.ResolveHost(r.Host); redirect {
		return redirectContent(primary, r)
	}

	ctx := acquireCtx()
	defer releaseCtx(ctx)
	ctx.Context = r.Context()
	ctx.Request = r
	ctx.ResponseWriter = w
	ctx.Endpoint = ep
	ctx.Path = cpath.FromRaw(r.URL.Path)

	coords := coordinatesOf(ep, r)
	match, inc := resolveCandidate(idx, coords)
	if inc != nil {
		return runIncidentChain(*inc, fallbackAttributes(idx, match), nil, ctx)
	}

	candidate := match.candidate
	idx.RecordHit(candidate.resp)

	headerVal, err := candidate.resp.headerTransform(r.Header)
	if err != nil {
		return runIncidentChain(
			incident.Wrap(incident.InvalidHeaders, err),
			candidate.attrs, candidate.resp.onIncident, ctx,
		)
	}

	bodyVal, bodyInc := ingestBody(candidate, r.Body)
	if bodyInc != nil {
		return runIncidentChain(*bodyInc, candidate.attrs, candidate.resp.onIncident, ctx)
	}

	// A non-subpath response's subpath type is always struct{} (only
	// Subpath changes it).
	var subpathVal any = struct{}{}
	if candidate.resp.isSubpath {
		remainder := coords.path.DropFirst(candidate.attrs.Path.Len())
		ctx.Subpath = remainder
		// resolveCandidate only ever hands back a subpath candidate whose
		// filter/transform already accepted this request's remainder, so
		// this second evaluation cannot reject.
		v, _ := candidate.resp.subpathMatch(remainder)
		subpathVal = v
	}

	content, procErr := func() (c *ResponseContent, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("content callback panicked: %v", p)
			}
		}()
		return candidate.resp.content(match.query, headerVal, bodyVal, subpathVal)
	}()
	if procErr != nil {
		wrapped := incident.ProcessingError{Err: procErr}
		runErrorCallbacks(wrapped, candidate.attrs, candidate.resp.onError, ctx)
		return runIncidentChain(
			incident.Wrap(incident.ProcessingFailed, wrapped),
			candidate.attrs, candidate.resp.onIncident, ctx,
		)
	}

	if content != nil {
		content.minifyTypes = candidate.attrs.MinifyTypes
	}
	return content
}

// fallbackAttributes answers AmbiguousRequest, ResponseNotFound, and
// MethodNotAllowed, none of which can be attributed to a single resolved
// response (not-found and method-not-allowed by definition; ambiguity because tie-breaking
// by declaration order is explicitly disallowed — spec.md §4.7), by
// falling back to the index's root incident-handler chain.
func fallbackAttributes(idx *DispatchIndex, match matchResult) GroupAttributes {
	return idx.rootAttrs
}

func ingestBody(candidate *resolved, body io.ReadCloser) (any, *incident.Incident) {
	defer body.Close()

	limit := bodypkg.DefaultLimit
	if candidate.attrs.BodyLengthLimit != nil {
		limit = *candidate.attrs.BodyLengthLimit
	}
	ingester := candidate.resp.makeIngester(limit)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if inc := ingester.Feed(buf[:n]); inc != nil {
				return nil, inc
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, incidentPtr(incident.Wrap(incident.BadRequest, err))
		}
	}

	v, inc := ingester.End()
	if inc != nil {
		return nil, inc
	}
	return v, nil
}

func redirectContent(primaryHost string, r *http.Request) *ResponseContent {
	target := *r.URL
	target.Host = primaryHost
	if target.Scheme == "" {
		target.Scheme = "https"
	}
	c := Status(http.StatusMovedPermanently)
	c.Header = http.Header{"Location": []string{target.String()}}
	return c
}
