package canopy

import (
	"net/url"

	"github.com/canopy-http/canopy/incident"
	cpath "github.com/canopy-http/canopy/path"
	"github.com/canopy-http/canopy/query"
)

// matchResult is one coarse candidate that survived the structured-query
// sweep, carrying its assembled (still type-erased) query value.
type matchResult struct {
	candidate *resolved
	query     any
}

// matchQuery implements spec.md §4.7: a single pass over the candidate set
// sharing one coarse dispatch key, classifying the URL query once and
// evaluating every candidate's schema against the resulting name->value
// map (plus the raw ordered pair list, for raw-mode candidates).
func matchQuery(candidates []*resolved, rawQuery string) []matchResult {
	values, present, raw := flattenQuery(rawQuery)

	var out []matchResult
	for _, c := range candidates {
		v, ok := c.resp.queryMatch(values, present, raw)
		if !ok {
			continue
		}
		out = append(out, matchResult{candidate: c, query: v})
	}
	return out
}

func flattenQuery(rawQuery string) (values map[string]string, present map[string]bool, raw []query.RawItem) {
	vals, _ := url.ParseQuery(rawQuery)

	values = make(map[string]string, len(vals))
	present = make(map[string]bool, len(vals))

	for name, vs := range vals {
		present[name] = true
		if len(vs) > 0 {
			// last-wins per spec.md §4.7.
			values[name] = vs[len(vs)-1]
		}
	}

	// Rebuild the raw ordered pair list directly from the query string
	// (url.ParseQuery's map loses declaration order) so raw-mode
	// candidates see the pairs in the order they appeared on the wire.
	for _, part := range splitQueryString(rawQuery) {
		name, value := splitQueryPair(part)
		raw = append(raw, query.RawItem{Name: name, Value: value})
	}

	return values, present, raw
}

func splitQueryString(rawQuery string) []string {
	if rawQuery == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(rawQuery); i++ {
		if rawQuery[i] == '&' || rawQuery[i] == ';' {
			out = append(out, rawQuery[start:i])
			start = i + 1
		}
	}
	out = append(out, rawQuery[start:])
	return out
}

func splitQueryPair(part string) (name, value string) {
	for i := 0; i < len(part); i++ {
		if part[i] == '=' {
			name, _ = url.QueryUnescape(part[:i])
			value, _ = url.QueryUnescape(part[i+1:])
			return name, value
		}
	}
	name, _ = url.QueryUnescape(part)
	return name, ""
}

// resolveCandidate runs the full §4.6-§4.7 lookup for one request, folding
// dispatch-index lookup and query matching into the three terminal
// outcomes the pipeline distinguishes.
func resolveCandidate(idx *DispatchIndex, req requestCoordinates) (matchResult, *incident.Incident) {
	coarse, pathExistsForOtherMethod := idx.Lookup(req.endpoint, req.method, req.user, req.host, req.path)
	if len(coarse) == 0 {
		if pathExistsForOtherMethod {
			return matchResult{}, incidentPtr(incident.New(incident.MethodNotAllowed))
		}
		return matchResult{}, incidentPtr(incident.New(incident.ResponseNotFound))
	}

	// A subpath candidate whose filter/transform rejects the remainder of
	// the request path is excluded here, before query matching.
	accepted := make([]*resolved, 0, len(coarse))
	for _, c := range coarse {
		if c.resp.isSubpath {
			if _, ok := c.resp.subpathMatch(req.path.DropFirst(c.attrs.Path.Len())); !ok {
				continue
			}
		}
		accepted = append(accepted, c)
	}

	matched := matchQuery(accepted, req.rawQuery)
	if len(matched) == 0 {
		return matchResult{}, incidentPtr(incident.New(incident.ResponseNotFound))
	}
	if len(matched) > 1 {
		return matchResult{}, incidentPtr(incident.New(incident.AmbiguousRequest))
	}
	return matched[0], nil
}

func incidentPtr(i incident.Incident) *incident.Incident {
	return &i
}

// requestCoordinates is the subset of an inbound request the dispatcher
// needs to perform a lookup, independent of net/http so the matcher can be
// exercised without a live connection.
type requestCoordinates struct {
	endpoint Endpoint
	method   string
	user     string
	host     string
	path     cpath.Path
	rawQuery string
}
