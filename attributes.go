package canopy

import (
	"time"

	cpath "github.com/canopy-http/canopy/path"
	"github.com/canopy-http/canopy/incident"
)

// Endpoint is a bound (address, port) pair on which the server listens.
type Endpoint struct {
	Address string
	Port    uint16
}

// ProtocolVersion selects HTTP/1.1 or HTTP/2 framing for an endpoint.
type ProtocolVersion uint8

const (
	// H1_1 serves plain HTTP/1.1 (or h2c when paired with H2 elsewhere).
	H1_1 ProtocolVersion = iota
	// H2 serves HTTP/2, with or without TLS (h2c when TLS is unset).
	H2
)

// TLSConfig carries the certificate material for an endpoint. When
// ACMEEnabled is true, the transport obtains certificates automatically
// and CertChain/PrivateKey are not used (see internal/transport).
type TLSConfig struct {
	CertChain      string
	PrivateKey     string
	ALPNProtocols  []string
	ACMEEnabled    bool
	ACMEHostPolicy []string
}

// ConnectionConfig carries an endpoint's per-connection limits. IdleTimeout
// is applied to the endpoint's server; RequestLimit is carried but not
// enforced, so a connection is never closed for its request count.
type ConnectionConfig struct {
	IdleTimeout  time.Duration
	RequestLimit uint32
}

// HTTPConfig is the per-endpoint protocol configuration.
type HTTPConfig struct {
	Version    ProtocolVersion
	TLS        *TLSConfig
	Connection ConnectionConfig
}

// IncidentHandler attempts to turn an incident into a response. Returning
// nil defers to the next handler on the chain (or the incident's default
// status if none remain).
type IncidentHandler func(incident.Incident, *Ctx) *ResponseContent

// ErrorCallback observes a processing failure. It never produces a
// response; it is purely for logging / telemetry side effects.
type ErrorCallback func(error, *Ctx)

// stringSet is a small set helper used throughout the cascade algebra.
type stringSet map[string]struct{}

func newStringSet(items ...string) stringSet {
	s := make(stringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s stringSet) union(o stringSet) stringSet {
	out := make(stringSet, len(s)+len(o))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range o {
		out[k] = struct{}{}
	}
	return out
}

func (s stringSet) contains(v string) bool {
	_, ok := s[v]
	return ok
}

func (s stringSet) slice() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// optionalSet represents the `Option<Set<string>>` fields of
// GroupAttributes (http_methods, users): isAny means "any" (the universal
// set); otherwise set is a concrete restriction.
type optionalSet struct {
	set   stringSet
	isAny bool
}

func anySet() optionalSet {
	return optionalSet{isAny: true}
}

func restrictedSet(items ...string) optionalSet {
	return optionalSet{set: newStringSet(items...)}
}

// overlayIntersect implements the narrowing cascade rule for
// http_methods / users: a descendant can only narrow its ancestor's set.
// An absent (isAny) side is treated as the universal set.
func overlayIntersect(parent, child optionalSet) optionalSet {
	if parent.isAny {
		return child
	}
	if child.isAny {
		return parent
	}
	out := make(stringSet)
	for k := range child.set {
		if _, ok := parent.set[k]; ok {
			out[k] = struct{}{}
		}
	}
	return optionalSet{set: out}
}

func (o optionalSet) contains(v string) bool {
	if o.isAny {
		return true
	}
	_, ok := o.set[v]
	return ok
}

// GroupAttributes is the cascadable state collected along one tree branch
// during resolution. See spec.md §3 for the full field-by-field cascade
// semantics.
type GroupAttributes struct {
	Endpoints map[Endpoint]HTTPConfig

	Hosts              stringSet
	HostAliases        stringSet
	OptionalSubdomains stringSet

	Methods optionalSet
	Users   optionalSet

	Path cpath.Path

	BodyLengthLimit *uint64

	// MinifyTypes is a supplemented cascadable attribute (SPEC_FULL.md
	// §3): content types eligible for the internal/minify post-
	// processor. Child overrides parent, like BodyLengthLimit.
	MinifyTypes *stringSet

	IncidentHandler IncidentHandler
	ErrorCallback   ErrorCallback
}

// emptyAttributes is the identity element for cascading: every field is
// either empty/any or nil, so overlaying it onto anything returns that
// thing unchanged.
func emptyAttributes() GroupAttributes {
	return GroupAttributes{
		Endpoints:          map[Endpoint]HTTPConfig{},
		Hosts:              stringSet{},
		HostAliases:        stringSet{},
		OptionalSubdomains: stringSet{},
		Methods:            anySet(),
		Users:              anySet(),
		Path:               cpath.Empty,
	}
}

// overlay combines an ancestor's resolved attributes with one node's own
// partial attributes, applying the §3 per-field cascade rule. This is the
// only merge operation used while walking down a branch during resolve().
func overlay(parent, node GroupAttributes) GroupAttributes {
	out := GroupAttributes{}

	// endpoints accumulate rather than narrow: a descendant group can add
	// endpoints alongside its ancestor's, with its own config winning on a
	// shared (address, port) (spec.md §4.5's accumulate semantics for
	// Group.Endpoint).
	out.Endpoints = accumulateEndpoints(parent.Endpoints, node.Endpoints)

	out.Hosts = parent.Hosts.union(node.Hosts)
	out.HostAliases = parent.HostAliases.union(node.HostAliases)
	out.OptionalSubdomains = parent.OptionalSubdomains.union(node.OptionalSubdomains)

	out.Methods = overlayIntersect(parent.Methods, node.Methods)
	out.Users = overlayIntersect(parent.Users, node.Users)

	out.Path = cpath.Concat(parent.Path, node.Path)

	out.BodyLengthLimit = node.BodyLengthLimit
	if out.BodyLengthLimit == nil {
		out.BodyLengthLimit = parent.BodyLengthLimit
	}

	out.MinifyTypes = node.MinifyTypes
	if out.MinifyTypes == nil {
		out.MinifyTypes = parent.MinifyTypes
	}

	out.IncidentHandler = node.IncidentHandler
	if out.IncidentHandler == nil {
		out.IncidentHandler = parent.IncidentHandler
	}

	out.ErrorCallback = node.ErrorCallback
	if out.ErrorCallback == nil {
		out.ErrorCallback = parent.ErrorCallback
	}

	return out
}

// accumulateEndpoints merges two endpoint maps by key, child wins per key.
// overlay uses it for the Endpoints field, so a descendant's endpoints
// widen its ancestor's set rather than narrowing or replacing it.
func accumulateEndpoints(parent, child map[Endpoint]HTTPConfig) map[Endpoint]HTTPConfig {
	out := make(map[Endpoint]HTTPConfig, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}
