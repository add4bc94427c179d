package canopy

import (
	"strings"
	"sync/atomic"

	cpath "github.com/canopy-http/canopy/path"
	"github.com/cespare/xxhash/v2"
)

const wildcardKey = "*"

// level is one generic tier of the multi-level radix-style index
// described in spec.md §4.6 (endpoint → method → user → host). A concrete
// key and the wildcard ("*", meaning ANY) are always looked up together
// and unioned, per the "wildcards are looked up in addition to the
// request's concrete coordinates" rule.
type level[V any] struct {
	buckets map[string]V
}

func newLevel[V any]() *level[V] {
	return &level[V]{buckets: map[string]V{}}
}

// getOrCreate returns the bucket for key, creating it with zero via new
// if absent.
func (l *level[V]) getOrCreate(key string, zero func() V) V {
	if v, ok := l.buckets[key]; ok {
		return v
	}
	v := zero()
	l.buckets[key] = v
	return v
}

// match returns the concrete bucket for key (if any) and the wildcard
// bucket (if any), unioned.
func (l *level[V]) match(key string) []V {
	var out []V
	if v, ok := l.buckets[key]; ok {
		out = append(out, v)
	}
	if v, ok := l.buckets[wildcardKey]; ok && key != wildcardKey {
		out = append(out, v)
	}
	return out
}

// all returns every bucket regardless of key, used only to distinguish
// ResponseNotFound from MethodNotAllowed (spec.md §4.6).
func (l *level[V]) all() []V {
	out := make([]V, 0, len(l.buckets))
	for _, v := range l.buckets {
		out = append(out, v)
	}
	return out
}

type userIndex = level[*hostIndex]
type hostIndex = level[*trieNode]
type methodIndex = level[*userIndex]

// trieNode is one node of the per-(endpoint,method,user,host) path trie.
// It carries exact-match candidates declared precisely at this path and
// subpath candidates declared here (matching any strictly longer path).
// Child lookup is by xxhash of the component bytes bucketed alongside a
// direct string compare, keeping per-node child search close to O(1) even
// for wide fan-out trees (adapted from the teacher's asset-hash use in
// response.go, repurposed here as a trie bucket key rather than an ETag).
type trieNode struct {
	children map[uint64][]*trieChild
	exact    []*resolved
	subpath  []*resolved
}

type trieChild struct {
	component string
	node      *trieNode
}

func newTrieNode() *trieNode {
	return &trieNode{children: map[uint64][]*trieChild{}}
}

func componentHash(c string) uint64 {
	return xxhash.Sum64String(c)
}

func (n *trieNode) child(component string, create bool) *trieNode {
	h := componentHash(component)
	for _, c := range n.children[h] {
		if c.component == component {
			return c.node
		}
	}
	if !create {
		return nil
	}
	child := &trieChild{component: component, node: newTrieNode()}
	n.children[h] = append(n.children[h], child)
	return child.node
}

func (n *trieNode) insert(p cpath.Path, r *resolved) {
	cur := n
	for i := 0; i < p.Len(); i++ {
		cur = cur.child(p.Component(i), true)
	}
	if r.resp.isSubpath {
		cur.subpath = append(cur.subpath, r)
	} else {
		cur.exact = append(cur.exact, r)
	}
}

// dispatchPath walks the trie against the request path, returning the
// exact candidates if the full path matches a node with exact entries,
// otherwise the union of every ancestor's subpath candidates (spec.md
// §4.4's ordering rule: exact wins for its own path, subpath serves
// strictly longer paths only).
func dispatchPath(n *trieNode, p cpath.Path) []*resolved {
	cur := n
	var subpathCandidates []*resolved

	for i := 0; i < p.Len(); i++ {
		subpathCandidates = append(subpathCandidates, cur.subpath...)
		next := cur.child(p.Component(i), false)
		if next == nil {
			return subpathCandidates
		}
		cur = next
	}

	if len(cur.exact) > 0 {
		return cur.exact
	}
	return subpathCandidates
}

// DispatchIndex is the immutable, multi-level dispatch structure built
// once from a resolved response list. It is shared by reference across
// all workers with no lock (spec.md §5).
type DispatchIndex struct {
	endpoints map[Endpoint]*methodIndex

	primaryHosts       []string
	hostAliases        map[string]struct{}
	optionalSubdomains []string

	// rootAttrs is the resolved root group's attributes, used as the
	// incident-handler chain of last resort when an incident (e.g.
	// ResponseNotFound) cannot be attributed to any single resolved
	// response.
	rootAttrs GroupAttributes

	hits map[*responseImpl]*atomic.Int64
}

// BuildDispatchIndex flattens resolvedList (as produced by Resolve) into a
// DispatchIndex. configuredEndpoints lists every endpoint the server will
// actually bind; responses that declare no endpoint of their own are
// registered under all of them.
func BuildDispatchIndex(resolvedList []resolved, configuredEndpoints []Endpoint, rootAttrs GroupAttributes) *DispatchIndex {
	idx := &DispatchIndex{
		endpoints:   map[Endpoint]*methodIndex{},
		hostAliases: map[string]struct{}{},
		rootAttrs:   rootAttrs,
		hits:        map[*responseImpl]*atomic.Int64{},
	}

	seenHost := map[string]struct{}{}
	seenAlias := map[string]struct{}{}
	seenSub := map[string]struct{}{}

	for _, r := range resolvedList {
		idx.hits[r.resp] = new(atomic.Int64)

		for h := range r.attrs.Hosts {
			if _, ok := seenHost[h]; !ok {
				seenHost[h] = struct{}{}
				idx.primaryHosts = append(idx.primaryHosts, h)
			}
		}
		for a := range r.attrs.HostAliases {
			if _, ok := seenAlias[a]; !ok {
				seenAlias[a] = struct{}{}
				idx.hostAliases[a] = struct{}{}
			}
		}
		for s := range r.attrs.OptionalSubdomains {
			if _, ok := seenSub[s]; !ok {
				seenSub[s] = struct{}{}
				idx.optionalSubdomains = append(idx.optionalSubdomains, s)
			}
		}

		targets := endpointKeys(r.attrs.Endpoints)
		if len(targets) == 0 {
			targets = configuredEndpoints
		}

		for _, ep := range targets {
			mi, ok := idx.endpoints[ep]
			if !ok {
				mi = newLevel[*userIndex]()
				idx.endpoints[ep] = mi
			}

			for _, methodKey := range setKeys(r.attrs.Methods) {
				ui := mi.getOrCreate(methodKey, func() *userIndex { return newLevel[*hostIndex]() })

				for _, userKey := range setKeys(r.attrs.Users) {
					hi := ui.getOrCreate(userKey, func() *hostIndex { return newLevel[*trieNode]() })

					for _, hostKey := range hostSetKeys(r.attrs.Hosts) {
						trie := hi.getOrCreate(hostKey, newTrieNode)
						trie.insert(r.attrs.Path, &r)
					}
				}
			}
		}
	}

	return idx
}

func endpointKeys(m map[Endpoint]HTTPConfig) []Endpoint {
	out := make([]Endpoint, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// setKeys returns the concrete members of an optionalSet, or the
// wildcard sentinel alone when the set is ANY.
func setKeys(s optionalSet) []string {
	if s.isAny {
		return []string{wildcardKey}
	}
	out := make([]string, 0, len(s.set))
	for k := range s.set {
		out = append(out, k)
	}
	if len(out) == 0 {
		// An explicitly empty (non-ANY) restriction matches nothing.
		return nil
	}
	return out
}

// hostSetKeys is like setKeys but for the plain stringSet used by Hosts:
// an empty set means "any host" (the wildcard sentinel), matching
// spec.md §4.5's "empty host set" wildcard-sentinel rule.
func hostSetKeys(s stringSet) []string {
	if len(s) == 0 {
		return []string{wildcardKey}
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// Lookup returns the coarse candidate set for a request, plus whether the
// path matched for some other method (used to emit MethodNotAllowed
// instead of ResponseNotFound).
func (d *DispatchIndex) Lookup(ep Endpoint, method, user, host string, p cpath.Path) (candidates []*resolved, pathExistsForOtherMethod bool) {
	mi, ok := d.endpoints[ep]
	if !ok {
		return nil, false
	}

	for _, ui := range mi.match(method) {
		for _, hi := range ui.match(user) {
			for _, trie := range hi.match(host) {
				candidates = append(candidates, dispatchPath(trie, p)...)
			}
		}
	}

	if len(candidates) > 0 {
		return candidates, false
	}

	for _, ui := range mi.all() {
		for _, hi := range ui.match(user) {
			for _, trie := range hi.match(host) {
				if len(dispatchPath(trie, p)) > 0 {
					return nil, true
				}
			}
		}
	}

	return nil, false
}

// ResolveHost reports whether host is a registered alias or an
// optional-subdomain-prefixed form of the primary host set, returning the
// primary host to redirect to (its first element) when so.
func (d *DispatchIndex) ResolveHost(host string) (primary string, shouldRedirect bool) {
	if len(d.primaryHosts) == 0 {
		return "", false
	}

	if _, ok := d.hostAliases[host]; ok {
		return d.primaryHosts[0], true
	}

	for _, prefix := range d.optionalSubdomains {
		if strings.HasPrefix(host, prefix+".") {
			rest := strings.TrimPrefix(host, prefix+".")
			for _, h := range d.primaryHosts {
				if h == rest {
					return d.primaryHosts[0], true
				}
			}
		}
	}

	return "", false
}

// RecordHit increments the supplemented per-response hit counter
// (SPEC_FULL.md §4 "route metrics counters"). It is never consulted for
// matching.
func (d *DispatchIndex) RecordHit(r *responseImpl) {
	if c, ok := d.hits[r]; ok {
		c.Add(1)
	}
}

// Stats returns the current hit counters, keyed by response identity.
func (d *DispatchIndex) Stats() map[*responseImpl]int64 {
	out := make(map[*responseImpl]int64, len(d.hits))
	for r, c := range d.hits {
		out[r] = c.Load()
	}
	return out
}
