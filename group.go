package canopy

import (
	cpath "github.com/canopy-http/canopy/path"
)

// resolved is one flattened (attributes, response) pair produced by
// walking the tree. order records declaration order for reproducibility
// only; the dispatcher never depends on it (spec.md §4.5).
type resolved struct {
	attrs GroupAttributes
	resp  *responseImpl
	order int
}

// Node is anything that can appear as a child of a Group: another Group, a
// terminal response (the Node returned by ResponseBuilder.Content), a
// conditional branch (If / IfElse), or a dynamic for-each expansion
// (ForEach).
type Node interface {
	resolveInto(ancestor GroupAttributes, counter *int, out *[]resolved)
}

// Group is a value object carrying partial GroupAttributes and an ordered
// list of child nodes. Root groups additionally carry endpoint/host
// attributes; inner groups typically narrow method/user/path.
type Group struct {
	attrs    GroupAttributes
	children []Node
}

// NewRootGroup returns an empty root group. Root-axis attributes
// (endpoints, hosts, host aliases, optional subdomains) are only
// meaningful when set on a root group or one of its ancestors.
func NewRootGroup() *Group {
	return &Group{attrs: emptyAttributes()}
}

// NewGroup returns an empty inner group.
func NewGroup() *Group {
	return &Group{attrs: emptyAttributes()}
}

// Endpoint registers cfg for the given endpoint, accumulating into any
// endpoints already set on this group (accumulate semantics: a group can
// serve more than one endpoint).
func (g *Group) Endpoint(addr string, port uint16, cfg HTTPConfig) *Group {
	if g.attrs.Endpoints == nil {
		g.attrs.Endpoints = map[Endpoint]HTTPConfig{}
	}
	g.attrs.Endpoints[Endpoint{Address: addr, Port: port}] = cfg
	return g
}

// Hosts sets the primary host set this group (and its descendants) serve.
func (g *Group) Hosts(hosts ...string) *Group {
	g.attrs.Hosts = g.attrs.Hosts.union(newStringSet(hosts...))
	return g
}

// HostAliases registers hosts that redirect to the primary host set.
func (g *Group) HostAliases(aliases ...string) *Group {
	g.attrs.HostAliases = g.attrs.HostAliases.union(newStringSet(aliases...))
	return g
}

// OptionalSubdomains registers subdomain prefixes (e.g. "www") that
// redirect to the primary host set.
func (g *Group) OptionalSubdomains(prefixes ...string) *Group {
	g.attrs.OptionalSubdomains = g.attrs.OptionalSubdomains.union(newStringSet(prefixes...))
	return g
}

// Methods narrows the set of HTTP methods this group (and its
// descendants) will serve. Descendants can only narrow further.
func (g *Group) Methods(methods ...string) *Group {
	g.attrs.Methods = restrictedSet(methods...)
	return g
}

// Users narrows the set of URL user components this group will serve.
func (g *Group) Users(users ...string) *Group {
	g.attrs.Users = restrictedSet(users...)
	return g
}

// Path appends a path segment to this group's dispatch path.
func (g *Group) Path(raw string) *Group {
	g.attrs.Path = cpath.Concat(g.attrs.Path, cpath.FromRaw(raw))
	return g
}

// BodyLengthLimit sets the default body length limit inherited by
// descendant responses that don't specify their own.
func (g *Group) BodyLengthLimit(n uint64) *Group {
	g.attrs.BodyLengthLimit = &n
	return g
}

// MinifyTypes sets the content types eligible for minification for this
// group's descendants (SPEC_FULL.md §3 supplemented attribute).
func (g *Group) MinifyTypes(contentTypes ...string) *Group {
	s := newStringSet(contentTypes...)
	g.attrs.MinifyTypes = &s
	return g
}

// OnIncident attaches an incident handler to this group.
func (g *Group) OnIncident(h IncidentHandler) *Group {
	g.attrs.IncidentHandler = h
	return g
}

// OnError attaches an error callback to this group.
func (g *Group) OnError(cb ErrorCallback) *Group {
	g.attrs.ErrorCallback = cb
	return g
}

// Add appends children to the group (groups, responses, conditionals, or
// for-each expansions).
func (g *Group) Add(children ...Node) *Group {
	g.children = append(g.children, children...)
	return g
}

func (g *Group) resolveInto(ancestor GroupAttributes, counter *int, out *[]resolved) {
	merged := overlay(ancestor, g.attrs)
	for _, c := range g.children {
		c.resolveInto(merged, counter, out)
	}
}

// If includes then only when cond is true; otherwise it contributes no
// responses.
func If(cond bool, then Node) Node {
	return condNode{cond: cond, then: then}
}

// IfElse includes then when cond is true, els otherwise.
func IfElse(cond bool, then, els Node) Node {
	return condNode{cond: cond, then: then, els: els, hasElse: true}
}

type condNode struct {
	cond    bool
	then    Node
	els     Node
	hasElse bool
}

func (c condNode) resolveInto(ancestor GroupAttributes, counter *int, out *[]resolved) {
	if c.cond {
		c.then.resolveInto(ancestor, counter, out)
	} else if c.hasElse {
		c.els.resolveInto(ancestor, counter, out)
	}
}

// ForEach expands, once at resolution time, one child node per item in
// items via build. This is the dynamic enumeration primitive of spec.md
// §4.5.
func ForEach[T any](items []T, build func(T) Node) Node {
	children := make([]Node, len(items))
	for i, it := range items {
		children[i] = build(it)
	}
	return forEachNode{children: children}
}

type forEachNode struct {
	children []Node
}

func (f forEachNode) resolveInto(ancestor GroupAttributes, counter *int, out *[]resolved) {
	for _, c := range f.children {
		c.resolveInto(ancestor, counter, out)
	}
}

// RootAttributes returns root's own attributes overlaid onto the empty
// identity element, without descending into its children. BuildDispatchIndex
// uses this as the incident-handler chain of last resort for incidents
// (ResponseNotFound, MethodNotAllowed) that cannot be attributed to any
// single resolved response.
func RootAttributes(root *Group) GroupAttributes {
	return overlay(emptyAttributes(), root.attrs)
}

// Resolve walks root depth-first, producing the flat list of
// (ResolvedAttributes, response) pairs that the dispatcher is built from.
// Resolve is deterministic: the same tree always produces the same list
// in the same order.
func Resolve(root *Group) []resolved {
	var out []resolved
	counter := 0
	root.resolveInto(emptyAttributes(), &counter, &out)
	return out
}
