// Package path implements the path model: an ordered sequence of non-empty
// string components with no resolution semantics baked into equality or
// dispatch, and a separate standardization operation for callers who want
// "." / ".." collapsed.
package path

import "strings"

// Path is an ordered sequence of non-empty components. Components never
// contain a "/" character.
type Path struct {
	components []string
}

// Empty is the zero-length path.
var Empty = Path{}

// FromRaw splits a raw path string on "/" and drops empty components (so
// leading, trailing, and repeated slashes collapse away). It never fails;
// an empty raw string yields the empty Path.
func FromRaw(raw string) Path {
	if raw == "" {
		return Empty
	}
	parts := strings.Split(raw, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return Path{components: out}
}

// Standardize resolves "." components (no-op) and ".." components (pop the
// last emitted component, never popping below zero) in p. It never
// resolves components above the root: a leading ".." is simply dropped.
//
// Standardize is never applied implicitly during dispatch (see the
// dispatcher's path-trie): "." and ".." remain opaque, literal components
// there. Standardize exists for callers who want a normalized form for
// display, redirects, or other derived operations.
func Standardize(p Path) Path {
	out := make([]string, 0, len(p.components))
	for _, c := range p.components {
		switch c {
		case ".":
			// no-op
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	return Path{components: out}
}

// Concat returns the path formed by appending b's components after a's.
func Concat(a, b Path) Path {
	if len(a.components) == 0 {
		return b
	}
	if len(b.components) == 0 {
		return a
	}
	out := make([]string, 0, len(a.components)+len(b.components))
	out = append(out, a.components...)
	out = append(out, b.components...)
	return Path{components: out}
}

// Len returns the number of components in p.
func (p Path) Len() int {
	return len(p.components)
}

// Component returns the i-th component of p.
func (p Path) Component(i int) string {
	return p.components[i]
}

// Components returns a copy of p's components.
func (p Path) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

// StartsWith reports whether p has prefix as a strict or non-strict prefix
// (prefix.Len() <= p.Len() and every component of prefix equals the
// corresponding component of p).
func (p Path) StartsWith(prefix Path) bool {
	if prefix.Len() > p.Len() {
		return false
	}
	for i, c := range prefix.components {
		if p.components[i] != c {
			return false
		}
	}
	return true
}

// Prefix returns the first n components of p. It panics if n is negative or
// greater than p.Len(), matching the total-but-bounded contract of the
// other slicing operations.
func (p Path) Prefix(n int) Path {
	return Path{components: append([]string(nil), p.components[:n]...)}
}

// DropFirst returns p with its first n components removed.
func (p Path) DropFirst(n int) Path {
	return Path{components: append([]string(nil), p.components[n:]...)}
}

// JoinWith joins p's components with sep, prefixed by a single leading sep
// so that JoinWith("/") always starts with "/" (matching the GroupAttributes
// cascade rule that every path segment is normalized to start with "/"
// exactly once).
func (p Path) JoinWith(sep string) string {
	if len(p.components) == 0 {
		return sep
	}
	return sep + strings.Join(p.components, sep)
}

// Equal reports whether p and o have identical components in the same
// order.
func (p Path) Equal(o Path) bool {
	if len(p.components) != len(o.components) {
		return false
	}
	for i, c := range p.components {
		if o.components[i] != c {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for debugging and log output.
func (p Path) String() string {
	return p.JoinWith("/")
}
