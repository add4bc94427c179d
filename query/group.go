package query

// Pair is the cons cell used to grow a Group's value type without an arity
// cap: appending an Item[U] onto a Group[T] produces a Group[Pair[T, U]].
// Map / FlatMap collapse an arbitrarily deep Pair chain into a single value
// at any point.
type Pair[A, B any] struct {
	Head A
	Tail B
}

// RawItem is one opaque (name, value) pair handed to a raw-mode transform.
type RawItem struct {
	Name  string
	Value string
}

// itemSpec is the type-erased view of one structured Item, used internally
// by Group to classify against a raw query map without knowing T.
type itemSpec struct {
	name     string
	required bool
	classify func(raw *string) (any, bool)
}

// Group is a heterogeneous, ordered list of query items whose combined
// value has type T. A Group is either "structured" (built by Append from
// typed Items, classified item-by-item) or "raw" (built by NewRawGroup,
// always matching and handing the whole query list to a user transform).
type Group[T any] struct {
	items    []itemSpec
	isRaw    bool
	assemble func(vals []any) (T, bool)
}

// NewGroup returns the empty structured group, whose value type is
// struct{}.
func NewGroup() *Group[struct{}] {
	return &Group[struct{}]{
		assemble: func(vals []any) (struct{}, bool) {
			return struct{}{}, true
		},
	}
}

// NewRawGroup returns a group in raw mode: it always matches (schema is
// trivially satisfied) and its value is the full list of (name, value)
// pairs from the request's URL query, verbatim.
func NewRawGroup() *Group[[]RawItem] {
	return &Group[[]RawItem]{
		isRaw: true,
		assemble: func(vals []any) ([]RawItem, bool) {
			return vals[0].([]RawItem), true
		},
	}
}

// Append grows g by one structured item, producing a group whose value
// type is Pair[T, U]: {Head: <g's former value>, Tail: <item's value>}.
// Append panics if g is in raw mode (query_map / query_flat_map may not be
// followed by further structured items — see spec.md §4.4).
func Append[T, U any](g *Group[T], item Item[U]) *Group[Pair[T, U]] {
	if g.isRaw {
		panic("query: cannot append a structured item after a raw-mode transform")
	}

	items := append(append([]itemSpec(nil), g.items...), itemSpec{
		name:     item.Name,
		required: item.Required,
		classify: func(raw *string) (any, bool) {
			return item.Classify(raw).Get()
		},
	})

	prevAssemble := g.assemble
	return &Group[Pair[T, U]]{
		items: items,
		assemble: func(vals []any) (Pair[T, U], bool) {
			head, ok := prevAssemble(vals[:len(vals)-1])
			if !ok {
				return Pair[T, U]{}, false
			}
			tail, ok := vals[len(vals)-1].(U)
			if !ok {
				return Pair[T, U]{}, false
			}
			return Pair[T, U]{Head: head, Tail: tail}, true
		},
	}
}

// Map collapses g's tuple value into a single value of type U via f. The
// result can still grow with further Append / Map / FlatMap calls.
func Map[T, U any](g *Group[T], f func(T) U) *Group[U] {
	prevAssemble := g.assemble
	return &Group[U]{
		items: g.items,
		isRaw: g.isRaw,
		assemble: func(vals []any) (U, bool) {
			t, ok := prevAssemble(vals)
			if !ok {
				var zero U
				return zero, false
			}
			return f(t), true
		},
	}
}

// FlatMap collapses g's tuple value into a single value of type U via f,
// additionally allowing f to reject the match (e.g. cross-field
// validation that a single item's Classify cannot express).
func FlatMap[T, U any](g *Group[T], f func(T) Result[U]) *Group[U] {
	prevAssemble := g.assemble
	return &Group[U]{
		items: g.items,
		isRaw: g.isRaw,
		assemble: func(vals []any) (U, bool) {
			t, ok := prevAssemble(vals)
			if !ok {
				var zero U
				return zero, false
			}
			return f(t).Get()
		},
	}
}

// RawMap is Map specialized to a raw-mode group's []RawItem value.
func RawMap[U any](g *Group[[]RawItem], f func([]RawItem) U) *Group[U] {
	return Map(g, f)
}

// RawFlatMap is FlatMap specialized to a raw-mode group's []RawItem value.
func RawFlatMap[U any](g *Group[[]RawItem], f func([]RawItem) Result[U]) *Group[U] {
	return FlatMap(g, f)
}

// IsRaw reports whether g is in raw mode.
func (g *Group[T]) IsRaw() bool {
	return g.isRaw
}

// Match classifies g against the request's query, given a name->value map
// (last-wins, as parsed by the dispatcher's single query-string sweep),
// a presence set, and the raw ordered pair list (used only in raw mode).
//
// A structured group is eligible when every declared item's Classify
// accepts; extraneous, undeclared query parameters never cause rejection
// (the matcher is schema-sufficient, not schema-exclusive). A raw group
// always matches.
func (g *Group[T]) Match(values map[string]string, present map[string]bool, raw []RawItem) (T, bool) {
	if g.isRaw {
		var zero T
		vals := []any{append([]RawItem(nil), raw...)}
		v, ok := g.assemble(vals)
		_ = zero
		return v, ok
	}

	vals := make([]any, len(g.items))
	for i, it := range g.items {
		var rawPtr *string
		if present[it.name] {
			v := values[it.name]
			rawPtr = &v
		}

		v, ok := it.classify(rawPtr)
		if !ok {
			var zero T
			return zero, false
		}
		vals[i] = v
	}

	return g.assemble(vals)
}
