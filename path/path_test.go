package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRaw(t *testing.T) {
	assert.Equal(t, Empty, FromRaw(""))
	assert.Equal(t, []string{"a", "b"}, FromRaw("/a/b").Components())
	assert.Equal(t, []string{"a", "b"}, FromRaw("a/b/").Components())
	assert.Equal(t, []string{"a", "b"}, FromRaw("//a//b//").Components())
}

func TestStandardize(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, Standardize(FromRaw("/a/b/../c")).Components())
	assert.True(t, Standardize(FromRaw("/../../a/..")).Equal(Empty))
	assert.True(t, Standardize(FromRaw("/../../")).Equal(Empty))
	assert.Equal(t, []string{"a"}, Standardize(FromRaw("/./a/.")).Components())
}

func TestConcat(t *testing.T) {
	got := Concat(FromRaw("/a/b"), FromRaw("/c"))
	assert.Equal(t, []string{"a", "b", "c"}, got.Components())
	assert.True(t, Concat(Empty, FromRaw("/x")).Equal(FromRaw("/x")))
	assert.True(t, Concat(FromRaw("/x"), Empty).Equal(FromRaw("/x")))
}

func TestStartsWith(t *testing.T) {
	p := FromRaw("/profiles/42")
	assert.True(t, p.StartsWith(FromRaw("/profiles")))
	assert.True(t, p.StartsWith(Empty))
	assert.True(t, p.StartsWith(p))
	assert.False(t, p.StartsWith(FromRaw("/profiles/42/extra")))
	assert.False(t, p.StartsWith(FromRaw("/other")))
}

func TestPrefixAndDropFirst(t *testing.T) {
	p := FromRaw("/a/b/c")
	assert.Equal(t, []string{"a", "b"}, p.Prefix(2).Components())
	assert.Equal(t, []string{"c"}, p.DropFirst(2).Components())
}

func TestJoinWith(t *testing.T) {
	assert.Equal(t, "/a/b", FromRaw("/a/b").JoinWith("/"))
	assert.Equal(t, "/", Empty.JoinWith("/"))
}

func TestEqual(t *testing.T) {
	assert.True(t, FromRaw("/a/b").Equal(FromRaw("a/b")))
	assert.False(t, FromRaw("/a/b").Equal(FromRaw("/a/b/c")))
}

func TestDotNotResolvedDuringRawSplit(t *testing.T) {
	// FromRaw never resolves "." / "..": they remain opaque components,
	// matching the dispatcher's "no resolution during dispatch" rule.
	got := FromRaw("/a/../b")
	assert.Equal(t, []string{"a", "..", "b"}, got.Components())
}
