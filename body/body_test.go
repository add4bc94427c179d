package body

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProhibitedRejectsAnyBody(t *testing.T) {
	ing := Prohibited().MakeIngester()
	assert.Nil(t, ing.Feed(nil))
	assert.NotNil(t, ing.Feed([]byte("x")))
}

func TestProhibitedAllowsZeroLength(t *testing.T) {
	ing := Prohibited().MakeIngester()
	assert.Nil(t, ing.Feed(nil))
	v, inc := ing.End()
	assert.Nil(t, inc)
	assert.Equal(t, struct{}{}, v)
}

func TestCollectWithinLimit(t *testing.T) {
	ing := Collect(10).MakeIngester()
	assert.Nil(t, ing.Feed([]byte("hello")))
	assert.Nil(t, ing.Feed([]byte("!")))
	v, inc := ing.End()
	assert.Nil(t, inc)
	assert.Equal(t, []byte("hello!"), v)
}

func TestCollectOverLimit(t *testing.T) {
	ing := Collect(4).MakeIngester()
	assert.Nil(t, ing.Feed([]byte("he")))
	assert.NotNil(t, ing.Feed([]byte("llo")))
}

func TestReduceFolds(t *testing.T) {
	plan := Reduce(0, func(acc int, chunk []byte) (int, error) {
		return acc + len(chunk), nil
	}, 100)
	ing := plan.MakeIngester()
	assert.Nil(t, ing.Feed([]byte("abc")))
	assert.Nil(t, ing.Feed([]byte("de")))
	v, inc := ing.End()
	assert.Nil(t, inc)
	assert.Equal(t, 5, v)
}

func TestReduceOverLimitIsDeterministicAtCrossingChunk(t *testing.T) {
	plan := Reduce(0, func(acc int, chunk []byte) (int, error) {
		return acc + len(chunk), nil
	}, 5)
	ing := plan.MakeIngester()
	assert.Nil(t, ing.Feed([]byte("abcd")))
	assert.NotNil(t, ing.Feed([]byte("de")))
}

func TestJSONDecodes(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	plan := JSON[payload](1024)
	ing := plan.MakeIngester()
	assert.Nil(t, ing.Feed([]byte(`{"name":`)))
	assert.Nil(t, ing.Feed([]byte(`"ada"}`)))
	v, inc := ing.End()
	assert.Nil(t, inc)
	assert.Equal(t, "ada", v.Name)
}

func TestJSONBadRequestOnMalformed(t *testing.T) {
	plan := JSON[map[string]any](1024)
	ing := plan.MakeIngester()
	assert.Nil(t, ing.Feed([]byte(`not json`)))
	_, inc := ing.End()
	assert.NotNil(t, inc)
}

func TestMergeWithInheritsOuterLimit(t *testing.T) {
	p := Collect(0) // hasLimit true but zero - not the same as unset
	assert.Equal(t, uint64(0), p.Limit())

	var unset Plan[[]byte]
	merged := unset.MergeWith(42)
	assert.Equal(t, uint64(42), merged.Limit())
}

func TestCollectWithNoLimitInheritsFromMergeWith(t *testing.T) {
	p := Collect()
	assert.Equal(t, DefaultLimit, p.Limit())

	merged := p.MergeWith(8)
	assert.Equal(t, uint64(8), merged.Limit())

	ing := merged.MakeIngester()
	assert.Nil(t, ing.Feed([]byte("12345678")))
	assert.NotNil(t, ing.Feed([]byte("9")))
}

func TestCollectWithExplicitLimitIgnoresMergeWith(t *testing.T) {
	p := Collect(100)
	merged := p.MergeWith(8)
	assert.Equal(t, uint64(100), merged.Limit())
}
