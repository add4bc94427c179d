package query

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func ptr(s string) *string { return &s }

func TestBoolClassification(t *testing.T) {
	b := Bool("flag")

	cases := []struct {
		raw     *string
		want    bool
		wantOK  bool
		comment string
	}{
		{nil, false, true, "absent"},
		{ptr("true"), true, true, ""},
		{ptr("TRUE"), true, true, ""},
		{ptr("True"), true, true, ""},
		{ptr("yes"), true, true, ""},
		{ptr("YES"), true, true, ""},
		{ptr("Yes"), true, true, ""},
		{ptr("1"), true, true, ""},
		{ptr(""), true, true, "empty string is truthy per spec"},
		{ptr("false"), false, true, ""},
		{ptr("FALSE"), false, true, ""},
		{ptr("False"), false, true, ""},
		{ptr("no"), false, true, ""},
		{ptr("NO"), false, true, ""},
		{ptr("No"), false, true, ""},
		{ptr("0"), false, true, ""},
		{ptr("maybe"), false, false, "anything else rejects"},
	}

	for _, c := range cases {
		got, ok := b.Classify(c.raw).Get()
		assert.Equal(t, c.wantOK, ok, c.comment)
		if c.wantOK {
			assert.Equal(t, c.want, got, c.comment)
		}
	}
}

func TestVoidOnlyAcceptsAbsence(t *testing.T) {
	v := Void("x")
	_, ok := v.Classify(nil).Get()
	assert.True(t, ok)
	_, ok = v.Classify(ptr("anything")).Get()
	assert.False(t, ok)
}

func TestRequiredRejectsAbsence(t *testing.T) {
	r := Required("name")
	_, ok := r.Classify(nil).Get()
	assert.False(t, ok)
	v, ok := r.Classify(ptr("hi")).Get()
	assert.True(t, ok)
	assert.Equal(t, "hi", v)
}

func TestOptionalAcceptsAbsence(t *testing.T) {
	o := Optional("x")
	v, ok := o.Classify(nil).Get()
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestGroupAppendAndMatch(t *testing.T) {
	g := Append(Append(NewGroup(), RequiredParsed("lhs", parseFloat)), RequiredParsed("rhs", parseFloat))

	sum := Map(g, func(t Pair[Pair[struct{}, float64], float64]) float64 {
		return t.Head.Tail + t.Tail
	})

	values := map[string]string{"lhs": "1.5", "rhs": "2.5"}
	present := map[string]bool{"lhs": true, "rhs": true}

	got, ok := sum.Match(values, present, nil)
	assert.True(t, ok)
	assert.Equal(t, 4.0, got)

	// Missing required "rhs".
	_, ok = sum.Match(map[string]string{"lhs": "1"}, map[string]bool{"lhs": true}, nil)
	assert.False(t, ok)
}

func TestGroupFlatMapRejection(t *testing.T) {
	g := Append(NewGroup(), Int("n"))
	positive := FlatMap(g, func(t Pair[struct{}, int]) Result[int] {
		if t.Tail <= 0 {
			return Rejected[int]()
		}
		return Accepted(t.Tail)
	})

	_, ok := positive.Match(map[string]string{"n": "-1"}, map[string]bool{"n": true}, nil)
	assert.False(t, ok)

	v, ok := positive.Match(map[string]string{"n": "5"}, map[string]bool{"n": true}, nil)
	assert.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestRawGroupAlwaysMatches(t *testing.T) {
	g := NewRawGroup()
	raw := []RawItem{{Name: "a", Value: "1"}, {Name: "a", Value: "2"}}
	got, ok := g.Match(nil, nil, raw)
	assert.True(t, ok)
	assert.Equal(t, raw, got)
}

func TestRawMapCollapsesToSingleValue(t *testing.T) {
	g := NewRawGroup()
	count := RawMap(g, func(items []RawItem) int { return len(items) })

	got, ok := count.Match(nil, nil, []RawItem{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	assert.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestAppendAfterRawPanics(t *testing.T) {
	raw := NewRawGroup()
	collapsed := RawMap(raw, func(items []RawItem) int { return len(items) })
	assert.Panics(t, func() {
		Append(collapsed, Required("x"))
	})
}

func TestRequiredDecimalUsesRegionSeparator(t *testing.T) {
	de := RequiredDecimal("price", language.MustParse("de-DE"))
	v, ok := de.Classify(ptr("12,50")).Get()
	assert.True(t, ok)
	assert.Equal(t, 12.50, v)

	us := RequiredDecimal("price", language.MustParse("en-US"))
	v, ok = us.Classify(ptr("12.50")).Get()
	assert.True(t, ok)
	assert.Equal(t, 12.50, v)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
