package canopy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupResolveCascade(t *testing.T) {
	inner := NewGroup().Methods(http.MethodGet).Path("/widgets")
	leaf := Content(NewResponse(), func(in Input[struct{}, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
		return Status(http.StatusOK), nil
	})
	inner.Add(leaf)

	root := NewRootGroup().
		Endpoint("0.0.0.0", 8080, HTTPConfig{Version: H1_1}).
		Hosts("example.com")
	root.Add(inner)

	resolved := Resolve(root)
	assert.Len(t, resolved, 1)
	assert.True(t, resolved[0].attrs.Methods.contains(http.MethodGet))
	assert.False(t, resolved[0].attrs.Methods.contains(http.MethodPost))
	_, hasHost := resolved[0].attrs.Hosts["example.com"]
	assert.True(t, hasHost)
	assert.Equal(t, "/widgets", resolved[0].attrs.Path.String())
}

func TestGroupMethodsNarrowOnly(t *testing.T) {
	outer := NewGroup().Methods(http.MethodGet, http.MethodPost)
	inner := NewGroup().Methods(http.MethodPost, http.MethodPut)
	leaf := Content(NewResponse(), func(in Input[struct{}, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
		return Status(http.StatusOK), nil
	})
	inner.Add(leaf)
	outer.Add(inner)

	root := NewRootGroup().Endpoint("0.0.0.0", 8080, HTTPConfig{})
	root.Add(outer)

	resolved := Resolve(root)
	assert.Len(t, resolved, 1)
	assert.True(t, resolved[0].attrs.Methods.contains(http.MethodPost))
	assert.False(t, resolved[0].attrs.Methods.contains(http.MethodGet))
	assert.False(t, resolved[0].attrs.Methods.contains(http.MethodPut))
}

func TestRootAttributesDoesNotDescend(t *testing.T) {
	root := NewRootGroup().Endpoint("0.0.0.0", 8080, HTTPConfig{}).Methods(http.MethodGet)
	child := NewGroup().Methods(http.MethodPost)
	root.Add(child)

	attrs := RootAttributes(root)
	assert.True(t, attrs.Methods.contains(http.MethodGet))
	assert.False(t, attrs.Methods.contains(http.MethodPost))
}

func TestForEachExpandsOncePerItem(t *testing.T) {
	names := []string{"a", "b", "c"}
	node := ForEach(names, func(name string) Node {
		g := NewGroup().Path("/" + name)
		g.Add(Content(NewResponse(), func(in Input[struct{}, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
			return Status(http.StatusOK), nil
		}))
		return g
	})

	root := NewRootGroup().Endpoint("0.0.0.0", 8080, HTTPConfig{})
	root.Add(node)

	resolved := Resolve(root)
	assert.Len(t, resolved, 3)
}

func TestIfIncludesConditionally(t *testing.T) {
	leaf := func() Node {
		return Content(NewResponse(), func(in Input[struct{}, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
			return Status(http.StatusOK), nil
		})
	}

	root := NewRootGroup().Endpoint("0.0.0.0", 8080, HTTPConfig{})
	root.Add(If(false, leaf()), If(true, leaf()))

	resolved := Resolve(root)
	assert.Len(t, resolved, 1)
}
