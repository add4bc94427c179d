package canopy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canopy-http/canopy/body"
	cpath "github.com/canopy-http/canopy/path"
	"github.com/canopy-http/canopy/query"
	"github.com/stretchr/testify/assert"
)

func statusOnly(code int) Node {
	return Content(NewResponse(), func(in Input[struct{}, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
		return Status(code), nil
	})
}

func buildIndex(t *testing.T, root *Group) *DispatchIndex {
	t.Helper()
	resolvedList := Resolve(root)
	rootAttrs := RootAttributes(root)

	endpoints := make([]Endpoint, 0, len(rootAttrs.Endpoints))
	for ep := range rootAttrs.Endpoints {
		endpoints = append(endpoints, ep)
	}
	return BuildDispatchIndex(resolvedList, endpoints, rootAttrs)
}

func TestProcessMathAdd(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	addQuery := Query(Query(NewResponse(), query.Int("a")), query.Int("b"))
	addSum := QueryMap(addQuery, func(p query.Pair[query.Pair[struct{}, int], int]) int {
		return p.Head.Tail + p.Tail
	})
	mathAdd := Content(addSum, func(in Input[int, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
		return JSON(http.StatusOK, map[string]int{"sum": in.Query})
	})

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(NewGroup().Methods(http.MethodGet).Path("/math/add").Add(mathAdd))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodGet, "/math/add?a=2&b=3", nil)
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, http.StatusOK, content.Status)
	assert.JSONEq(t, `{"sum":5}`, string(content.Body))
}

func TestProcessAmbiguousRequest(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	first := statusOnly(http.StatusOK)
	second := statusOnly(http.StatusAccepted)

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(NewGroup().Methods(http.MethodGet).Path("/ambiguous").Add(first, second))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodGet, "/ambiguous", nil)
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, 400, content.Status)
}

func TestProcessMethodNotAllowed(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(
		NewGroup().Methods(http.MethodGet).Path("/x").Add(statusOnly(http.StatusOK)),
		NewGroup().Methods(http.MethodDelete).Path("/x").Add(statusOnly(http.StatusNoContent)),
	)
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, 405, content.Status)
}

func TestProcessResponseNotFound(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(NewGroup().Methods(http.MethodGet).Path("/x").Add(statusOnly(http.StatusOK)))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, 404, content.Status)
}

func TestProcessBodyEcho(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	echoBuilder := RequestBody(NewResponse(), body.Collect(1<<20))
	bodyEcho := Content(echoBuilder, func(in Input[struct{}, http.Header, []byte, struct{}]) (*ResponseContent, error) {
		return Bytes(http.StatusOK, "application/octet-stream", in.Body), nil
	})

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(NewGroup().Methods(http.MethodPost).Path("/echo").Add(bodyEcho))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello"))
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, http.StatusOK, content.Status)
	assert.Equal(t, "hello", string(content.Body))
}

func TestProcessSubpathProfile(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	profileBuilder := SubpathFilter(NewResponse(), func(p cpath.Path) bool { return p.Len() > 0 })
	profile := Content(profileBuilder, func(in Input[struct{}, http.Header, struct{}, cpath.Path]) (*ResponseContent, error) {
		return Bytes(http.StatusOK, "text/plain", []byte(in.Subpath.String())), nil
	})

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(NewGroup().Methods(http.MethodGet).Path("/profiles").Add(profile))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodGet, "/profiles/nova", nil)
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, http.StatusOK, content.Status)
	assert.Equal(t, "/nova", string(content.Body))
}

func TestProcessContentCallbackErrorYields500AndCallsErrorCallback(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	var sawErr error
	failing := Content(NewResponse().OnError(func(err error, ctx *Ctx) {
		sawErr = err
	}), func(in Input[struct{}, http.Header, struct{}, struct{}]) (*ResponseContent, error) {
		return nil, errors.New("boom")
	})

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{})
	root.Add(NewGroup().Methods(http.MethodGet).Path("/explode").Add(failing))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodGet, "/explode", nil)
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, http.StatusInternalServerError, content.Status)
	assert.Error(t, sawErr)
	assert.Contains(t, sawErr.Error(), "boom")
}

func TestProcessBodyLengthLimitCascadesToPlanWithNoExplicitLimit(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	echoBuilder := RequestBody(NewResponse(), body.Collect())
	bodyEcho := Content(echoBuilder, func(in Input[struct{}, http.Header, []byte, struct{}]) (*ResponseContent, error) {
		return Bytes(http.StatusOK, "application/octet-stream", in.Body), nil
	})

	root := NewRootGroup().Endpoint(ep.Address, ep.Port, HTTPConfig{}).BodyLengthLimit(4)
	root.Add(NewGroup().Methods(http.MethodPost).Path("/echo").Add(bodyEcho))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello"))
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, content.Status)
}

func TestProcessHostAliasRedirect(t *testing.T) {
	ep := Endpoint{Address: "0.0.0.0", Port: 8080}

	root := NewRootGroup().
		Endpoint(ep.Address, ep.Port, HTTPConfig{}).
		Hosts("example.com").
		HostAliases("old.example.com")
	root.Add(NewGroup().Methods(http.MethodGet).Path("/x").Add(statusOnly(http.StatusOK)))
	idx := buildIndex(t, root)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Host = "old.example.com"
	w := httptest.NewRecorder()
	content := Process(idx, ep, w, r)

	assert.Equal(t, http.StatusMovedPermanently, content.Status)
	assert.Equal(t, "https://example.com/x", content.Header.Get("Location"))
}
