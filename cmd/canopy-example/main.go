// Command canopy-example is a small, runnable demonstration of a canopy
// group tree: a math endpoint (query items), a body-echoing
// POST endpoint, and a subpath-served profile endpoint, matching the
// end-to-end scenarios in spec.md §8.
package main

import (
	"fmt"
	"net/http"
	"os"

	canopy "github.com/canopy-http/canopy"
	"github.com/canopy-http/canopy/body"
	cpath "github.com/canopy-http/canopy/path"
	"github.com/canopy-http/canopy/query"
)

func buildTree() *canopy.Group {
	root := canopy.NewRootGroup().
		Endpoint("0.0.0.0", 8080, canopy.HTTPConfig{Version: canopy.H1_1})

	addQuery := canopy.Query(canopy.Query(canopy.NewResponse(), query.Int("a")), query.Int("b"))
	addSum := canopy.QueryMap(addQuery, func(p query.Pair[query.Pair[struct{}, int], int]) int {
		return p.Head.Tail + p.Tail
	})
	mathAdd := canopy.Content(addSum, func(in canopy.Input[int, http.Header, struct{}, struct{}]) (*canopy.ResponseContent, error) {
		return canopy.JSON(http.StatusOK, map[string]int{"sum": in.Query})
	})

	echoBuilder := canopy.RequestBody(canopy.NewResponse(), body.Collect(1<<20))
	bodyEcho := canopy.Content(echoBuilder, func(in canopy.Input[struct{}, http.Header, []byte, struct{}]) (*canopy.ResponseContent, error) {
		return canopy.Bytes(http.StatusOK, "application/octet-stream", in.Body), nil
	})

	profileBuilder := canopy.SubpathFilter(canopy.NewResponse(), func(cpath.Path) bool { return true })
	profileContent := canopy.Content(profileBuilder, func(in canopy.Input[struct{}, http.Header, struct{}, cpath.Path]) (*canopy.ResponseContent, error) {
		return canopy.Bytes(http.StatusOK, "text/plain; charset=utf-8", []byte(in.Subpath.String())), nil
	})

	root.Add(
		canopy.NewGroup().Methods(http.MethodGet).Path("/math/add").Add(mathAdd),
		canopy.NewGroup().Methods(http.MethodPost).Path("/echo").Add(bodyEcho),
		canopy.NewGroup().Methods(http.MethodGet).Path("/profiles").Add(profileContent),
	)

	return root
}

func main() {
	cfg := canopy.DefaultConfig("canopy-example")

	srv, err := canopy.NewServer(buildTree(), cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
