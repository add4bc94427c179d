// Package minify wires tdewolff/minify/v2 into canopy as the post-
// processor for the cascadable MinifyTypes attribute (SPEC_FULL.md §3),
// adapted from the teacher's minifier.go: a singleton *minify.M with
// minifiers registered lazily, the first time each MIME type is seen.
package minify

import (
	"bytes"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"
)

// Minifier minifies bytes by MIME type, registering a tdewolff minifier
// for each type the first time it's used.
type Minifier struct {
	mu sync.Mutex
	m  *minify.M
}

// New returns an empty Minifier.
func New() *Minifier {
	return &Minifier{m: minify.New()}
}

var builtins = map[string]func(*minify.M, string){
	"text/html":        func(m *minify.M, mt string) { m.AddFunc(mt, html.Minify) },
	"text/css":         func(m *minify.M, mt string) { m.AddFunc(mt, css.Minify) },
	"text/javascript":  func(m *minify.M, mt string) { m.AddFunc(mt, js.Minify) },
	"application/json": func(m *minify.M, mt string) { m.AddFunc(mt, json.Minify) },
	"text/xml":         func(m *minify.M, mt string) { m.AddFunc(mt, xml.Minify) },
	"image/svg+xml":    func(m *minify.M, mt string) { m.AddFunc(mt, svg.Minify) },
}

// Minify minifies b according to mimeType, lazily registering a minifier
// for mimeType the first time it's seen. It returns b unchanged (with a
// false second return) if mimeType has no known minifier.
func (m *Minifier) Minify(mimeType string, b []byte) ([]byte, bool, error) {
	if ss := strings.SplitN(mimeType, ";", 2); len(ss) > 1 {
		mimeType = strings.TrimSpace(ss[0])
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	buf := &bytes.Buffer{}
	err := m.m.Minify(mimeType, buf, bytes.NewReader(b))
	if err == minify.ErrNotExist {
		register, ok := builtins[mimeType]
		if !ok {
			return b, false, nil
		}
		register(m.m, mimeType)
		buf.Reset()
		if err := m.m.Minify(mimeType, buf, bytes.NewReader(b)); err != nil {
			return nil, false, err
		}
		return buf.Bytes(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}
