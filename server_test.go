package canopy

import (
	"net/http/httptest"
	"os"
	"testing"

	"github.com/canopy-http/canopy/internal/filecache"
	"github.com/canopy-http/canopy/internal/minify"
	"github.com/stretchr/testify/assert"
)

func TestWriteResponseContentMinifiesMatchingContentType(t *testing.T) {
	s := &Server{minifier: minify.New()}

	types := stringSet{"text/html": struct{}{}}
	content := Bytes(200, "text/html", []byte("<html>  <body>  hi  </body>  </html>"))
	content.minifyTypes = &types

	w := httptest.NewRecorder()
	s.writeResponseContent(w, content)

	assert.Less(t, w.Body.Len(), len("<html>  <body>  hi  </body>  </html>"))
	assert.Contains(t, w.Body.String(), "hi")
}

func TestWriteResponseContentSkipsMinifyForNonMatchingType(t *testing.T) {
	s := &Server{minifier: minify.New()}

	types := stringSet{"text/html": struct{}{}}
	body := []byte(`{"a":   1}`)
	content := Bytes(200, "application/json", body)
	content.minifyTypes = &types

	w := httptest.NewRecorder()
	s.writeResponseContent(w, content)

	assert.Equal(t, string(body), w.Body.String())
}

func TestWriteResponseContentServesFileThroughCache(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "canopy-filecache-*.txt")
	assert.NoError(t, err)
	_, err = f.WriteString("cached file contents")
	assert.NoError(t, err)
	path := f.Name()
	f.Close()

	cache, err := filecache.New(1 << 20)
	assert.NoError(t, err)
	defer cache.Close()

	s := &Server{cache: cache}

	open := func() *os.File {
		h, err := os.Open(path)
		assert.NoError(t, err)
		return h
	}

	w1 := httptest.NewRecorder()
	s.writeResponseContent(w1, File(200, "text/plain", open()))
	assert.Equal(t, "cached file contents", w1.Body.String())

	w2 := httptest.NewRecorder()
	s.writeResponseContent(w2, File(200, "text/plain", open()))
	assert.Equal(t, "cached file contents", w2.Body.String())
}
