package canopy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/aofei/mimesniffer"

	"github.com/canopy-http/canopy/incident"
	"github.com/canopy-http/canopy/internal/canopylog"
	"github.com/canopy-http/canopy/internal/filecache"
	"github.com/canopy-http/canopy/internal/minify"
	"github.com/canopy-http/canopy/internal/transport"
	"github.com/canopy-http/canopy/internal/workerpool"
)

// Server owns one DispatchIndex and a bound *transport.Server per
// configured Endpoint, running them concurrently and draining them
// together on Stop (adapted from air.go's Serve/Close pair). Each request
// holds one worker-pool slot while it is processed; slots are not bound
// to connections.
type Server struct {
	Config Config
	Logger *canopylog.Logger

	root *Group
	idx  *DispatchIndex
	pool *workerpool.Pool

	// minifier and cache are nil when their Config switch is off, in
	// which case writeResponseContent skips straight to WriteResponseContent.
	minifier *minify.Minifier
	cache    *filecache.Cache

	mu      sync.Mutex
	servers map[Endpoint]*transport.Server
}

// NewServer builds the dispatch index from root and prepares a Server
// ready to Start. BuildError aborts here, before any socket is opened, if
// the tree can't be resolved (spec.md §4.9).
func NewServer(root *Group, cfg Config) (*Server, error) {
	resolvedList := Resolve(root)
	rootAttrs := RootAttributes(root)

	endpoints := make([]Endpoint, 0, len(rootAttrs.Endpoints))
	for ep := range rootAttrs.Endpoints {
		endpoints = append(endpoints, ep)
	}
	for _, r := range resolvedList {
		for ep := range r.attrs.Endpoints {
			endpoints = append(endpoints, ep)
		}
	}
	endpoints = dedupeEndpoints(endpoints)

	if len(endpoints) == 0 {
		return nil, incident.BuildError{Message: "no endpoint bound in group tree"}
	}

	idx := BuildDispatchIndex(resolvedList, endpoints, rootAttrs)

	logger := canopylog.New(cfg.AppName, cfg.LogFormat)
	logger.Enabled = cfg.LogEnabled

	var mf *minify.Minifier
	if cfg.MinifierEnabled {
		mf = minify.New()
	}

	var cache *filecache.Cache
	if cfg.FileCacheMaxMemoryBytes > 0 {
		var err error
		cache, err = filecache.New(cfg.FileCacheMaxMemoryBytes)
		if err != nil {
			return nil, fmt.Errorf("canopy: building file content cache: %w", err)
		}
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		root:     root,
		idx:      idx,
		pool:     workerpool.New(cfg.WorkerPoolSize),
		minifier: mf,
		cache:    cache,
		servers:  map[Endpoint]*transport.Server{},
	}, nil
}

func dedupeEndpoints(eps []Endpoint) []Endpoint {
	seen := map[Endpoint]struct{}{}
	out := make([]Endpoint, 0, len(eps))
	for _, ep := range eps {
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}

// Start binds and serves every configured endpoint, blocking until all of
// them stop (normally via Stop, or abnormally on a transport error, in
// which case Start returns that error after the others have been asked to
// stop too).
func (s *Server) Start() error {
	rootAttrs := RootAttributes(s.root)

	errCh := make(chan error, len(rootAttrs.Endpoints))
	for ep, httpCfg := range rootAttrs.Endpoints {
		ep, httpCfg := ep, httpCfg

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.serveOne(ep, w, r)
		})

		idleTimeout := httpCfg.Connection.IdleTimeout
		if idleTimeout == 0 {
			idleTimeout = s.Config.IdleTimeout
		}

		srv, err := transport.Build(transport.ServerOptions{
			Addr:              fmt.Sprintf("%s:%d", ep.Address, ep.Port),
			Handler:           handler,
			ReadTimeout:       s.Config.ReadTimeout,
			ReadHeaderTimeout: s.Config.ReadHeaderTimeout,
			WriteTimeout:      s.Config.WriteTimeout,
			IdleTimeout:       idleTimeout,
			MaxHeaderBytes:    s.Config.MaxHeaderBytes,
			HTTP2:             httpCfg.Version == H2,
			TLS:               tlsOptionsOf(httpCfg.TLS),
			ListenerOptions: transport.Options{
				ProxyEnabled:           s.Config.ProxyEnabled,
				ProxyReadHeaderTimeout: s.Config.ProxyReadHeaderTimeout,
				ProxyRelayerWhitelist:  s.Config.ProxyRelayerIPWhitelist,
			},
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.servers[ep] = srv
		s.mu.Unlock()

		go func() {
			s.Logger.Infof("listening on %s", srv.Addr())
			if err := srv.Serve(); err != nil && err != http.ErrServerClosed {
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	var firstErr error
	for range rootAttrs.Endpoints {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			s.Stop()
		}
	}
	return firstErr
}

// Stop gracefully drains every endpoint, waiting up to
// s.Config.GracePeriod (0 means no deadline). When the period expires,
// Stop returns the deadline error; connections still active are not
// force-closed.
func (s *Server) Stop() error {
	ctx := context.Background()
	if s.Config.GracePeriod > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.GracePeriod)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for ep, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("canopy: shutting down endpoint %v: %w", ep, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) serveOne(ep Endpoint, w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Acquire(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer s.pool.Release()

	content := Process(s.idx, ep, w, r)
	s.writeResponseContent(w, content)
}

// writeResponseContent applies the server's optional file-content cache and
// minifier before handing content to WriteResponseContent: a File response
// is read through s.cache (keyed by the open handle's path) rather than
// re-read from disk on every request, and Bytes/Stream content whose
// Content-Type matches the response's cascaded MinifyTypes is run through
// s.minifier. Either step is skipped when its Config switch left the
// corresponding field nil.
func (s *Server) writeResponseContent(w http.ResponseWriter, content *ResponseContent) {
	if content == nil || content.Hijacked {
		return
	}

	if s.cache != nil && content.Kind == KindFile && content.File != nil {
		path := content.File.Name()
		b, err := s.cache.Get(path)
		content.File.Close()
		if err == nil {
			content.Kind = KindBytes
			content.Body = b
			content.File = nil
		}
	}

	if s.minifier != nil && content.minifyTypes != nil {
		s.minify(content)
	}

	WriteResponseContent(w, content)
}

// minify runs content's body through s.minifier when its Content-Type
// matches content.minifyTypes, rewriting it in place. Stream content is
// drained to run through the minifier and becomes Bytes content; content
// with no matching minifier is left untouched.
func (s *Server) minify(content *ResponseContent) {
	if content.Kind != KindBytes && content.Kind != KindStream {
		return
	}

	mimeType := content.ContentType
	if ss := strings.SplitN(mimeType, ";", 2); len(ss) > 1 {
		mimeType = strings.TrimSpace(ss[0])
	}
	if !content.minifyTypes.contains(mimeType) {
		return
	}

	body := content.Body
	if content.Kind == KindStream {
		if content.Stream == nil {
			return
		}
		b, err := io.ReadAll(content.Stream)
		if err != nil {
			return
		}
		body = b
	}

	out, ok, err := s.minifier.Minify(mimeType, body)
	if err != nil || !ok {
		if content.Kind == KindStream {
			content.Stream = bytes.NewReader(body)
		}
		return
	}
	content.Kind = KindBytes
	content.Body = out
	content.Stream = nil
}

// WriteResponseContent emits content to w, following spec.md §4.8's
// response-emission rule: successful zero-body responses still set
// Content-Length: 0.
func WriteResponseContent(w http.ResponseWriter, content *ResponseContent) {
	if content == nil || content.Hijacked {
		return
	}

	header := w.Header()
	for k, vs := range content.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	contentType := content.ContentType
	if contentType == "" && content.Kind == KindBytes && len(content.Body) > 0 {
		contentType = mimesniffer.Sniff(content.Body)
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	status := content.Status
	if status == 0 {
		status = http.StatusOK
	}

	switch content.Kind {
	case KindBytes, KindStatusOnly:
		header.Set("Content-Length", fmt.Sprint(len(content.Body)))
		w.WriteHeader(status)
		if len(content.Body) > 0 {
			w.Write(content.Body)
		}
	case KindStream:
		w.WriteHeader(status)
		if content.Stream != nil {
			copyStream(w, content.Stream)
		}
	case KindFile:
		w.WriteHeader(status)
		if content.File != nil {
			defer content.File.Close()
			copyStream(w, content.File)
		}
	}
}

func copyStream(w http.ResponseWriter, r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func tlsOptionsOf(cfg *TLSConfig) *transport.TLSOptions {
	if cfg == nil {
		return nil
	}
	return &transport.TLSOptions{
		CertFile:       cfg.CertChain,
		KeyFile:        cfg.PrivateKey,
		ALPNProtocols:  cfg.ALPNProtocols,
		ACMEEnabled:    cfg.ACMEEnabled,
		ACMEHostPolicy: cfg.ACMEHostPolicy,
	}
}
