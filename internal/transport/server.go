package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// TLSOptions configures certificate material and ACME for one endpoint,
// mirroring canopy.TLSConfig.
type TLSOptions struct {
	CertFile       string
	KeyFile        string
	ALPNProtocols  []string
	ACMEEnabled    bool
	ACMEHostPolicy []string
	ACMECacheDir   string
}

// ServerOptions configures one bound endpoint's *http.Server, adapted
// from air.go's Serve method (the autocert/h2c/http2 wiring).
type ServerOptions struct {
	Addr              string
	Handler           http.Handler
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	HTTP2 bool
	TLS   *TLSOptions

	ListenerOptions Options
}

// Server bundles the net.Listener and *http.Server for one endpoint.
type Server struct {
	httpServer *http.Server
	listener   *Listener
}

// Build assembles a Server from opts without starting it.
func Build(opts ServerOptions) (*Server, error) {
	handler := opts.Handler

	var tlsConfig *tls.Config
	if opts.TLS != nil {
		tlsConfig = &tls.Config{NextProtos: append([]string(nil), opts.TLS.ALPNProtocols...)}

		if opts.TLS.ACMEEnabled {
			mgr := &autocert.Manager{
				Prompt: autocert.AcceptTOS,
				Cache:  autocert.DirCache(opts.TLS.ACMECacheDir),
			}
			if len(opts.TLS.ACMEHostPolicy) > 0 {
				mgr.HostPolicy = autocert.HostWhitelist(opts.TLS.ACMEHostPolicy...)
			}
			tlsConfig.GetCertificate = mgr.GetCertificate
			for _, p := range mgr.TLSConfig().NextProtos {
				tlsConfig.NextProtos = appendUnique(tlsConfig.NextProtos, p)
			}
		} else if opts.TLS.CertFile != "" && opts.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(opts.TLS.CertFile, opts.TLS.KeyFile)
			if err != nil {
				return nil, err
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	} else if opts.HTTP2 {
		h2s := &http2.Server{IdleTimeout: opts.IdleTimeout}
		handler = h2c.NewHandler(handler, h2s)
	}

	hs := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		MaxHeaderBytes:    opts.MaxHeaderBytes,
	}

	l, err := Listen(opts.Addr, opts.ListenerOptions)
	if err != nil {
		return nil, err
	}

	return &Server{httpServer: hs, listener: l}, nil
}

// Serve runs the server's accept loop. It blocks until the listener is
// closed or Shutdown is called, at which point it returns
// http.ErrServerClosed.
func (s *Server) Serve() error {
	if s.httpServer.TLSConfig != nil {
		return s.httpServer.ServeTLS(s.listener, "", "")
	}
	return s.httpServer.Serve(s.listener)
}

// Shutdown gracefully drains in-flight requests, matching spec.md §5's
// graceful-close-on-timeout requirement.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr reports the bound listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func appendUnique(protos []string, p string) []string {
	for _, existing := range protos {
		if existing == p {
			return protos
		}
	}
	return append(protos, p)
}
