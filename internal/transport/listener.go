// Package transport implements canopy's net.Listener and net/http wiring:
// a TCP keep-alive listener with optional PROXY protocol support (adapted
// from the teacher's listener.go), and the HTTP/1.1 + HTTP/2 (h2c or TLS)
// + ACME server assembly (adapted from air.go's Serve method).
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Listener wraps a *net.TCPListener, setting keep-alive on every accepted
// connection and optionally speaking the PROXY protocol (v1, text header)
// for connections from an allow-listed relayer.
type Listener struct {
	*net.TCPListener

	proxyEnabled     bool
	proxyReadTimeout time.Duration
	allowedRelayers  []*net.IPNet
}

// Options configures a Listener.
type Options struct {
	// ProxyEnabled turns on PROXY protocol v1 parsing for accepted
	// connections.
	ProxyEnabled bool
	// ProxyReadHeaderTimeout bounds how long Listener waits for the PROXY
	// header before giving up (0 means no timeout).
	ProxyReadHeaderTimeout time.Duration
	// ProxyRelayerWhitelist restricts PROXY header parsing to connections
	// whose remote IP is in this list (CIDR or bare IP); empty means
	// every connection is eligible.
	ProxyRelayerWhitelist []string
}

// Listen opens a TCP listener on address with opts applied.
func Listen(address string, opts Options) (*Listener, error) {
	nl, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	var nets []*net.IPNet
	for _, s := range opts.ProxyRelayerWhitelist {
		if ip := net.ParseIP(s); ip != nil {
			switch {
			case ip.To4() != nil:
				s = ip.String() + "/32"
			default:
				s = ip.String() + "/128"
			}
		}
		if _, ipNet, _ := net.ParseCIDR(s); ipNet != nil {
			nets = append(nets, ipNet)
		}
	}

	return &Listener{
		TCPListener:      nl.(*net.TCPListener),
		proxyEnabled:     opts.ProxyEnabled,
		proxyReadTimeout: opts.ProxyReadHeaderTimeout,
		allowedRelayers:  nets,
	}, nil
}

// Accept implements net.Listener, applying TCP keep-alive and, when
// enabled, PROXY protocol unwrapping.
func (l *Listener) Accept() (net.Conn, error) {
	tc, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}

	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)

	if !l.proxyEnabled {
		return tc, nil
	}

	eligible := len(l.allowedRelayers) == 0
	if !eligible {
		host, _, _ := net.SplitHostPort(tc.RemoteAddr().String())
		ip := net.ParseIP(host)
		for _, n := range l.allowedRelayers {
			if n.Contains(ip) {
				eligible = true
				break
			}
		}
	}
	if !eligible {
		return tc, nil
	}

	return &proxyConn{
		Conn:           tc,
		bufReader:      bufio.NewReader(tc),
		readHeaderOnce: &sync.Once{},
		readTimeout:    l.proxyReadTimeout,
	}, nil
}

// proxyConn wraps a net.Conn that may be speaking PROXY protocol v1,
// lazily parsing the header on first Read/LocalAddr/RemoteAddr call.
type proxyConn struct {
	net.Conn

	bufReader      *bufio.Reader
	srcAddr        *net.TCPAddr
	dstAddr        *net.TCPAddr
	readHeaderOnce *sync.Once
	readHeaderErr  error
	readTimeout    time.Duration
}

func (pc *proxyConn) Read(b []byte) (int, error) {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.readHeaderErr != nil {
		return 0, pc.readHeaderErr
	}
	return pc.bufReader.Read(b)
}

func (pc *proxyConn) LocalAddr() net.Addr {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.dstAddr != nil {
		return pc.dstAddr
	}
	return pc.Conn.LocalAddr()
}

func (pc *proxyConn) RemoteAddr() net.Addr {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.srcAddr != nil {
		return pc.srcAddr
	}
	return pc.Conn.RemoteAddr()
}

// readHeader parses a PROXY protocol v1 text header ("PROXY TCP4 <src>
// <dst> <srcport> <dstport>\r\n"). Binary v2 headers are not supported
// (no v2 relayer has been exercised against this transport yet).
func (pc *proxyConn) readHeader() {
	if pc.readTimeout != 0 {
		pc.SetReadDeadline(time.Now().Add(pc.readTimeout))
		defer pc.SetReadDeadline(time.Time{})
	}
	defer func() {
		if pc.readHeaderErr != nil && pc.readHeaderErr != io.EOF {
			pc.bufReader = bufio.NewReader(pc.Conn)
		}
	}()

	for i := 0; i < len("PROXY "); i++ {
		b, err := pc.bufReader.Peek(i + 1)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			pc.readHeaderErr = err
			return
		}
		if b[i] != "PROXY "[i] {
			return
		}
	}

	header, err := pc.bufReader.ReadString('\n')
	if err != nil {
		pc.readHeaderErr = err
		return
	}
	header = strings.TrimRight(header, "\r\n")

	parts := strings.Split(header, " ")
	if len(parts) != 6 {
		pc.readHeaderErr = fmt.Errorf("canopy: malformed PROXY header: %s", header)
		return
	}

	switch parts[1] {
	case "TCP4", "TCP6":
	default:
		pc.readHeaderErr = fmt.Errorf("canopy: unsupported PROXY transport: %s", parts[1])
		return
	}

	srcIP := net.ParseIP(parts[2])
	dstIP := net.ParseIP(parts[3])
	if srcIP == nil || dstIP == nil {
		pc.readHeaderErr = fmt.Errorf("canopy: invalid PROXY address in header: %s", header)
		return
	}

	srcPort, err1 := strconv.Atoi(parts[4])
	dstPort, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		pc.readHeaderErr = fmt.Errorf("canopy: invalid PROXY port in header: %s", header)
		return
	}

	pc.srcAddr = &net.TCPAddr{IP: srcIP, Port: srcPort}
	pc.dstAddr = &net.TCPAddr{IP: dstIP, Port: dstPort}
}
