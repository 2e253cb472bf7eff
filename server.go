package siesta

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// serverState tracks the lifecycle of a Server's listener (spec §3,
// "Server"): unbound -> bound -> started -> stopped. started is monotonic
// once reached; the server never goes back to bound.
type serverState uint8

const (
	stateUnbound serverState = iota
	stateBound
	stateStarted
	stateStopped
)

// Server is C7: it owns the transport listener, the route table, the
// directory mounts, the WebSocket endpoints, and the single lock protecting
// all three collections (spec §3, §4.7).
type Server struct {
	mu sync.Mutex

	scheme string // "http" or "https"
	host   string
	port   int
	log    *Logger
	config Config

	state      serverState
	listener   net.Listener
	httpServer *http.Server
	tlsConfig  *tls.Config

	routes      *routeTable
	directories map[string]*directoryMount
	websockets  map[string]*wsEndpoint
}

// NewServer parses addr (of the form "scheme://host[:port][/basepath]", spec
// §6 "Address literals") and returns a Server bound to it but not yet
// started. Only "http" and "https" are accepted; use "ws"/"wss" only when
// addressing a WebSocket endpoint from a client.
func NewServer(addr string, opts ...ConfigOption) (*Server, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, configErrorf("NewServer", "invalid address %q: %v", addr, err)
	}

	var scheme string
	switch u.Scheme {
	case "http":
		scheme = "http"
	case "https":
		scheme = "https"
	default:
		return nil, configErrorf("NewServer", "unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		host = "0.0.0.0"
	}

	port := 0
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return nil, configErrorf("NewServer", "invalid port %q", p)
		}
	}

	s := &Server{
		scheme:      scheme,
		host:        host,
		port:        port,
		log:         cfg.Logger,
		config:      cfg,
		state:       stateUnbound,
		routes:      newRouteTable(),
		directories: map[string]*directoryMount{},
		websockets:  map[string]*wsEndpoint{},
	}

	if scheme == "https" {
		s.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return s, nil
}

// AddCertificate installs a certificate chain and private key for a secure
// Server. It is a configuration error to call this on a plain-HTTP Server,
// or after Start (spec §4.7).
func (s *Server) AddCertificate(certPEM, keyPEM []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tlsConfig == nil {
		return configErrorf("AddCertificate", "server is not in secure (https) mode")
	}
	if s.state >= stateStarted {
		return configErrorf("AddCertificate", "cannot add a certificate after Start")
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return configErrorf("AddCertificate", "parsing certificate/key: %v", err)
	}

	s.tlsConfig.Certificates = append(s.tlsConfig.Certificates, cert)
	return nil
}

// Start idempotently starts the Server's listener. For a secure Server with
// no certificate installed, it installs the built-in self-signed
// development certificate first (spec §6, "TLS defaults").
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state >= stateStarted {
		s.mu.Unlock()
		return nil
	}

	if s.tlsConfig != nil && len(s.tlsConfig.Certificates) == 0 {
		cert, err := selfSignedCertificate()
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("siesta: generating default certificate: %w", err)
		}
		s.tlsConfig.Certificates = append(s.tlsConfig.Certificates, cert)
	}

	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	sl, err := newSiestaListener(addr, s.config)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("siesta: binding %s: %w", addr, err)
	}

	var ln net.Listener = sl
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.state = stateStarted

	s.httpServer = &http.Server{
		Handler:      http.HandlerFunc(s.serveHTTP),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	httpServer := s.httpServer
	listener := s.listener
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("server: %v", err)
		}
	}()

	return nil
}

// Port returns the bound TCP port. It is a configuration error to call Port
// before Start; after Start it returns the OS-assigned port if the address
// requested port 0 (spec §4.7, §8 property 9).
func (s *Server) Port() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state < stateStarted {
		return 0, configErrorf("Port", "server has not been started")
	}
	return s.port, nil
}

// Close stops the listener and releases the Server. Per spec §4.7, it is a
// programming error to destroy a Server with outstanding routes,
// directories, or WebSocket endpoints still registered; Close reports that
// as an error rather than silently leaking or panicking.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.liveRegistrationsLocked(); n > 0 {
		return fmt.Errorf(
			"siesta: Close called with %d route/directory/websocket "+
				"registration(s) still outstanding", n,
		)
	}

	if s.state == stateStopped {
		return nil
	}
	s.state = stateStopped

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// directoryFor returns the directory mount whose uriPrefix is the longest
// match for path, if any (spec §4.4).
func (s *Server) directoryFor(path string) (*directoryMount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *directoryMount
	bestLen := -1
	for prefix, d := range s.directories {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			best = d
			bestLen = len(prefix)
		}
	}
	return best, best != nil
}

func (s *Server) liveRegistrationsLocked() int {
	n := len(s.directories) + len(s.websockets)
	for _, byBase := range s.routes.methods {
		for _, bucket := range byBase {
			n += len(bucket.routes)
		}
	}
	return n
}
