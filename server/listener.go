package server

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/domsolutions/h2disp/internal/logging"
)

// Server accepts TLS connections and serves each as its own HTTP/2
// Conn, grounded on the teacher's Server.Serve/ListenAndServeTLS in
// server_fasthttp.go.
type Server struct {
	Opts Options
}

// ErrNotNegotiatedH2 is returned when a client completes the TLS
// handshake without selecting "h2" via ALPN.
var ErrNotNegotiatedH2 = errors.New("server: client did not negotiate h2")

// ListenAndServeTLS listens on addr and serves HTTP/2 over TLS using
// the given certificate.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	return s.ListenAndServe(addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2"},
	})
}

// ListenAndServe listens on addr using the given TLS config, which must
// advertise "h2" in NextProtos.
func (s *Server) ListenAndServe(addr string, tlsConfig *tls.Config) error {
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections off ln until Accept fails, handing each one
// off to its own goroutine. A *tls.Conn is handshaken there and closed
// unless it negotiated h2; any other net.Conn is served as HTTP/2
// directly.
func (s *Server) Serve(ln net.Listener) error {
	logger := s.Opts.Logger
	if logger == nil {
		logger = logging.Discard
	}

	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serveOne(nc, logger)
	}
}

func (s *Server) serveOne(nc net.Conn, logger logging.Logger) {
	if tlsConn, ok := nc.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			logger.Warn("tls handshake failed", "err", err)
			_ = nc.Close()
			return
		}
		if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
			logger.Warn("rejecting connection", "remote", nc.RemoteAddr(), "err", ErrNotNegotiatedH2)
			_ = nc.Close()
			return
		}
	}

	conn, err := NewConn(nc, s.Opts)
	if err != nil {
		logger.Warn("rejecting connection", "remote", nc.RemoteAddr(), "err", err)
		_ = nc.Close()
		return
	}

	if err := conn.Serve(); err != nil {
		logger.Debug("connection ended", "remote", nc.RemoteAddr(), "err", err)
	}
}
