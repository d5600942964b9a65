package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/domsolutions/h2disp/internal/logging"
	"golang.org/x/net/http2/hpack"
)

// Dialer opens an HTTP/2 connection over TLS with ALPN negotiation,
// generalizing the teacher's client.go Dialer/tryDial pair to hand back
// a transport.Conn instead of a teacher *Conn.
type Dialer struct {
	// Addr is the server's address in "host:port" form.
	Addr string

	// TLSConfig is the TLS configuration. If nil, a default one
	// requesting "h2" via ALPN is used, matching configureDialer.
	TLSConfig *tls.Config

	// Logger receives the resulting Conn's diagnostics.
	Logger logging.Logger
}

// ErrServerSupport is returned when the peer completes the TLS
// handshake but does not negotiate h2 over ALPN.
var ErrServerSupport = fmt.Errorf("transport: server does not support HTTP/2")

func (d *Dialer) tlsConfig() *tls.Config {
	if d.TLSConfig != nil {
		return d.TLSConfig
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"h2"},
	}
}

// Dial opens the TCP+TLS connection, confirms h2 was negotiated, and
// completes the HTTP/2 client preface handshake.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	var netDialer net.Dialer
	raw, err := netDialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}

	cfg := d.tlsConfig()
	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		_ = tlsConn.Close()
		return nil, ErrServerSupport
	}

	c := New(tlsConn, d.Logger, hpack.NewDecoder(4096, nil))
	if err := Handshake(c, false, nil); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
