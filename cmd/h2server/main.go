// Command h2server runs an h2disp-backed HTTP/2 server, either serving
// a static certificate pair or bootstrapping one from Let's Encrypt via
// autocert, grounded on the teacher's examples/autocert/main.go.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"time"

	"github.com/domsolutions/h2disp/internal/logging"
	"github.com/domsolutions/h2disp/server"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

var (
	addr          = flag.String("addr", ":8443", "address to listen on")
	certFile      = flag.String("cert", "", "TLS certificate file; leave empty to use -autocert-host instead")
	keyFile       = flag.String("key", "", "TLS key file; leave empty to use -autocert-host instead")
	autocertHost  = flag.String("autocert-host", "", "hostname to request a Let's Encrypt certificate for")
	autocertCache = flag.String("autocert-cache", "./certs", "directory autocert caches issued certificates in")

	maxConcurrentStreams = flag.Uint("max-concurrent-streams", 250, "per-connection stream admission limit, 0 disables")
	maxIdleTime          = flag.Duration("max-idle-time", 2*time.Minute, "GOAWAY a connection idle this long, 0 disables")
	maxStreamLifetime    = flag.Duration("max-stream-lifetime", 30*time.Second, "reset a stream still open this long, 0 disables")
)

func main() {
	flag.Parse()

	logger := logging.Default("h2server")

	tlsConfig, err := buildTLSConfig()
	if err != nil {
		logger.Error("building TLS config", "err", err)
		return
	}

	srv := &server.Server{
		Opts: server.Options{
			Handler:              echoHandler,
			MaxConcurrentStreams: uint32(*maxConcurrentStreams),
			MaxIdleTime:          *maxIdleTime,
			MaxStreamLifetime:    *maxStreamLifetime,
			Logger:               logger,
		},
	}

	logger.Info("listening", "addr", *addr)
	if err := srv.ListenAndServe(*addr, tlsConfig); err != nil {
		logger.Error("server stopped", "err", err)
	}
}

func buildTLSConfig() (*tls.Config, error) {
	if *certFile != "" && *keyFile != "" {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			return nil, err
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2"},
		}, nil
	}

	if *autocertHost == "" {
		return nil, fmt.Errorf("h2server: specify either -cert/-key or -autocert-host")
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(*autocertHost),
		Cache:      autocert.DirCache(*autocertCache),
	}
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", acme.ALPNProto},
	}, nil
}

func echoHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain; charset=utf-8")
	if ctx.Request.Header.IsPost() {
		ctx.Write(ctx.Request.Body())
		return
	}
	fmt.Fprintf(ctx, "h2disp demo server, path=%s\n", ctx.Path())
}
