// Command h2load is a small HTTP/2 load generator driving an
// h2disp/client.Session, grounded on the teacher's demo/main.go traffic
// patterns but replacing its ad hoc math/rand payload sizing with
// fastrand, per the teacher's own go.mod dependency.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"sync"
	"sync/atomic"
	"time"

	"github.com/domsolutions/h2disp/client"
	"github.com/domsolutions/h2disp/internal/logging"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastrand"
)

var (
	addr        = flag.String("addr", "localhost:8443", "server address")
	path        = flag.String("path", "/", "request path")
	concurrency = flag.Int("c", 10, "number of concurrent sessions")
	duration    = flag.Duration("duration", 10*time.Second, "how long to generate load")
	minBody     = flag.Uint("min-body", 0, "minimum POST body size in bytes")
	maxBody     = flag.Uint("max-body", 4096, "maximum POST body size in bytes, 0 disables POST bodies")
	insecure    = flag.Bool("insecure", false, "skip TLS certificate verification")
)

func main() {
	flag.Parse()

	logger := logging.Default("h2load")

	var sent, failed, bytesRecv atomic.Int64

	deadline := time.Now().Add(*duration)
	var wg sync.WaitGroup
	wg.Add(*concurrency)

	for i := 0; i < *concurrency; i++ {
		go func(worker int) {
			defer wg.Done()
			runWorker(worker, deadline, logger, &sent, &failed, &bytesRecv)
		}(i)
	}

	wg.Wait()

	logger.Info("load run complete",
		"sent", sent.Load(), "failed", failed.Load(), "bytesReceived", bytesRecv.Load())
}

func runWorker(id int, deadline time.Time, logger logging.Logger, sent, failed, bytesRecv *atomic.Int64) {
	ctx := context.Background()
	sess, err := client.Dial(ctx, client.Options{
		Addr:      *addr,
		TLSConfig: &tls.Config{InsecureSkipVerify: *insecure, NextProtos: []string{"h2"}},
		Logger:    logger,
	})
	if err != nil {
		logger.Error("dial failed", "worker", id, "err", err)
		failed.Add(1)
		return
	}
	defer sess.Close()

	for time.Now().Before(deadline) {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.SetRequestURI(*path)
		req.Header.SetHost(*addr)
		if *maxBody > 0 {
			req.Header.SetMethod(fasthttp.MethodPost)
			req.SetBody(randomPayload(*minBody, *maxBody))
		} else {
			req.Header.SetMethod(fasthttp.MethodGet)
		}

		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := sess.Do(reqCtx, req, resp)
		cancel()

		if err != nil {
			logger.Warn("request failed", "worker", id, "err", err)
			failed.Add(1)
		} else {
			sent.Add(1)
			bytesRecv.Add(int64(len(resp.Body())))
		}

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}
}

// randomPayload returns a body between min and max bytes, using
// fastrand rather than math/rand since it needs no locking across the
// worker goroutines generating load concurrently.
func randomPayload(min, max uint) []byte {
	size := min
	if max > min {
		size = min + uint(fastrand.Uint32n(uint32(max-min)))
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(fastrand.Uint32n(256))
	}
	return buf
}
