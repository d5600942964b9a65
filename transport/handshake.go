package transport

import (
	"fmt"
	"io"

	"golang.org/x/net/http2"
)

// DefaultSettings mirrors the teacher's conn.go defaults: a 1MiB
// connection window advertised up front via the initial SETTINGS/
// WINDOW_UPDATE pair.
var DefaultSettings = []http2.Setting{
	{ID: http2.SettingInitialWindowSize, Val: 1 << 20},
	{ID: http2.SettingMaxConcurrentStreams, Val: 250},
}

// DefaultConnectionWindow is the connection-level window announced
// alongside DefaultSettings, matching conn.go's maxWindow-65535 delta
// (HTTP/2 connections start with a 65535-byte implicit window).
const DefaultConnectionWindow = 1<<20 - 65535

// Handshake performs the client or server half of the HTTP/2 connection
// preface (RFC 7540 §3.5): for a client it writes the fixed preface
// bytes, for a server it reads and validates them, and both sides then
// exchange an initial SETTINGS frame. It must be called before the
// dispatcher's Run loop takes over ReadFrame.
func Handshake(c *Conn, isServer bool, settings []http2.Setting) error {
	if settings == nil {
		settings = DefaultSettings
	}

	if isServer {
		if err := readClientPreface(c.nc); err != nil {
			return err
		}
	} else {
		if _, err := c.nc.Write([]byte(http2.ClientPreface)); err != nil {
			return fmt.Errorf("transport: writing client preface: %w", err)
		}
	}

	c.writeMu.Lock()
	err := c.framer.WriteSettings(settings...)
	if err == nil {
		err = c.framer.WriteWindowUpdate(0, DefaultConnectionWindow)
	}
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("transport: writing initial settings: %w", err)
	}

	return awaitPeerSettings(c)
}

func readClientPreface(r io.Reader) error {
	buf := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("transport: reading client preface: %w", err)
	}
	if string(buf) != http2.ClientPreface {
		return fmt.Errorf("transport: invalid client preface")
	}
	return nil
}

// awaitPeerSettings blocks for the peer's initial SETTINGS frame and
// acknowledges it, the same handshake shape as the teacher's
// Conn.Handshake/serverConn.Handshake before they hand off to the
// steady-state read/write loops.
func awaitPeerSettings(c *Conn) error {
	fr, err := c.framer.ReadFrame()
	if err != nil {
		return fmt.Errorf("transport: reading peer settings: %w", err)
	}
	st, ok := fr.(*http2.SettingsFrame)
	if !ok {
		return fmt.Errorf("transport: expected SETTINGS, got %T", fr)
	}
	if st.IsAck() {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteSettingsAck()
}
