// Package logging wraps log15 the way ngrok-go's log package wraps its
// own pluggable backends: a small interface the rest of the module codes
// against, with a log15-backed default and a discard backend for tests.
package logging

import (
	"github.com/inconshreveable/log15"
)

// Logger is the interface every dispatcher/transport/client/server
// component is configured with. ctx is alternating key/value pairs, the
// same convention log15.Logger uses.
type Logger interface {
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
}

// log15Logger adapts a log15.Logger to Logger.
type log15Logger struct {
	l log15.Logger
}

// New wraps an existing log15.Logger. Pass log15.New() for a sensible
// stderr-writing default.
func New(l log15.Logger) Logger {
	return log15Logger{l: l}
}

func (l log15Logger) Debug(msg string, ctx ...interface{}) { l.l.Debug(msg, ctx...) }
func (l log15Logger) Info(msg string, ctx ...interface{})  { l.l.Info(msg, ctx...) }
func (l log15Logger) Warn(msg string, ctx ...interface{})  { l.l.Warn(msg, ctx...) }
func (l log15Logger) Error(msg string, ctx ...interface{}) { l.l.Error(msg, ctx...) }

type discard struct{}

func (discard) Debug(string, ...interface{}) {}
func (discard) Info(string, ...interface{})  {}
func (discard) Warn(string, ...interface{})  {}
func (discard) Error(string, ...interface{}) {}

// Discard is the no-op Logger used when nothing is configured.
var Discard Logger = discard{}

// Default returns a log15 logger writing human-readable output to
// stderr at the given name, the shape every cmd/ binary in this module
// constructs at startup.
func Default(name string) Logger {
	root := log15.New("component", name)
	root.SetHandler(log15.StderrHandler)
	return New(root)
}
