// Package logging holds the structured logger shared by the library packages.
//
// Nothing is logged until SetLogger is called; cmd/scene-mcp wires it to
// stderr at startup.
package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs l for every package that logs through Logger.
// Pass nil to restore silence.
//
// Levels in use:
//   - [slog.LevelDebug]: per-query and per-band detail
//   - [slog.LevelInfo]: run lifecycle (compile, assembly start/finish, files written)
//   - [slog.LevelWarn]: recoverable skips (empty region, missed terrain)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
