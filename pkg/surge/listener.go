package surge

import (
	"log"

	"github.com/albertbausili/surge/pkg/exchange"
)

// LoggingListener logs connection lifecycle events.
type LoggingListener struct {
	Logger *log.Logger
}

func (l LoggingListener) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}

func (l LoggingListener) target(ctx *exchange.Context) string {
	if host, ok := ctx.Get(exchange.AttrTargetHost).(exchange.Host); ok {
		return host.String()
	}
	return "?"
}

func (l LoggingListener) ConnectionOpen(ctx *exchange.Context) {
	l.logf("connection open: %s", l.target(ctx))
}

func (l LoggingListener) ConnectionClosed(ctx *exchange.Context) {
	l.logf("connection closed: %s", l.target(ctx))
}

func (l LoggingListener) ConnectionTimeout(ctx *exchange.Context) {
	l.logf("connection timed out: %s", l.target(ctx))
}

func (l LoggingListener) FatalIOError(err error, ctx *exchange.Context) {
	l.logf("fatal I/O error on %s: %v", l.target(ctx), err)
}

func (l LoggingListener) FatalProtocolError(err error, ctx *exchange.Context) {
	l.logf("fatal protocol error on %s: %v", l.target(ctx), err)
}
