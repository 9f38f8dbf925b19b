package xslt

import (
	"io"
	"log/slog"
	"os"
)

// Tracer follows the execution of the instructions of a stylesheet.
type Tracer interface {
	Enter(*Context)
	Leave(*Context)
	Error(*Context, error)
}

func NoopTracer() Tracer {
	return discardTracer{}
}

type discardTracer struct{}

func (_ discardTracer) Enter(_ *Context) {}

func (_ discardTracer) Leave(_ *Context) {}

func (_ discardTracer) Error(_ *Context, _ error) {}

type logTracer struct {
	logger *slog.Logger
}

// NewTracer reports every instruction executed to logger at debug level.
func NewTracer(logger *slog.Logger) Tracer {
	if logger == nil {
		return NoopTracer()
	}
	return logTracer{
		logger: logger,
	}
}

func Stderr() Tracer {
	return NewTracer(stdioLogger(os.Stderr))
}

func stdioLogger(w io.Writer) *slog.Logger {
	opts := slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return slog.New(slog.NewTextHandler(w, &opts))
}

func (t logTracer) Enter(ctx *Context) {
	t.logger.Debug("start instruction", traceArgs(ctx)...)
}

func (t logTracer) Leave(ctx *Context) {
	t.logger.Debug("done instruction", traceArgs(ctx)...)
}

func (t logTracer) Error(ctx *Context, err error) {
	args := append(traceArgs(ctx), "err", err.Error())
	t.logger.Error("error while processing instruction", args...)
}

func traceArgs(ctx *Context) []any {
	var node string
	if ctx.ContextNode != nil {
		node = ctx.ContextNode.QualifiedName()
	}
	return []any{
		"instruction",
		ctx.XslNode.QualifiedName(),
		"node",
		node,
		"mode",
		ctx.Mode,
		"depth",
		ctx.Depth,
	}
}
