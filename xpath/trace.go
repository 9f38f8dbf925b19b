package xpath

import (
	"log/slog"
)

// Tracer follows the compiler through the rules of the grammar.
type Tracer interface {
	Enter(string)
	Leave(string)
	Error(string, error)
}

type discardTracer struct{}

func (_ discardTracer) Enter(_ string)          {}
func (_ discardTracer) Leave(_ string)          {}
func (_ discardTracer) Error(_ string, _ error) {}

type logTracer struct {
	logger *slog.Logger
	depth  int
}

func NewTracer(logger *slog.Logger) Tracer {
	if logger == nil {
		return discardTracer{}
	}
	return &logTracer{
		logger: logger,
	}
}

func (t *logTracer) Enter(rule string) {
	t.depth++
	t.logger.Debug("start compile expr", "expression", rule, "depth", t.depth)
}

func (t *logTracer) Leave(rule string) {
	t.depth--
	t.logger.Debug("done compile expr", "expression", rule, "depth", t.depth)
}

func (t *logTracer) Error(rule string, err error) {
	t.logger.Debug("fail compile expr", "expression", rule, "depth", t.depth, "err", err)
}
