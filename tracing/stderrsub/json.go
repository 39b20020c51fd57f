package stderrsub

import (
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/fimoengine/fimo/tracing"
)

// jsonRenderer renders log_message events as newline-delimited JSON
// through a stumpy-backed logiface.Logger, instead of the default
// ANSI-colored plain text path. It writes into a queueWriter so the
// same bounded-block worker queue backs both render modes.
type jsonRenderer struct {
	logger *logiface.Logger[*stumpy.Event]
}

// queueWriter adapts the bounded queue to io.Writer, so stumpy's
// per-event output lands on the same worker goroutine as the plain
// text renderer.
type queueWriter struct {
	q *queue
}

func (w queueWriter) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)
	w.q.push(message{line: string(line)})
	return len(p), nil
}

func newJSONRenderer(q *queue) *jsonRenderer {
	return &jsonRenderer{
		logger: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(queueWriter{q: q})),
		),
	}
}

func (r *jsonRenderer) render(info *tracing.EventInfo, backtrace []string, message string) {
	b := r.logger.Build(info.Level).
		Str("target", info.Target).
		Str("scope", info.Scope).
		Str("file", info.FileName).
		Int("line", int(info.LineNumber))
	if len(backtrace) > 0 {
		b = b.Str("spans", strings.Join(backtrace, " > "))
	}
	b.Log(message)
}
