package sampler

import "github.com/fimoengine/fimo/tracing"

// NewDefault builds a Sampler using the best available Source for the
// current platform (NewLinuxSource on linux, an ErrNotSupported stub
// elsewhere — see the per-platform source_*.go files).
func NewDefault(tracer *tracing.Tracer) *Sampler {
	return New(tracer, NewLinuxSource)
}
