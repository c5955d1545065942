// Package telemetry defines the error-capture and performance-trace sinks
// the data layer reports to. Sinks never influence control flow: every call
// goes through a wrapper that swallows panics.
package telemetry

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reporter captures an error together with context fields.
type Reporter interface {
	Capture(err error, fields map[string]any)
}

// Tracer starts named performance traces.
type Tracer interface {
	Start(name string) Trace
}

// Trace is one in-flight measurement.
type Trace interface {
	SetAttribute(key, value string)
	Stop()
}

// Nop is a Reporter and Tracer that does nothing.
type Nop struct{}

func (Nop) Capture(error, map[string]any) {}
func (Nop) Start(string) Trace            { return nopTrace{} }

type nopTrace struct{}

func (nopTrace) SetAttribute(string, string) {}
func (nopTrace) Stop()                       {}

// LogReporter writes captured errors to a zerolog logger at warn level.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter returns a reporter on the global logger.
func NewLogReporter() *LogReporter {
	return &LogReporter{logger: log.Logger.With().Str("component", "telemetry").Logger()}
}

// NewLogReporterWith returns a reporter on the given logger.
func NewLogReporterWith(l zerolog.Logger) *LogReporter {
	return &LogReporter{logger: l}
}

func (r *LogReporter) Capture(err error, fields map[string]any) {
	if err == nil {
		return
	}
	r.logger.Warn().Err(err).Fields(fields).Msg("captured error")
}

// Capture forwards to r, ignoring a nil reporter and recovering panics.
func Capture(r Reporter, err error, fields map[string]any) {
	if r == nil || err == nil {
		return
	}
	defer func() { _ = recover() }()
	r.Capture(err, fields)
}

// Start begins a trace on t. A nil tracer or a panicking one yields a no-op trace.
func Start(t Tracer, name string) (tr Trace) {
	if t == nil {
		return nopTrace{}
	}
	defer func() {
		if recover() != nil || tr == nil {
			tr = nopTrace{}
		}
	}()
	return safeTrace{t.Start(name)}
}

// safeTrace recovers panics from the wrapped trace.
type safeTrace struct {
	inner Trace
}

func (s safeTrace) SetAttribute(key, value string) {
	if s.inner == nil {
		return
	}
	defer func() { _ = recover() }()
	s.inner.SetAttribute(key, value)
}

func (s safeTrace) Stop() {
	if s.inner == nil {
		return
	}
	defer func() { _ = recover() }()
	s.inner.Stop()
}
