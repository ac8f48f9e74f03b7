// Package trace is a minimal tracing façade. Disabled (the default) it
// costs nothing and records nothing; enabled, it assigns trace ids, times
// spans, and emits them through the process logger. Run records carry only
// the trace id.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracer starts traces. The zero value is a disabled tracer.
type Tracer struct {
	enabled bool
	baseURL string
	logger  *zap.Logger
}

func New(enabled bool, baseURL string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{enabled: enabled, baseURL: baseURL, logger: logger}
}

// Trace is one recorded trace. All methods are safe on a nil receiver so
// callers never branch on whether tracing is on.
type Trace struct {
	id     string
	name   string
	start  time.Time
	logger *zap.Logger

	mu    sync.Mutex
	spans []span
}

type span struct {
	name     string
	duration time.Duration
}

// Start begins a trace, or returns nil when tracing is disabled.
func (t *Tracer) Start(name string) *Trace {
	if t == nil || !t.enabled {
		return nil
	}
	return &Trace{
		id:     uuid.New().String(),
		name:   name,
		start:  time.Now(),
		logger: t.logger,
	}
}

// ID returns the trace id, or "" when tracing is disabled.
func (tr *Trace) ID() string {
	if tr == nil {
		return ""
	}
	return tr.id
}

// Span times a stage; call the returned func when the stage completes.
func (tr *Trace) Span(name string) func() {
	if tr == nil {
		return func() {}
	}
	begin := time.Now()
	return func() {
		tr.mu.Lock()
		tr.spans = append(tr.spans, span{name: name, duration: time.Since(begin)})
		tr.mu.Unlock()
	}
}

// End flushes the trace through the logger.
func (tr *Trace) End() {
	if tr == nil {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	fields := []zap.Field{
		zap.String("trace", tr.id),
		zap.String("name", tr.name),
		zap.Duration("total", time.Since(tr.start)),
	}
	for _, s := range tr.spans {
		fields = append(fields, zap.Duration("span."+s.name, s.duration))
	}
	tr.logger.Debug("trace completed", fields...)
}
