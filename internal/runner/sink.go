package runner

import (
	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/record"
)

// Sink receives every completed run record, typically the persistent store
// adapter. AppendRun must be idempotent on (runId, sampleId, condition).
type Sink interface {
	AppendRun(rec record.RunRecord) error
}

// sinkPump feeds a Sink from a bounded channel. Workers block on a full
// channel rather than accumulating pending writes. A failed append is
// retried once, then downgraded to a logged warning so the experiment
// never stalls on the store.
type sinkPump struct {
	ch     chan record.RunRecord
	done   chan struct{}
	sink   Sink
	logger *zap.Logger
}

func newSinkPump(sink Sink, depth int, logger *zap.Logger) *sinkPump {
	if depth <= 0 {
		depth = 8
	}
	p := &sinkPump{
		ch:     make(chan record.RunRecord, depth),
		done:   make(chan struct{}),
		sink:   sink,
		logger: logger,
	}
	go p.loop()
	return p
}

func (p *sinkPump) loop() {
	defer close(p.done)
	for rec := range p.ch {
		if err := p.sink.AppendRun(rec); err != nil {
			if err2 := p.sink.AppendRun(rec); err2 != nil {
				p.logger.Warn("store sink dropped record",
					zap.String("key", rec.Key()), zap.Error(err2))
			}
		}
	}
}

// Push blocks until the pump accepts the record.
func (p *sinkPump) Push(rec record.RunRecord) {
	if p == nil {
		return
	}
	p.ch <- rec
}

// Close drains remaining records and stops the pump.
func (p *sinkPump) Close() {
	if p == nil {
		return
	}
	close(p.ch)
	<-p.done
}
