package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/valpere/perebench/internal/record"
)

// jsonlWriter serializes run records to an output stream. A single writer
// goroutine consumes a channel fed by all workers, so lines are never
// interleaved and appear on disk in completion order.
type jsonlWriter struct {
	ch   chan record.RunRecord
	done chan struct{}

	mu  sync.Mutex
	err error
	n   int
}

func newJSONLWriter(w io.Writer) *jsonlWriter {
	jw := &jsonlWriter{
		ch:   make(chan record.RunRecord, 16),
		done: make(chan struct{}),
	}
	go jw.loop(w)
	return jw
}

func (jw *jsonlWriter) loop(w io.Writer) {
	defer close(jw.done)
	bw := bufio.NewWriter(w)

	for rec := range jw.ch {
		if jw.Err() != nil {
			continue // drain; the first failure already doomed the run
		}
		data, err := json.Marshal(rec)
		if err == nil {
			_, err = bw.Write(append(data, '\n'))
		}
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			jw.setErr(fmt.Errorf("jsonl append %s: %w", rec.Key(), err))
			continue
		}
		jw.mu.Lock()
		jw.n++
		jw.mu.Unlock()
	}
}

// Append enqueues one record. The send blocks when the writer falls
// behind, which back-pressures the worker pool.
func (jw *jsonlWriter) Append(rec record.RunRecord) {
	jw.ch <- rec
}

// Close stops the writer and returns the first write error, if any.
func (jw *jsonlWriter) Close() error {
	close(jw.ch)
	<-jw.done
	return jw.Err()
}

func (jw *jsonlWriter) Err() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.err
}

func (jw *jsonlWriter) setErr(err error) {
	jw.mu.Lock()
	if jw.err == nil {
		jw.err = err
	}
	jw.mu.Unlock()
}

// Written reports how many lines reached the stream.
func (jw *jsonlWriter) Written() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.n
}
