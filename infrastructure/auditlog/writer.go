// Package auditlog provides the append-only audit trail sinks: an
// asynchronous bounded writer, a CBOR file encoder, and a structured
// log sink.
package auditlog

import (
	"sync"
	"sync/atomic"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// DefaultQueueSize is the bound of the writer's entry queue.
const DefaultQueueSize = 1024

// Writer decouples guard hot paths from audit persistence: Record
// never blocks. Entries flow through a bounded queue to a single
// drain goroutine; when the queue is full the oldest entry is dropped
// and counted, so a stalled disk slows nothing and loses the least
// recent data first.
type Writer struct {
	queue   chan entities.AuditEntry
	dest    ports.AuditSink
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// WriterOption configures a Writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	queueSize int
}

// WithQueueSize sets the queue bound.
func WithQueueSize(n int) WriterOption {
	return func(c *writerConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// NewWriter starts a writer draining into dest.
func NewWriter(dest ports.AuditSink, opts ...WriterOption) *Writer {
	cfg := writerConfig{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Writer{
		queue: make(chan entities.AuditEntry, cfg.queueSize),
		dest:  dest,
		done:  make(chan struct{}),
	}
	go w.drain()
	return w
}

// Record implements ports.AuditSink. Never blocks: a full queue sheds
// its oldest entry to make room.
func (w *Writer) Record(entry entities.AuditEntry) {
	for {
		select {
		case w.queue <- entry:
			return
		default:
		}
		select {
		case <-w.queue:
			w.dropped.Add(1)
		default:
		}
	}
}

// Dropped reports how many entries were shed since start.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops accepting entries and drains the queue before returning.
// Record must not be called after Close.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.queue)
		<-w.done
	})
}

func (w *Writer) drain() {
	defer close(w.done)
	for entry := range w.queue {
		w.dest.Record(entry)
	}
}

var _ ports.AuditSink = (*Writer)(nil)
