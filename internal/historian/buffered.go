package historian

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
)

// DefaultQueueSize is the Buffered queue length used when none is given.
const DefaultQueueSize = 1024

var (
	// ErrQueueFull is returned by Buffered.Record when the backend has
	// fallen behind. The message is not recorded.
	ErrQueueFull = errors.New("historian: record queue full")

	// ErrClosed is returned by Buffered.Record after Close.
	ErrClosed = errors.New("historian: recorder closed")
)

// BufferStats counts messages Buffered could not record.
type BufferStats struct {
	Dropped uint64
	Failed  uint64
}

// Buffered records on its own goroutine so a slow backend never holds up
// message delivery. Record only enqueues.
//
// Thread Safety:
//   - Record and Close may be called from multiple goroutines.
//   - The wrapped recorder is only called from the worker goroutine.
type Buffered struct {
	next   Recorder
	logger mqtt.Logger
	queue  chan message.Message
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewBuffered starts a worker recording into next. Buffered owns next.
func NewBuffered(next Recorder, size int, logger mqtt.Logger) *Buffered {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = mqtt.NopLogger()
	}
	b := &Buffered{
		next:   next,
		logger: logger,
		queue:  make(chan message.Message, size),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Record queues msg without blocking. ctx is unused; each write gets its
// own timeout on the worker.
func (b *Buffered) Record(_ context.Context, msg message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.queue <- msg:
		return nil
	default:
		b.dropped.Add(1)
		return ErrQueueFull
	}
}

func (b *Buffered) run() {
	defer close(b.done)
	for msg := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := b.next.Record(ctx, msg)
		cancel()
		if err != nil {
			b.failed.Add(1)
			b.logger.Warn("historian write failed", "kind", msg.Kind().String(), "error", err)
		}
	}
}

// Stats returns the drop and failure counters.
func (b *Buffered) Stats() BufferStats {
	return BufferStats{Dropped: b.dropped.Load(), Failed: b.failed.Load()}
}

// Close records everything already queued, then closes the backend.
// Safe to call twice.
func (b *Buffered) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	return b.next.Close()
}
