package logger

import (
	"context"
	"log/slog"
	"sync"
)

// AsyncHandler buffers records in a channel and hands them to the wrapped
// handler from a single background goroutine, so callers never block on
// slow sinks (network log shippers, etc).
type AsyncHandler struct {
	next    slog.Handler
	records chan slog.Record
	dropOld bool
	dropped uint64
	mu      sync.Mutex
	started bool
}

// NewAsyncHandler wraps next with a bounded, buffered dispatch queue of the
// given capacity. When the queue is full, dropOldest controls whether the
// oldest buffered record is discarded to make room (true) or whether the
// newest record is dropped instead (false).
func NewAsyncHandler(next slog.Handler, capacity int, dropOldest bool) *AsyncHandler {
	if capacity <= 0 {
		capacity = 1024
	}
	h := &AsyncHandler{
		next:    next,
		records: make(chan slog.Record, capacity),
		dropOld: dropOldest,
	}
	h.start()
	return h
}

func (h *AsyncHandler) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	go func() {
		for r := range h.records {
			_ = h.next.Handle(context.Background(), r)
		}
	}()
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, r slog.Record) error {
	select {
	case h.records <- r:
		return nil
	default:
	}

	if !h.dropOld {
		h.dropped++
		return nil
	}

	select {
	case <-h.records:
	default:
	}
	select {
	case h.records <- r:
	default:
		h.dropped++
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), records: h.records, dropOld: h.dropOld, started: true}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), records: h.records, dropOld: h.dropOld, started: true}
}

// Dropped returns the number of records discarded because the buffer was full.
func (h *AsyncHandler) Dropped() uint64 {
	return h.dropped
}
