package llmcall

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saitejavellanki/mathres/internal/providers"
)

const (
	defaultBuffer = 256
	writeTimeout  = 5 * time.Second
)

// Recorder handles fire-and-forget LLM call recording via a Sink. Calls
// are queued and written by a single background goroutine; when the queue
// is full the call is dropped rather than blocking the pipeline.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	ch      chan *Call
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewRecorder starts a recorder writing to sink. A nil sink yields a
// recorder that discards everything.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sink:   sink,
		logger: logger,
		ch:     make(chan *Call, defaultBuffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record captures an LLM call asynchronously.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	r.RecordCall(FromChatResult(result, opts))
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.sink == nil || call == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- call:
	default:
		r.dropped.Add(1)
		r.logger.Warn("llm call recorder queue full, dropping record", "agent", call.Agent, "run_id", call.RunID)
	}
}

// Dropped returns how many calls were discarded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting calls and waits for queued ones to be written.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for call := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.InsertLLMCall(ctx, call); err != nil {
			r.logger.Warn("failed to record llm call", "agent", call.Agent, "run_id", call.RunID, "error", err)
		}
		cancel()
	}
}
