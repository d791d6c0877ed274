package notification

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultAsyncWorkers   = 2
	DefaultAsyncQueueSize = 256
	DefaultSendTimeout    = 5 * time.Second
)

// AsyncOptions tunes an Async notifier. Zero values fall back to defaults.
type AsyncOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Async delivers messages through another Notifier on background workers.
// Send only enqueues, so a slow channel never delays the caller; delivery
// failures are logged.
type Async struct {
	next    Notifier
	queue   chan Message
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync starts the workers.
func NewAsync(next Notifier, opts AsyncOptions) *Async {
	a := &Async{next: next, timeout: opts.SendTimeout, logger: opts.Logger}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultAsyncWorkers
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultAsyncQueueSize
	}
	if a.timeout <= 0 {
		a.timeout = DefaultSendTimeout
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a.queue = make(chan Message, size)
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.run()
	}
	return a
}

// Send queues message without blocking. A full or closed queue drops it.
func (a *Async) Send(_ context.Context, message Message) error {
	if message.SentAt.IsZero() {
		message.SentAt = time.Now().UTC()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("notifier closed, dropping message", "kind", message.Kind, "reference", message.Reference)
		return nil
	}
	select {
	case a.queue <- message:
	default:
		a.logger.Warn("notification queue full, dropping message", "kind", message.Kind, "reference", message.Reference)
	}
	return nil
}

// Close stops accepting messages and waits for queued ones to be delivered
// or for ctx to expire.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for message := range a.queue {
		a.deliver(message)
	}
}

func (a *Async) deliver(message Message) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.next.Send(ctx, message); err != nil {
		a.logger.Error("notification delivery failed",
			"kind", message.Kind,
			"reference", message.Reference,
			"error", err,
		)
	}
}
