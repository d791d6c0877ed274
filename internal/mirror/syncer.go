package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/metrics"
)

const (
	DefaultWorkers      = 2
	DefaultQueueSize    = 1024
	DefaultMaxElapsed   = 30 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Options tunes a Syncer. Zero values fall back to defaults.
type Options struct {
	Workers      int
	QueueSize    int
	MaxElapsed   time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Mirror
	// NewBackOff overrides the retry schedule, mostly for tests.
	NewBackOff func() backoff.BackOff
}

// Syncer copies committed account state into the mirror store on its own
// goroutines. Failures are logged and counted and never reach the ledger.
type Syncer struct {
	writer       Writer
	queue        chan Projection
	workers      int
	maxElapsed   time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Mirror
	newBackOff   func() backoff.BackOff

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSyncer(w Writer, opts Options) *Syncer {
	s := &Syncer{
		writer:       w,
		workers:      opts.Workers,
		maxElapsed:   opts.MaxElapsed,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		newBackOff:   opts.NewBackOff,
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	s.queue = make(chan Projection, size)
	if s.maxElapsed <= 0 {
		s.maxElapsed = DefaultMaxElapsed
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = DefaultWriteTimeout
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.newBackOff == nil {
		s.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = s.maxElapsed
			return b
		}
	}
	return s
}

// Start launches the worker pool. Workers stop when ctx is cancelled or
// Close drains the queue.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.run(ctx)
	}
}

// Enqueue schedules a projection of acct without blocking. When the queue
// is full the update is dropped; the next commit of the account carries a
// newer state.
func (s *Syncer) Enqueue(acct account.Account) {
	p := FromAccount(acct)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Debug("mirror closed, dropping projection", "account_id", p.AccountID)
		return
	}
	select {
	case s.queue <- p:
		s.metrics.IncEnqueued()
	default:
		s.metrics.IncDropped()
		s.logger.Warn("mirror queue full, dropping projection",
			"account_id", p.AccountID,
			"version", p.Version,
		)
	}
}

// Close stops accepting projections and waits for queued ones to be
// written. If ctx expires first the remaining writes are abandoned.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if !started {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Syncer) run(ctx context.Context) {
	defer s.wg.Done()
	for p := range s.queue {
		s.metrics.Dequeued()
		if ctx.Err() != nil {
			s.metrics.IncWrite("abandoned")
			continue
		}
		s.write(ctx, p)
	}
}

func (s *Syncer) write(ctx context.Context, p Projection) {
	op := func() error {
		wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
		err := s.writer.Upsert(wctx, p)
		if errors.Is(err, ErrInvalidProjection) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncRetry()
		s.logger.Warn("mirror write failed, retrying",
			"account_id", p.AccountID,
			"version", p.Version,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		s.metrics.IncWrite("failed")
		s.logger.Error("mirror write abandoned",
			"account_id", p.AccountID,
			"version", p.Version,
			"error", err,
		)
		return
	}
	s.metrics.IncWrite("ok")
}
