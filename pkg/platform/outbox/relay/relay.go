// Package relay moves pending outbox entries to the broker.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"habitat/pkg/platform/circuit"
	"habitat/pkg/platform/outbox"
)

// Publisher delivers a batch to the broker. All or nothing from the relay's
// point of view: a failed batch is retried whole on the next tick.
type Publisher interface {
	Publish(ctx context.Context, entries []outbox.Entry) error
}

// TxRunner scopes one relay batch. The postgres runner lets FOR UPDATE SKIP
// LOCKED hold rows until they are marked.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Relay struct {
	store     outbox.Store
	publisher Publisher
	breaker   *circuit.Breaker
	runInTx   TxRunner
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time

	// probeInterval spaces attempts while the breaker is open.
	probeInterval time.Duration
	lastAttempt   time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithProbeInterval sets how long the relay waits between attempts while the
// breaker is open. Defaults to five intervals.
func WithProbeInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.probeInterval = d
		}
	}
}

func WithTxRunner(run TxRunner) Option {
	return func(r *Relay) { r.runInTx = run }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) { r.breaker = b }
}

func New(store outbox.Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		breaker:   circuit.New("outbox-relay", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(1)),
		runInTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.probeInterval == 0 {
		r.probeInterval = 5 * r.interval
	}
	return r
}

// Run ticks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.attempt(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

// Start runs the relay in the background. The returned stop func cancels it
// and waits for the loop to exit, whether or not ctx is done.
func (r *Relay) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// attempt runs a batch unless the breaker is open and the last attempt is
// more recent than the probe interval.
func (r *Relay) attempt(ctx context.Context) (bool, error) {
	now := r.now()
	if r.breaker.IsOpen() && now.Sub(r.lastAttempt) < r.probeInterval {
		return false, nil
	}
	r.lastAttempt = now
	_, err := r.Tick(ctx)
	return true, err
}

// Tick relays one batch and returns how many entries were published.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	start := time.Now()
	published := 0
	err := r.runInTx(ctx, func(ctx context.Context) error {
		entries, err := r.store.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, entries); err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(entries)
		return nil
	})
	if err != nil {
		_, change := r.breaker.RecordFailure()
		if change.Opened {
			r.logger.WarnContext(ctx, "outbox relay circuit opened", "breaker", r.breaker.Name())
			r.metrics.setBreaker(true)
		}
		r.metrics.observeBatch(start, 0, true)
		return 0, err
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "outbox relay circuit closed", "breaker", r.breaker.Name())
		r.metrics.setBreaker(false)
	}
	r.metrics.observeBatch(start, published, false)
	return published, nil
}
