// Package worker is the dispatch pool: N cooperative workers pulling
// QueueEntry values from the shared store, picking a processor via the
// Health Oracle, submitting the payment, and retrying or dead-lettering on
// failure.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rinha/payment-intermediary/internal/health"
	"github.com/rinha/payment-intermediary/internal/processor"
	"github.com/rinha/payment-intermediary/internal/types"
)

const dequeueTimeout = 1 * time.Second

// Queue is the subset of Store the dispatch loop needs, narrowed so tests
// can substitute a fake queue instead of a real Redis instance.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (types.QueueEntry, bool, error)
	Requeue(ctx context.Context, entry types.QueueEntry, delay time.Duration) error
	DeadLetter(ctx context.Context, entry types.QueueEntry) error
}

// HealthReader is the read side of the Health Oracle the dispatch loop
// depends on.
type HealthReader interface {
	Read(ctx context.Context, id types.ProcessorID) types.HealthSnapshot
}

// Recorder is the accounting commit path.
type Recorder interface {
	Record(ctx context.Context, processor types.ProcessorID, p types.Payment) (bool, error)
}

// Processors resolves a ProcessorID to a Submitter, mirroring
// *processor.Pool's Get.
type Processors interface {
	Get(id types.ProcessorID) processor.Submitter
}

// Pool runs numWorkers independent dispatch loops. Workers share no
// mutable state with each other or with the Oracle — coordination happens
// entirely through Store.
type Pool struct {
	store       Queue
	processors  Processors
	oracle      HealthReader
	accounting  Recorder
	numWorkers  int
	maxAttempts int
	log         zerolog.Logger

	wg sync.WaitGroup
}

func New(
	s Queue,
	p Processors,
	o HealthReader,
	a Recorder,
	numWorkers, maxAttempts int,
	log zerolog.Logger,
) *Pool {
	return &Pool{
		store:       s,
		processors:  p,
		oracle:      o,
		accounting:  a,
		numWorkers:  numWorkers,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (pool *Pool) Start(ctx context.Context) {
	for i := 0; i < pool.numWorkers; i++ {
		pool.wg.Add(1)
		go pool.loop(ctx, i)
	}
}

// Wait blocks until every worker has returned. Workers return only after
// the ctx passed to Start is cancelled and their in-flight dispatch has
// finished; Wait itself has no deadline, so callers cancel that ctx and
// bound the wait with their own drain deadline.
func (pool *Pool) Wait() {
	pool.wg.Wait()
}

// loop uses ctx only to unblock the dequeue wait promptly on shutdown. Once
// an entry is dequeued, dispatch runs against a detached context: the
// client already received 202 and owns nothing here — the work belongs to
// the queue, not to whatever cancelled ctx, so an in-flight attempt is
// never aborted mid-request on shutdown.
func (pool *Pool) loop(ctx context.Context, id int) {
	defer pool.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, ok, err := pool.store.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			pool.log.Warn().Err(err).Int("worker", id).Msg("worker: dequeue failed")
			continue
		}
		if !ok {
			continue
		}

		pool.dispatch(context.Background(), entry)
	}
}

// dispatch runs exactly one attempt for entry: choose a processor, submit,
// and act on the outcome.
func (pool *Pool) dispatch(ctx context.Context, entry types.QueueEntry) {
	def := pool.oracle.Read(ctx, types.ProcessorDefault)
	fallback := pool.oracle.Read(ctx, types.ProcessorFallback)
	chosen := health.Choose(def, fallback)

	outcome, err := pool.processors.Get(chosen).Submit(ctx, entry.Payment)

	switch outcome {
	case processor.Success, processor.Duplicate:
		pool.commit(ctx, chosen, entry)
	case processor.Permanent:
		entry.LastError = errString(err)
		pool.deadLetter(ctx, entry)
	default: // Transient
		pool.retry(ctx, entry, errString(err))
	}
}

func (pool *Pool) commit(ctx context.Context, chosen types.ProcessorID, entry types.QueueEntry) {
	if _, err := pool.accounting.Record(ctx, chosen, entry.Payment); err != nil {
		pool.log.Error().Err(err).Str("correlationId", entry.Payment.CorrelationID).Msg("worker: accounting commit failed")
	}
}

func (pool *Pool) retry(ctx context.Context, entry types.QueueEntry, lastErr string) {
	entry.Attempts++
	entry.LastError = lastErr
	if entry.Attempts >= pool.maxAttempts {
		pool.deadLetter(ctx, entry)
		return
	}
	if err := pool.store.Requeue(ctx, entry, backoff(entry.Attempts)); err != nil {
		pool.log.Error().Err(err).Str("correlationId", entry.Payment.CorrelationID).Msg("worker: requeue failed")
	}
}

// deadLetter stamps entry with a fresh audit id before writing it — a
// client may reuse the same correlationId after a permanent failure, so
// CorrelationID alone cannot identify which dead-letter row a later log
// line refers to.
func (pool *Pool) deadLetter(ctx context.Context, entry types.QueueEntry) {
	entry.DeadLetterID = uuid.NewString()
	if err := pool.store.DeadLetter(ctx, entry); err != nil {
		pool.log.Error().Err(err).Str("correlationId", entry.Payment.CorrelationID).Msg("worker: dead-letter failed")
		return
	}
	pool.log.Warn().
		Str("correlationId", entry.Payment.CorrelationID).
		Str("deadLetterId", entry.DeadLetterID).
		Str("lastError", entry.LastError).
		Msg("worker: payment dead-lettered")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
