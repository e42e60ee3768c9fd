package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinha/payment-intermediary/internal/processor"
	"github.com/rinha/payment-intermediary/internal/types"
)

type fakeQueue struct {
	mu          sync.Mutex
	requeued    []types.QueueEntry
	deadLetters []types.QueueEntry
}

func (f *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (types.QueueEntry, bool, error) {
	return types.QueueEntry{}, false, nil
}

func (f *fakeQueue) Requeue(ctx context.Context, entry types.QueueEntry, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, entry)
	return nil
}

func (f *fakeQueue) DeadLetter(ctx context.Context, entry types.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, entry)
	return nil
}

type fakeHealthReader struct{}

func (fakeHealthReader) Read(ctx context.Context, id types.ProcessorID) types.HealthSnapshot {
	return types.HealthSnapshot{Failing: false, MinResponseTime: 10}
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []types.Payment
}

func (f *fakeRecorder) Record(ctx context.Context, proc types.ProcessorID, p types.Payment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, p)
	return true, nil
}

type fakeSubmitter struct {
	outcome processor.Outcome
	err     error
}

func (f fakeSubmitter) Submit(ctx context.Context, p types.Payment) (processor.Outcome, error) {
	return f.outcome, f.err
}

type fakeProcessors struct {
	submitter fakeSubmitter
}

func (f fakeProcessors) Get(id types.ProcessorID) processor.Submitter {
	return f.submitter
}

func newTestPool(submitter fakeSubmitter) (*Pool, *fakeQueue, *fakeRecorder) {
	q := &fakeQueue{}
	r := &fakeRecorder{}
	pool := New(q, fakeProcessors{submitter: submitter}, fakeHealthReader{}, r, 1, 3, zerolog.Nop())
	return pool, q, r
}

func testEntry() types.QueueEntry {
	return types.QueueEntry{
		Payment: types.Payment{
			CorrelationID: "11111111-1111-1111-1111-111111111111",
			AmountCents:   1990,
			RequestedAt:   time.Now().UTC(),
		},
	}
}

func TestDispatch_SuccessCommitsAccounting(t *testing.T) {
	t.Parallel()

	pool, q, r := newTestPool(fakeSubmitter{outcome: processor.Success})
	pool.dispatch(context.Background(), testEntry())

	require.Len(t, r.recorded, 1)
	assert.Equal(t, testEntry().Payment.CorrelationID, r.recorded[0].CorrelationID)
	assert.Empty(t, q.requeued)
	assert.Empty(t, q.deadLetters)
}

func TestDispatch_DuplicateCommitsAccounting(t *testing.T) {
	t.Parallel()

	pool, _, r := newTestPool(fakeSubmitter{outcome: processor.Duplicate})
	pool.dispatch(context.Background(), testEntry())

	assert.Len(t, r.recorded, 1)
}

func TestDispatch_TransientRequeues(t *testing.T) {
	t.Parallel()

	pool, q, r := newTestPool(fakeSubmitter{outcome: processor.Transient, err: errors.New("boom")})
	pool.dispatch(context.Background(), testEntry())

	require.Len(t, q.requeued, 1)
	assert.Equal(t, 1, q.requeued[0].Attempts)
	assert.Equal(t, "boom", q.requeued[0].LastError)
	assert.Empty(t, r.recorded)
}

func TestDispatch_PermanentDeadLetters(t *testing.T) {
	t.Parallel()

	pool, q, _ := newTestPool(fakeSubmitter{outcome: processor.Permanent, err: errors.New("rejected")})
	pool.dispatch(context.Background(), testEntry())

	require.Len(t, q.deadLetters, 1)
	assert.Equal(t, "rejected", q.deadLetters[0].LastError)
}

func TestDispatch_TransientDeadLettersAtMaxAttempts(t *testing.T) {
	t.Parallel()

	pool, q, _ := newTestPool(fakeSubmitter{outcome: processor.Transient, err: errors.New("boom")})
	entry := testEntry()
	entry.Attempts = pool.maxAttempts - 1

	pool.dispatch(context.Background(), entry)

	assert.Empty(t, q.requeued)
	require.Len(t, q.deadLetters, 1)
}
