package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rinha/payment-intermediary/internal/types"
)

type fakeStore struct {
	accounted map[string]bool
	bumps     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounted: make(map[string]bool)}
}

func (f *fakeStore) MarkAccounted(ctx context.Context, correlationID string) (bool, error) {
	if f.accounted[correlationID] {
		return false, nil
	}
	f.accounted[correlationID] = true
	return true, nil
}

func (f *fakeStore) Bump(ctx context.Context, processor types.ProcessorID, requestedAt time.Time, amountCents int64) error {
	f.bumps++
	return nil
}

func (f *fakeStore) RangeSum(ctx context.Context, processor types.ProcessorID, minScore, maxScore string) (int64, int64, error) {
	return 0, 0, nil
}

func TestRecord_SecondCallForSameCorrelationIDDoesNotBumpTwice(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	a := New(fs)
	p := types.Payment{CorrelationID: "dup-id", AmountCents: 1000, RequestedAt: time.Now()}

	first, err := a.Record(context.Background(), types.ProcessorDefault, p)
	assert.NoError(t, err)
	assert.True(t, first)

	second, err := a.Record(context.Background(), types.ProcessorDefault, p)
	assert.NoError(t, err)
	assert.False(t, second)

	assert.Equal(t, 1, fs.bumps)
}

func TestBucketRange_BothUnbounded(t *testing.T) {
	t.Parallel()

	min, max := bucketRange(nil, nil)
	assert.Equal(t, "-inf", min)
	assert.Equal(t, "+inf", max)
}

func TestBucketRange_FromOnWholeSecond(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	min, max := bucketRange(&from, nil)
	assert.Equal(t, "1735689610", min)
	assert.Equal(t, "+inf", max)
}

func TestBucketRange_ToMidBucketCeilsUp(t *testing.T) {
	t.Parallel()

	to := time.Date(2025, 1, 1, 0, 0, 10, 500_000_000, time.UTC)
	_, max := bucketRange(nil, &to)
	assert.Equal(t, "1735689611", max)
}

func TestBucketRange_ToOnWholeSecondDoesNotCeil(t *testing.T) {
	t.Parallel()

	to := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	_, max := bucketRange(nil, &to)
	assert.Equal(t, "1735689610", max)
}
