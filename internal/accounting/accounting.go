// Package accounting is the idempotent commit path: turning a processor's
// 2xx into exactly one accounting record, and answering the summary
// endpoint's range queries over those records.
package accounting

import (
	"context"
	"strconv"
	"time"

	"github.com/rinha/payment-intermediary/internal/store"
	"github.com/rinha/payment-intermediary/internal/types"
)

// Store is the persistence dependency Accounting calls, narrowed so tests
// can fake the mark-then-bump sequence instead of standing up a real Store.
type Store interface {
	MarkAccounted(ctx context.Context, correlationID string) (bool, error)
	Bump(ctx context.Context, processor types.ProcessorID, requestedAt time.Time, amountCents int64) error
	RangeSum(ctx context.Context, processor types.ProcessorID, minScore, maxScore string) (count int64, sumCents int64, err error)
}

type Accounting struct {
	store Store
}

func New(s Store) *Accounting {
	return &Accounting{store: s}
}

// Record commits a successful submission to processor. It returns
// (true, nil) the first time correlationID is accounted for, and
// (false, nil) on any subsequent call for the same id — the bump only
// happens on the first call, which is invariant I1.
func (a *Accounting) Record(ctx context.Context, processor types.ProcessorID, p types.Payment) (bool, error) {
	first, err := a.store.MarkAccounted(ctx, p.CorrelationID)
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}
	if err := a.store.Bump(ctx, processor, p.RequestedAt, p.AmountCents); err != nil {
		return true, err
	}
	return true, nil
}

// Summary computes totals for both processors over [from, to]. A nil bound
// is unbounded on that side.
func (a *Accounting) Summary(ctx context.Context, from, to *time.Time) (types.Summary, error) {
	minScore, maxScore := bucketRange(from, to)

	defCount, defSum, err := a.store.RangeSum(ctx, types.ProcessorDefault, minScore, maxScore)
	if err != nil {
		return types.Summary{}, err
	}
	fbCount, fbSum, err := a.store.RangeSum(ctx, types.ProcessorFallback, minScore, maxScore)
	if err != nil {
		return types.Summary{}, err
	}

	return types.Summary{
		Default: types.ProcessorSummary{
			TotalRequests: defCount,
			TotalAmount:   types.Cents(defSum),
		},
		Fallback: types.ProcessorSummary{
			TotalRequests: fbCount,
			TotalAmount:   types.Cents(fbSum),
		},
	}, nil
}

// bucketRange resolves from/to to the ZRangeByScore bounds RangeSum
// expects: "-inf"/"+inf" for an absent bound.
func bucketRange(from, to *time.Time) (minScore, maxScore string) {
	minScore, maxScore = "-inf", "+inf"
	if from != nil {
		minScore = strconv.FormatInt(store.BucketOf(*from), 10)
	}
	if to != nil {
		// Ceil to second: a 'to' that lands mid-bucket still includes that
		// bucket.
		b := store.BucketOf(*to)
		if !to.Truncate(time.Second).Equal(*to) {
			b++
		}
		maxScore = strconv.FormatInt(b, 10)
	}
	return minScore, maxScore
}
