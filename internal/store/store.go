// Package store is the thin client over the shared Redis instance that
// backs the durable work queue, the idempotency set, the per-bucket
// accounting counters and the cross-instance health cache. Every operation
// here is a single round trip, or a small pipeline of round trips.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/rinha/payment-intermediary/internal/apperr"
	"github.com/rinha/payment-intermediary/internal/types"
)

// Store wraps a pooled go-redis client. It is safe for concurrent use by
// every worker, the ingestion handler and the health oracle alike — the
// redis.Client itself is internally synchronized, and Store holds no other
// mutable state.
type Store struct {
	rdb *redis.Client
}

func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// wireEntry is the JSON representation of a QueueEntry on the wire, kept
// separate from types.QueueEntry so the domain type never needs JSON tags
// for amount-in-cents and time formats.
type wireEntry struct {
	CorrelationID string `json:"correlationId"`
	AmountCents   int64  `json:"amountCents"`
	RequestedAt   int64  `json:"requestedAt"` // unix millis
	Attempts      int    `json:"attempts"`
	LastError     string `json:"lastError,omitempty"`
	DeadLetterID  string `json:"deadLetterId,omitempty"`
}

func encodeEntry(e types.QueueEntry) ([]byte, error) {
	w := wireEntry{
		CorrelationID: e.Payment.CorrelationID,
		AmountCents:   e.Payment.AmountCents,
		RequestedAt:   e.Payment.RequestedAt.UnixMilli(),
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		DeadLetterID:  e.DeadLetterID,
	}
	return sonic.ConfigFastest.Marshal(w)
}

func decodeEntry(raw []byte) (types.QueueEntry, error) {
	var w wireEntry
	if err := sonic.ConfigFastest.Unmarshal(raw, &w); err != nil {
		return types.QueueEntry{}, err
	}
	return types.QueueEntry{
		Payment: types.Payment{
			CorrelationID: w.CorrelationID,
			AmountCents:   w.AmountCents,
			RequestedAt:   time.UnixMilli(w.RequestedAt).UTC(),
		},
		Attempts:     w.Attempts,
		LastError:    w.LastError,
		DeadLetterID: w.DeadLetterID,
	}, nil
}

// Enqueue atomically appends entry to the FIFO payments queue.
func (s *Store) Enqueue(ctx context.Context, entry types.QueueEntry) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return apperr.New(apperr.KindInternal, "store.Enqueue", err)
	}
	if err := s.rdb.LPush(ctx, QueueKey, raw).Err(); err != nil {
		return apperr.New(apperr.KindStoreUnavailable, "store.Enqueue", err)
	}
	return nil
}

// Dequeue blocks for up to timeout for an entry to appear on the queue. It
// returns (entry, true, nil) on success and (zero, false, nil) on a timeout
// with no work available.
func (s *Store) Dequeue(ctx context.Context, timeout time.Duration) (types.QueueEntry, bool, error) {
	res, err := s.rdb.BRPop(ctx, timeout, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return types.QueueEntry{}, false, nil
	}
	if err != nil {
		return types.QueueEntry{}, false, apperr.New(apperr.KindStoreUnavailable, "store.Dequeue", err)
	}
	// res[0] is the key name, res[1] is the value.
	entry, err := decodeEntry([]byte(res[1]))
	if err != nil {
		return types.QueueEntry{}, false, apperr.New(apperr.KindInternal, "store.Dequeue", err)
	}
	return entry, true, nil
}

// Requeue reinserts entry for redelivery after delay. Entries due within
// [0] are pushed straight to the queue tail; entries with a positive delay
// go into the delayed sorted set, where the sweeper moves them once due.
func (s *Store) Requeue(ctx context.Context, entry types.QueueEntry, delay time.Duration) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return apperr.New(apperr.KindInternal, "store.Requeue", err)
	}
	if delay <= 0 {
		if err := s.rdb.LPush(ctx, QueueKey, raw).Err(); err != nil {
			return apperr.New(apperr.KindStoreUnavailable, "store.Requeue", err)
		}
		return nil
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := s.rdb.ZAdd(ctx, DelayedKey, redis.Z{Score: float64(due), Member: raw}).Err(); err != nil {
		return apperr.New(apperr.KindStoreUnavailable, "store.Requeue", err)
	}
	return nil
}

// DeadLetter drops entry onto the dead-letter list for operator inspection;
// it will never be automatically retried.
func (s *Store) DeadLetter(ctx context.Context, entry types.QueueEntry) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return apperr.New(apperr.KindInternal, "store.DeadLetter", err)
	}
	if err := s.rdb.LPush(ctx, DeadKey, raw).Err(); err != nil {
		return apperr.New(apperr.KindStoreUnavailable, "store.DeadLetter", err)
	}
	return nil
}

// SweepDelayed moves every delayed entry whose due time has passed back
// onto the FIFO queue. It is called periodically by a single sweeper task.
func (s *Store) SweepDelayed(ctx context.Context, now time.Time) (int, error) {
	due := fmt.Sprintf("%d", now.UnixMilli())
	members, err := s.rdb.ZRangeByScore(ctx, DelayedKey, &redis.ZRangeBy{Min: "-inf", Max: due}).Result()
	if err != nil {
		return 0, apperr.New(apperr.KindStoreUnavailable, "store.SweepDelayed", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	pipe := s.rdb.Pipeline()
	for _, m := range members {
		pipe.LPush(ctx, QueueKey, m)
		pipe.ZRem(ctx, DelayedKey, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperr.New(apperr.KindStoreUnavailable, "store.SweepDelayed", err)
	}
	return len(members), nil
}

// Clear drops every key this process ever wrote for payment data: the
// queue, the delayed set, the dead-letter list, the idempotency set and
// both processors' accounting buckets plus their bucket indexes. Health
// snapshots and probe locks are left untouched — they describe the
// downstream processors, not accumulated payment data.
func (s *Store) Clear(ctx context.Context) error {
	keys := []string{QueueKey, DelayedKey, DeadKey, AccountedKey}
	for _, proc := range []types.ProcessorID{types.ProcessorDefault, types.ProcessorFallback} {
		buckets, err := s.rdb.ZRangeByScore(ctx, acctIndexKey(string(proc)), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
		if err != nil {
			return apperr.New(apperr.KindStoreUnavailable, "store.Clear", err)
		}
		for _, b := range buckets {
			keys = append(keys, acctKey(string(proc), toInt64(b)))
		}
		keys = append(keys, acctIndexKey(string(proc)))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return apperr.New(apperr.KindStoreUnavailable, "store.Clear", err)
	}
	return nil
}

// MarkAccounted atomically adds correlationID to the idempotency set. It
// returns true iff the id was not already present — the witness for
// invariant I1.
func (s *Store) MarkAccounted(ctx context.Context, correlationID string) (bool, error) {
	added, err := s.rdb.SAdd(ctx, AccountedKey, correlationID).Result()
	if err != nil {
		return false, apperr.New(apperr.KindStoreUnavailable, "store.MarkAccounted", err)
	}
	return added == 1, nil
}

// Bump atomically increments the count/sum pair for the bucket that
// requestedAt falls into, and records that bucket in the processor's
// bucket index so unbounded range queries never have to scan empty
// buckets.
func (s *Store) Bump(ctx context.Context, processor types.ProcessorID, requestedAt time.Time, amountCents int64) error {
	bucket := BucketOf(requestedAt)
	key := acctKey(string(processor), bucket)
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.HIncrBy(ctx, key, "sum_cents", amountCents)
	pipe.ZAdd(ctx, acctIndexKey(string(processor)), redis.Z{Score: float64(bucket), Member: bucket})
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.KindStoreUnavailable, "store.Bump", err)
	}
	return nil
}

// RangeSum sums the count/sum pairs for every bucket in [minScore, maxScore]
// that the processor's index actually has data for. minScore/maxScore use
// go-redis's ZRangeBy convention ("-inf"/"+inf" for unbounded sides).
func (s *Store) RangeSum(ctx context.Context, processor types.ProcessorID, minScore, maxScore string) (count int64, sumCents int64, err error) {
	buckets, err := s.rdb.ZRangeByScore(ctx, acctIndexKey(string(processor)), &redis.ZRangeBy{Min: minScore, Max: maxScore}).Result()
	if err != nil {
		return 0, 0, apperr.New(apperr.KindStoreUnavailable, "store.RangeSum", err)
	}
	if len(buckets) == 0 {
		return 0, 0, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, 0, len(buckets))
	for _, b := range buckets {
		cmds = append(cmds, pipe.HMGet(ctx, acctKey(string(processor), toInt64(b)), "count", "sum_cents"))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, apperr.New(apperr.KindStoreUnavailable, "store.RangeSum", err)
	}
	for _, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) != 2 || vals[0] == nil || vals[1] == nil {
			continue
		}
		count += toInt64(vals[0])
		sumCents += toInt64(vals[1])
	}
	return count, sumCents, nil
}

func toInt64(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0
	}
	return n
}

// GetHealth reads the cached snapshot for processor, as written by whichever
// instance holds the probe lock.
func (s *Store) GetHealth(ctx context.Context, processor types.ProcessorID) (types.HealthSnapshot, bool, error) {
	raw, err := s.rdb.Get(ctx, healthKey(string(processor))).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.HealthSnapshot{}, false, nil
	}
	if err != nil {
		return types.HealthSnapshot{}, false, apperr.New(apperr.KindStoreUnavailable, "store.GetHealth", err)
	}
	var snap types.HealthSnapshot
	if err := sonic.ConfigFastest.Unmarshal(raw, &snap); err != nil {
		return types.HealthSnapshot{}, false, apperr.New(apperr.KindInternal, "store.GetHealth", err)
	}
	return snap, true, nil
}

// SetHealth writes snap for processor, visible to every instance.
func (s *Store) SetHealth(ctx context.Context, processor types.ProcessorID, snap types.HealthSnapshot) error {
	raw, err := sonic.ConfigFastest.Marshal(snap)
	if err != nil {
		return apperr.New(apperr.KindInternal, "store.SetHealth", err)
	}
	if err := s.rdb.Set(ctx, healthKey(string(processor)), raw, 0).Err(); err != nil {
		return apperr.New(apperr.KindStoreUnavailable, "store.SetHealth", err)
	}
	return nil
}

// AcquireProbeLock elects exactly one prober per processor across the
// cluster via a short-TTL SETNX lock.
func (s *Store) AcquireProbeLock(ctx context.Context, processor types.ProcessorID, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, healthLockKey(string(processor)), "1", ttl).Result()
	if err != nil {
		return false, apperr.New(apperr.KindStoreUnavailable, "store.AcquireProbeLock", err)
	}
	return ok, nil
}

// BucketOf floors t to its one-second accounting bucket.
func BucketOf(t time.Time) int64 { return t.Unix() }
