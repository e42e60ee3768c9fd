// Package health runs the shared probe/decision subsystem: one elected
// prober per processor per cluster, a read-mostly snapshot cache, and the
// choose() policy the dispatch workers use to pick a processor per
// attempt.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rinha/payment-intermediary/internal/processor"
	"github.com/rinha/payment-intermediary/internal/store"
	"github.com/rinha/payment-intermediary/internal/types"
)

// TFast is the response-time threshold below which the default processor
// is always preferred outright.
const TFast = 100 * time.Millisecond

const lockTTL = 5 * time.Second

// Oracle owns the probe loops and exposes Read() of the cached snapshots to
// dispatch workers, which pass them to the package-level Choose().
// Workers and the Oracle never hold references to each other — they
// communicate only through Store.
type Oracle struct {
	store      *store.Store
	processors *processor.Pool
	interval   time.Duration
	log        zerolog.Logger
}

func New(s *store.Store, p *processor.Pool, interval time.Duration, log zerolog.Logger) *Oracle {
	return &Oracle{store: s, processors: p, interval: interval, log: log}
}

// Start launches the probe loop for both processors. Each loop runs for the
// lifetime of ctx; on a clean shutdown the caller cancels ctx and the
// loops return.
func (o *Oracle) Start(ctx context.Context) {
	go o.probeLoop(ctx, types.ProcessorDefault)
	go o.probeLoop(ctx, types.ProcessorFallback)
}

func (o *Oracle) probeLoop(ctx context.Context, id types.ProcessorID) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		o.probeOnce(ctx, id)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// probeOnce elects itself the prober for id (SETNX with a 5s TTL) and, if
// elected, queries the processor and writes the snapshot for every
// instance to read. Non-elected instances do nothing this tick — they
// simply read whatever the holder last wrote.
func (o *Oracle) probeOnce(ctx context.Context, id types.ProcessorID) {
	acquired, err := o.store.AcquireProbeLock(ctx, id, lockTTL)
	if err != nil {
		o.log.Warn().Err(err).Str("processor", string(id)).Msg("health: probe lock unavailable")
		return
	}
	if !acquired {
		return
	}

	failing, minRT, err := o.processors.Health(ctx, id)
	now := time.Now().UTC()
	if err != nil {
		if processor.ErrRateLimited(err) {
			return
		}
		o.log.Warn().Err(err).Str("processor", string(id)).Msg("health: probe failed")
		failing = true
		minRT = 0
	}

	snap := types.HealthSnapshot{Failing: failing, MinResponseTime: minRT, ObservedAt: now}
	if err := o.store.SetHealth(ctx, id, snap); err != nil {
		o.log.Warn().Err(err).Str("processor", string(id)).Msg("health: snapshot write failed")
	}
}

// Read returns the cached snapshot for id. A missing snapshot (no probe has
// completed yet) is treated as healthy so the very first payments are not
// starved waiting on the first probe cycle.
func (o *Oracle) Read(ctx context.Context, id types.ProcessorID) types.HealthSnapshot {
	snap, ok, err := o.store.GetHealth(ctx, id)
	if err != nil || !ok {
		return types.HealthSnapshot{Failing: false, MinResponseTime: 0}
	}
	return snap
}

// Choose picks which processor a dispatch attempt should target, given the
// latest health snapshot of each: prefer a fast, healthy default outright;
// fall back to the fallback processor if the default is failing or
// meaningfully slower than it; and if both are failing, default to the
// default processor (the caller's own retry loop will try again).
func Choose(def, fallback types.HealthSnapshot) types.ProcessorID {
	defFast := !def.Failing && time.Duration(def.MinResponseTime)*time.Millisecond <= TFast
	if defFast {
		return types.ProcessorDefault
	}
	if def.Failing && !fallback.Failing {
		return types.ProcessorFallback
	}
	if !def.Failing && !fallback.Failing && def.MinResponseTime <= fallback.MinResponseTime*2 {
		return types.ProcessorDefault
	}
	if !fallback.Failing {
		return types.ProcessorFallback
	}
	// Fallback failing (default either failing too, or healthy but slower
	// than TFast): stay on default; on failure the worker retries with
	// backoff.
	return types.ProcessorDefault
}
