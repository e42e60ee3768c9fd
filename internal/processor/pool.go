package processor

import (
	"context"

	"github.com/rinha/payment-intermediary/internal/types"
)

// Submitter is the narrow surface the dispatch workers depend on, so tests
// can substitute a fake processor without opening real sockets.
type Submitter interface {
	Submit(ctx context.Context, p types.Payment) (Outcome, error)
}

// Pool holds one Client per downstream processor, keyed by ProcessorID so
// the rest of the system deals in identifiers rather than callables.
type Pool struct {
	clients map[types.ProcessorID]*Client
}

func NewPool(defaultURL, fallbackURL string, maxInFlight int) *Pool {
	return &Pool{
		clients: map[types.ProcessorID]*Client{
			types.ProcessorDefault:  New(defaultURL, maxInFlight),
			types.ProcessorFallback: New(fallbackURL, maxInFlight),
		},
	}
}

// Get returns the Submitter for id, or nil if id is not one of the two
// known processors.
func (p *Pool) Get(id types.ProcessorID) Submitter {
	client, ok := p.clients[id]
	if !ok {
		return nil
	}
	return client
}

// Health probes id's processor directly, bypassing the Submitter interface
// — only the Health Oracle's probe loop needs this, never the dispatch
// workers.
func (p *Pool) Health(ctx context.Context, id types.ProcessorID) (failing bool, minResponseTime int, err error) {
	return p.clients[id].Health(ctx)
}
