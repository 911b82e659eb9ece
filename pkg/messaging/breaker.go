package messaging

import (
	"context"

	"github.com/jwalitptl/eventrelay/pkg/circuitbreaker"
)

type breakerTransport struct {
	next Transport
	cb   *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps t so repeated send failures open cb and later sends fail fast
// with circuitbreaker.ErrOpen until it half-opens.
func WithBreaker(t Transport, cb *circuitbreaker.CircuitBreaker) Transport {
	if cb == nil {
		return t
	}
	return &breakerTransport{next: t, cb: cb}
}

func (b *breakerTransport) SendEvents(ctx context.Context, batch map[PartitionKey][][]byte) error {
	return b.cb.Execute(func() error {
		return b.next.SendEvents(ctx, batch)
	})
}

func (b *breakerTransport) Close() error {
	return b.next.Close()
}
