package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// PartitionKey groups payloads that must stay ordered relative to each other.
type PartitionKey int64

// NoAggregatePartition is the key used for events without an aggregate root.
// It would collide with an aggregate whose id is -1; ids are generated positive.
const NoAggregatePartition PartitionKey = -1

// PartitionFor returns the partition for an optional aggregate root id.
func PartitionFor(aggregateRootID *int64) PartitionKey {
	if aggregateRootID == nil {
		return NoAggregatePartition
	}
	return PartitionKey(*aggregateRootID)
}

// ErrAckTimeout is returned when the transport does not acknowledge a batch in time.
var ErrAckTimeout = errors.New("transport acknowledgement timed out")

// Transport hands a partitioned batch to an external message system. Payloads
// inside one partition are delivered in slice order. A nil error means every
// payload was acknowledged.
type Transport interface {
	SendEvents(ctx context.Context, batch map[PartitionKey][][]byte) error
	Close() error
}

// SortedKeys returns the batch's partition keys in ascending order.
func SortedKeys(batch map[PartitionKey][][]byte) []PartitionKey {
	keys := make([]PartitionKey, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// PayloadCount is the total number of payloads across partitions.
func PayloadCount(batch map[PartitionKey][][]byte) int {
	n := 0
	for _, payloads := range batch {
		n += len(payloads)
	}
	return n
}

// WithAckTimeout runs send and gives up after timeout with ErrAckTimeout. send
// receives a context carrying the same deadline; clients that ignore contexts
// keep running in the background until their own timeout fires.
func WithAckTimeout(ctx context.Context, timeout time.Duration, send func(ctx context.Context) error) error {
	if timeout <= 0 {
		return send(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send(ctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrAckTimeout, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrAckTimeout, timeout)
		}
		return ctx.Err()
	}
}
