// Package stream carries ledger events between the posting side and the
// reconciliation fold. Delivery runs over redis streams; ordering is
// enforced in-process by a sharded dispatcher that serializes all events for
// a key on one worker.
package stream

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/events"
	"github.com/zr01/ledgee/internal/observability"
)

// Handler processes one recorded entry for one key. The dispatcher
// guarantees it is never invoked concurrently for the same key.
type Handler func(ctx context.Context, key string, entry events.LedgerEntryRecorded) error

type envelope struct {
	key   string
	entry events.LedgerEntryRecorded
	done  func(error)
}

// Dispatcher fans events across shard workers by key hash. Events for
// distinct keys run in parallel; events for one key always land on the same
// shard in arrival order. That ordering guarantee is load-bearing: the
// reconciliation fold's transitions depend on it.
type Dispatcher struct {
	shards  []chan envelope
	handler Handler
	wg      sync.WaitGroup

	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given shard count and
// per-shard buffer.
func NewDispatcher(shardCount, buffer int, handler Handler) *Dispatcher {
	if shardCount <= 0 {
		shardCount = 8
	}
	if buffer < 0 {
		buffer = 0
	}
	shards := make([]chan envelope, shardCount)
	for i := range shards {
		shards[i] = make(chan envelope, buffer)
	}
	return &Dispatcher{shards: shards, handler: handler}
}

// Start launches one worker goroutine per shard.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, shard := range d.shards {
		d.wg.Add(1)
		go d.runShard(ctx, shard)
	}
}

func (d *Dispatcher) runShard(ctx context.Context, shard <-chan envelope) {
	defer d.wg.Done()
	for env := range shard {
		err := d.handler(ctx, env.key, env.entry)
		if err != nil {
			observability.IncrementStreamEvent("handler_error")
			zap.L().Error("stream handler failed",
				zap.String("externalReferenceId", env.key),
				zap.String("publicId", env.entry.PublicID),
				zap.Error(err))
		} else {
			observability.IncrementStreamEvent("processed")
		}
		if env.done != nil {
			env.done(err)
		}
	}
}

// Dispatch routes one event to its key's shard, blocking if the shard is
// busy. It returns early only when ctx is canceled. A non-nil done runs on
// the shard worker once the handler has finished, carrying the handler's
// result; callers use it to acknowledge only after processing completed.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, entry events.LedgerEntryRecorded, done func(error)) error {
	shard := d.shards[shardIndex(key, len(d.shards))]
	select {
	case shard <- envelope{key: key, entry: entry, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the shards and waits for in-flight events to drain.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		for _, shard := range d.shards {
			close(shard)
		}
	})
	d.wg.Wait()
}

func shardIndex(key string, shardCount int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(shardCount))
}
