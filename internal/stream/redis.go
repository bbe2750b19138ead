package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/events"
	"github.com/zr01/ledgee/internal/observability"
	"github.com/zr01/ledgee/internal/reconcile"
)

// Stream names. Recorded entries fan into the reconciliation fold; the fold
// emits aggregates to the reconciled stream or the dead-letter stream.
const (
	RecordedStream   = "ledger:entries:recorded"
	ReconciledStream = "ledger:entries:reconciled"
	DeadLetterStream = "ledger:entries:reconciled:dlq"

	keyField     = "key"
	payloadField = "payload"
)

// EntryPublisher appends recorded-entry events, keyed by external reference
// id. Publication happens strictly after the posting transaction commits.
type EntryPublisher struct {
	client redis.Cmdable
	stream string
}

func NewEntryPublisher(client redis.Cmdable) *EntryPublisher {
	return &EntryPublisher{client: client, stream: RecordedStream}
}

func (p *EntryPublisher) PublishEntryRecorded(ctx context.Context, evt events.LedgerEntryRecorded) error {
	payload, err := events.Marshal(evt)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			keyField:     evt.ExternalReferenceID,
			payloadField: payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish recorded entry %s: %w", evt.PublicID, err)
	}
	return nil
}

// RecordPublisher emits reconciliation aggregates to one downstream stream.
// Two instances cover the primary and dead-letter paths.
type RecordPublisher struct {
	client redis.Cmdable
	stream string
}

func NewRecordPublisher(client redis.Cmdable, stream string) *RecordPublisher {
	return &RecordPublisher{client: client, stream: stream}
}

func (p *RecordPublisher) PublishReconciled(ctx context.Context, key string, record reconcile.Record) error {
	payload, err := events.Marshal(record)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			keyField:     key,
			payloadField: payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish reconciled record %s: %w", key, err)
	}
	return nil
}

// Consumer reads the recorded-entry stream through a consumer group and
// feeds the dispatcher. Broker delivery mechanics (offsets, redelivery) stay
// with redis; the consumer only acknowledges after the fold for a message
// has completed successfully.
type Consumer struct {
	client     *redis.Client
	group      string
	name       string
	stream     string
	dispatcher *Dispatcher
	blockFor   time.Duration
}

func NewConsumer(client *redis.Client, group, name string, dispatcher *Dispatcher) *Consumer {
	return &Consumer{
		client:     client,
		group:      group,
		name:       name,
		stream:     RecordedStream,
		dispatcher: dispatcher,
		blockFor:   5 * time.Second,
	}
}

// Start blocks, reading batches until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	zap.L().Info("stream consumer starting",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
		zap.String("consumer", c.name))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    64,
			Block:    c.blockFor,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			observability.IncrementStreamEvent("read_error")
			zap.L().Error("stream read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handleMessage(ctx, msg)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	key, _ := msg.Values[keyField].(string)
	raw, _ := msg.Values[payloadField].(string)

	evt, err := events.UnmarshalEntryRecorded([]byte(raw))
	if err != nil {
		// Malformed payloads are acked and dropped; retrying cannot fix them.
		observability.IncrementStreamEvent("decode_error")
		zap.L().Error("dropping undecodable stream message", zap.String("id", msg.ID), zap.Error(err))
		c.ack(ctx, msg.ID)
		return
	}
	if key == "" {
		key = evt.ExternalReferenceID
	}

	// Ack happens on the shard worker after the fold completed. Failed or
	// interrupted messages stay pending; the batch reconciler sweeps them.
	id := msg.ID
	err = c.dispatcher.Dispatch(ctx, key, evt, func(handlerErr error) {
		if handlerErr != nil {
			return
		}
		c.ack(ctx, id)
	})
	if err != nil {
		zap.L().Warn("dispatch interrupted", zap.String("id", id), zap.Error(err))
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.stream, c.group, id).Err(); err != nil && ctx.Err() == nil {
		zap.L().Warn("stream ack failed", zap.String("id", id), zap.Error(err))
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group %s: %w", c.group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
