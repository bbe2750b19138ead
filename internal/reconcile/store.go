package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RecordStore persists the per-key aggregate between events. The fold is a
// durable, resumable state machine; losing a record loses pairing history.
type RecordStore interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, record Record) error
}

const recordKeyPrefix = "reconcile:record"

// RedisRecordStore keeps aggregates in redis as JSON, one key per external
// reference id. Records are retained indefinitely as the audit record for
// their key.
type RedisRecordStore struct {
	client redis.Cmdable
}

func NewRedisRecordStore(client redis.Cmdable) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

func (s *RedisRecordStore) Get(ctx context.Context, key string) (Record, bool, error) {
	val, err := s.client.Get(ctx, recordKey(key)).Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get reconciliation record %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return Record{}, false, fmt.Errorf("decode reconciliation record %s: %w", key, err)
	}
	return record, true, nil
}

func (s *RedisRecordStore) Put(ctx context.Context, key string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode reconciliation record %s: %w", key, err)
	}
	if err := s.client.Set(ctx, recordKey(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("put reconciliation record %s: %w", key, err)
	}
	return nil
}

func recordKey(key string) string {
	return fmt.Sprintf("%s:%s", recordKeyPrefix, key)
}

// MemoryRecordStore is an in-process store used by tests and single-node
// setups.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

func (s *MemoryRecordStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	return record, ok, nil
}

func (s *MemoryRecordStore) Put(_ context.Context, key string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record
	return nil
}
