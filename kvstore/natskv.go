package kvstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/natsclient"
)

// bucketGCTTL ages out entries at the bucket level long after their
// record-level expiry. Record expiry governs visibility; this only
// keeps the bucket from accumulating dead keys.
const bucketGCTTL = 24 * time.Hour

// counterRecord is the stored form of a rate-limit counter. NATS KV has
// no per-key TTL, so the window expiry travels inside the record.
type counterRecord struct {
	Count     int64     `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

// valueRecord wraps a cached JSON document with its expiry.
type valueRecord struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NATSStore implements Store on a JetStream KV bucket. Deployments that
// already run NATS can share state across replicas without adding
// Redis. Counter increments use CAS with retry instead of a server-side
// INCR, so throughput is lower than the Redis backend.
type NATSStore struct {
	client *natsclient.Client
	kv     *natsclient.KVStore
}

var _ Store = (*NATSStore)(nil)

// NewNATSStore creates (or reuses) the named KV bucket on an already
// connected client. The client's lifecycle stays with the caller; Close
// on the store is a no-op.
func NewNATSStore(ctx context.Context, client *natsclient.Client, bucket string) (*NATSStore, error) {
	cfg := jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
		TTL:     bucketGCTTL,
	}

	kvBucket, err := client.CreateKeyValueBucket(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "kvstore.natskv", "NewNATSStore", "create bucket")
	}

	return &NATSStore{
		client: client,
		kv:     client.NewKVStore(kvBucket),
	}, nil
}

func (s *NATSStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64

	err := s.kv.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		now := time.Now()

		var rec counterRecord
		if current != nil {
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, err
			}
		}

		if current == nil || now.After(rec.ExpiresAt) {
			// First hit opens a fresh window
			rec = counterRecord{Count: 1, ExpiresAt: now.Add(ttl)}
		} else {
			rec.Count++
		}

		count = rec.Count
		return json.Marshal(rec)
	})
	if err != nil {
		return 0, errors.WrapTransient(err, "kvstore.natskv", "IncrWithTTL", "update counter")
	}

	return count, nil
}

func (s *NATSStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "kvstore.natskv", "SetJSON", "marshal value")
	}

	rec := valueRecord{Value: raw, ExpiresAt: time.Now().Add(ttl)}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "kvstore.natskv", "SetJSON", "marshal record")
	}

	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "kvstore.natskv", "SetJSON", "put")
	}
	return nil
}

func (s *NATSStore) GetJSON(ctx context.Context, key string, dest any) error {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return errors.ErrKeyNotFound
		}
		return errors.WrapTransient(err, "kvstore.natskv", "GetJSON", "get")
	}

	var rec valueRecord
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return errors.WrapInvalid(err, "kvstore.natskv", "GetJSON", "unmarshal record")
	}

	if time.Now().After(rec.ExpiresAt) {
		// Lazy eviction; a concurrent writer replacing the key loses
		// nothing because Delete is best-effort here
		_ = s.kv.Delete(ctx, key)
		return errors.ErrKeyNotFound
	}

	if err := json.Unmarshal(rec.Value, dest); err != nil {
		return errors.WrapInvalid(err, "kvstore.natskv", "GetJSON", "unmarshal value")
	}
	return nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return nil
		}
		return errors.WrapTransient(err, "kvstore.natskv", "Delete", "delete")
	}
	return nil
}

func (s *NATSStore) Ping(_ context.Context) error {
	if _, err := s.client.RTT(); err != nil {
		return errors.WrapTransient(err, "kvstore.natskv", "Ping", "rtt")
	}
	return nil
}

// Close is a no-op: the NATS client is shared and closed by its owner.
func (s *NATSStore) Close() error {
	return nil
}
