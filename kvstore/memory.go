package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/YuvDwi/Cradle/errors"
)

const defaultCleanupInterval = time.Minute

// memEntry stores a value with its expiry. Counters are kept as decimal
// strings so the backend mirrors Redis INCR semantics exactly.
type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryStore implements Store with an in-process map. Single-replica
// deployments and tests use it; counters and cached results are lost on
// restart and invisible to other replicas.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memEntry

	cleanupInterval time.Duration
	shutdown        chan struct{}
	done            chan struct{}
	closeOnce       sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process store and starts its janitor
// goroutine. The janitor stops when ctx is cancelled or Close is called.
func NewMemoryStore(ctx context.Context, opts ...func(*MemoryStore)) *MemoryStore {
	s := &MemoryStore{
		items:           make(map[string]*memEntry),
		cleanupInterval: defaultCleanupInterval,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.janitor(ctx)
	return s
}

// WithCleanupInterval overrides how often expired entries are swept.
func WithCleanupInterval(interval time.Duration) func(*MemoryStore) {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

func (s *MemoryStore) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.items[key]
	if !exists || entry.expired(now) {
		// First hit opens a fresh window
		s.items[key] = &memEntry{
			value:     []byte("1"),
			expiresAt: now.Add(ttl),
		}
		return 1, nil
	}

	count, err := strconv.ParseInt(string(entry.value), 10, 64)
	if err != nil {
		return 0, errors.WrapInvalid(err, "kvstore.memory", "IncrWithTTL", "parse counter")
	}

	count++
	entry.value = []byte(strconv.FormatInt(count, 10))
	return count, nil
}

func (s *MemoryStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "kvstore.memory", "SetJSON", "marshal value")
	}

	s.mu.Lock()
	s.items[key] = &memEntry{
		value:     data,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetJSON(_ context.Context, key string, dest any) error {
	now := time.Now()

	s.mu.RLock()
	entry, exists := s.items[key]
	s.mu.RUnlock()

	if !exists {
		return errors.ErrKeyNotFound
	}

	if entry.expired(now) {
		// Evict lazily; double-check under the write lock
		s.mu.Lock()
		if current, still := s.items[key]; still && current.expired(now) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return errors.ErrKeyNotFound
	}

	if err := json.Unmarshal(entry.value, dest); err != nil {
		return errors.WrapInvalid(err, "kvstore.memory", "GetJSON", "unmarshal value")
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the janitor. Waits for it to exit with a timeout so a
// stuck goroutine cannot hang shutdown.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.shutdown)
	})

	select {
	case <-s.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for janitor to finish")
	}
}

// Size returns the number of live entries. Expired but unswept entries
// are not counted.
func (s *MemoryStore) Size() int {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, entry := range s.items {
		if !entry.expired(now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) janitor(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.items {
		if entry.expired(now) {
			delete(s.items, key)
		}
	}
}
