package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
)

// SchemaVersion is bumped whenever the snapshot layout changes. Snapshots
// written under another version are ignored.
const SchemaVersion = 2

// DefaultTTL bounds how long a snapshot is trusted.
const DefaultTTL = 24 * time.Hour

// Snapshot is a serialised copy of the reference data.
type Snapshot struct {
	Version     int                `json:"version"`
	SavedAt     time.Time          `json:"saved_at"`
	Elections   []model.Election   `json:"elections"`
	Politicians []model.Politician `json:"politicians"`
	Policies    []model.Policy     `json:"policies"`
}

// Fresh reports whether s was written under the current schema and is
// younger than ttl.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	if s == nil || s.Version != SchemaVersion {
		return false
	}
	return now.Sub(s.SavedAt) < ttl
}

// SnapshotStore persists snapshots between process restarts. Load returns
// nil without error on a miss.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Clear(ctx context.Context) error
}

// RedisSnapshots keeps the snapshot in a single redis key that expires
// with the TTL.
type RedisSnapshots struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshots creates a RedisSnapshots. An empty prefix uses
// "policy-tracker:refdata".
func NewRedisSnapshots(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSnapshots {
	if prefix == "" {
		prefix = "policy-tracker:refdata"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl}
}

// Key is the redis key for the current schema version.
func (r *RedisSnapshots) Key() string {
	return fmt.Sprintf("%s:v%d", r.prefix, SchemaVersion)
}

func (r *RedisSnapshots) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "refcache: redis get")
	}
	return decodeSnapshot(data)
}

func (r *RedisSnapshots) Save(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "refcache: marshal snapshot")
	}
	return eris.Wrap(r.client.Set(ctx, r.Key(), data, r.ttl).Err(), "refcache: redis set")
}

func (r *RedisSnapshots) Clear(ctx context.Context) error {
	return eris.Wrap(r.client.Del(ctx, r.Key()).Err(), "refcache: redis del")
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "refcache: decode snapshot")
	}
	if s.Version != SchemaVersion {
		return nil, nil
	}
	return &s, nil
}

// MemorySnapshots holds the encoded snapshot in process memory. It is used
// when no redis address is configured and in tests.
type MemorySnapshots struct {
	mu   sync.Mutex
	data []byte
}

func (m *MemorySnapshots) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return decodeSnapshot(m.data)
}

func (m *MemorySnapshots) Save(_ context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "refcache: marshal snapshot")
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshots) Clear(context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
