package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger remembers which listings were already sent to each alert, so a
// listing is delivered at most once per alert while its entry lives.
type Ledger struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given URL and returns a Ledger whose sets
// expire ttl after their last write.
// URL format: redis://localhost:6379
func New(redisURL string, ttl time.Duration) (*Ledger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &Ledger{client: client, ttl: ttl}, nil
}

// Unsent returns the subset of listingIDs not yet recorded for alertID, in
// input order.
func (l *Ledger) Unsent(ctx context.Context, alertID string, listingIDs []string) ([]string, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(listingIDs))
	for i, id := range listingIDs {
		members[i] = id
	}

	sent, err := l.client.SMIsMember(ctx, buildKey(alertID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: reading ledger of alert %s: %w", alertID, err)
	}

	var out []string
	for i, id := range listingIDs {
		if !sent[i] {
			out = append(out, id)
		}
	}
	return out, nil
}

// MarkSent records listingIDs as delivered to alertID and refreshes the TTL.
func (l *Ledger) MarkSent(ctx context.Context, alertID string, listingIDs []string) error {
	if len(listingIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(listingIDs))
	for i, id := range listingIDs {
		members[i] = id
	}

	key := buildKey(alertID)
	pipe := l.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: writing ledger of alert %s: %w", alertID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (l *Ledger) Close() error {
	return l.client.Close()
}

func buildKey(alertID string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(alertID)))
	return fmt.Sprintf("gorent:sent:%x", hash[:8])
}

// MemoryLedger is the in-process fallback used when no Redis URL is set.
// Entries do not survive a restart.
type MemoryLedger struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	sent map[string]map[string]time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		ttl:  ttl,
		now:  time.Now,
		sent: make(map[string]map[string]time.Time),
	}
}

func (m *MemoryLedger) Unsent(_ context.Context, alertID string, listingIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	set := m.sent[alertID]
	var out []string
	for _, id := range listingIDs {
		at, ok := set[id]
		if ok && (m.ttl <= 0 || now.Sub(at) < m.ttl) {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *MemoryLedger) MarkSent(_ context.Context, alertID string, listingIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sent[alertID]
	if !ok {
		set = make(map[string]time.Time)
		m.sent[alertID] = set
	}
	now := m.now()
	for _, id := range listingIDs {
		set[id] = now
	}
	return nil
}

func (m *MemoryLedger) Close() error { return nil }
