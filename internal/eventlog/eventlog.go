// Package eventlog mirrors outgoing controller messages to Redis and keeps
// the identifier blocklist consulted during track resolution.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream    = "soundlink_events"
	DefaultBlocklist = "soundlink_blocklist"

	// maxStreamLen is the approximate cap on mirrored entries.
	maxStreamLen = 10000
)

// Entry is one mirrored message.
type Entry struct {
	ID        string
	SessionID string
	Op        string
	Payload   string
	Time      time.Time
}

// Publisher receives a copy of every message sent to a controller.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// PrintingPublisher logs entries instead of storing them.
type PrintingPublisher struct{}

func (PrintingPublisher) Publish(ctx context.Context, entry Entry) error {
	slog.DebugContext(
		ctx,
		"Outgoing message",
		slog.String("sessionID", entry.SessionID),
		slog.String("op", entry.Op),
		slog.Int("bytes", len(entry.Payload)),
	)
	return nil
}

var _ Publisher = PrintingPublisher{}

// RedisPublisher appends entries to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream}
}

func (p *RedisPublisher) Publish(ctx context.Context, entry Entry) error {
	at := entry.Time
	if at.IsZero() {
		at = time.Now()
	}
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"sessionID": entry.SessionID,
			"op":        entry.Op,
			"payload":   entry.Payload,
			"time":      at.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to mirror %s message: %w", entry.Op, err)
	}
	return nil
}

// Recent returns up to n of the newest entries, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, n int64) ([]Entry, error) {
	messages, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.stream, err)
	}

	entries := make([]Entry, 0, len(messages))
	for _, message := range messages {
		entry := Entry{ID: message.ID}
		entry.SessionID, _ = message.Values["sessionID"].(string)
		entry.Op, _ = message.Values["op"].(string)
		entry.Payload, _ = message.Values["payload"].(string)
		if raw, ok := message.Values["time"].(string); ok {
			entry.Time, _ = time.Parse(time.RFC3339Nano, raw)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var _ Publisher = (*RedisPublisher)(nil)

// Blocklist holds identifiers that must not be resolved.
type Blocklist interface {
	Block(ctx context.Context, identifier string) error
	Unblock(ctx context.Context, identifier string) error
	IsBlocked(ctx context.Context, identifier string) (bool, error)
}

func normalize(identifier string) string {
	return strings.TrimSpace(identifier)
}

type RedisBlocklist struct {
	client *redis.Client
	key    string
}

func NewRedisBlocklist(client *redis.Client, key string) *RedisBlocklist {
	if key == "" {
		key = DefaultBlocklist
	}
	return &RedisBlocklist{client: client, key: key}
}

func (b *RedisBlocklist) Block(ctx context.Context, identifier string) error {
	if err := b.client.SAdd(ctx, b.key, normalize(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to add %s to blocklist: %w", identifier, err)
	}
	return nil
}

func (b *RedisBlocklist) Unblock(ctx context.Context, identifier string) error {
	if err := b.client.SRem(ctx, b.key, normalize(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from blocklist: %w", identifier, err)
	}
	return nil
}

func (b *RedisBlocklist) IsBlocked(ctx context.Context, identifier string) (bool, error) {
	blocked, err := b.client.SIsMember(ctx, b.key, normalize(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blocklist for %s: %w", identifier, err)
	}
	return blocked, nil
}

var _ Blocklist = (*RedisBlocklist)(nil)

type MemoryBlocklist struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

func NewMemoryBlocklist(identifiers ...string) *MemoryBlocklist {
	b := &MemoryBlocklist{blocked: make(map[string]struct{})}
	for _, identifier := range identifiers {
		b.blocked[normalize(identifier)] = struct{}{}
	}
	return b
}

func (b *MemoryBlocklist) Block(_ context.Context, identifier string) error {
	b.mu.Lock()
	b.blocked[normalize(identifier)] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlocklist) Unblock(_ context.Context, identifier string) error {
	b.mu.Lock()
	delete(b.blocked, normalize(identifier))
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlocklist) IsBlocked(_ context.Context, identifier string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[normalize(identifier)]
	return ok, nil
}

var _ Blocklist = (*MemoryBlocklist)(nil)
