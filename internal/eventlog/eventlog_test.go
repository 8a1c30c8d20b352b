package eventlog_test

import (
	"testing"
	"time"

	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := t.Context()

	container, err := tcredis.Run(ctx, "redis:7")
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestBlocklists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	client := startRedis(t)

	table := map[string]eventlog.Blocklist{
		"memory": eventlog.NewMemoryBlocklist(),
		"redis":  eventlog.NewRedisBlocklist(client, "test_blocklist"),
	}

	for name, blocklist := range table {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := blocklist.Block(ctx, " blob:banned "); err != nil {
				t.Fatalf("Block() returned error: %v", err)
			}

			blocked, err := blocklist.IsBlocked(ctx, "blob:banned")
			if err != nil || !blocked {
				t.Fatalf("IsBlocked() = %v, %v; want true, nil", blocked, err)
			}
			blocked, err = blocklist.IsBlocked(ctx, "blob:fine")
			if err != nil || blocked {
				t.Fatalf("IsBlocked() = %v, %v; want false, nil", blocked, err)
			}

			if err := blocklist.Unblock(ctx, "blob:banned"); err != nil {
				t.Fatalf("Unblock() returned error: %v", err)
			}
			blocked, err = blocklist.IsBlocked(ctx, "blob:banned")
			if err != nil || blocked {
				t.Errorf("IsBlocked() after Unblock() = %v, %v; want false, nil", blocked, err)
			}
		})
	}
}

func TestRedisPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	client := startRedis(t)
	publisher := eventlog.NewRedisPublisher(client, "test_events")
	ctx := t.Context()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []eventlog.Entry{
		{SessionID: "s1", Op: "event", Payload: `{"op":"event"}`, Time: at},
		{SessionID: "s1", Op: "playerUpdate", Payload: `{"op":"playerUpdate"}`, Time: at.Add(time.Second)},
	}
	for _, entry := range entries {
		if err := publisher.Publish(ctx, entry); err != nil {
			t.Fatalf("Publish() returned error: %v", err)
		}
	}

	got, err := publisher.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() returned error: %v", err)
	}

	want := []eventlog.Entry{entries[1], entries[0]}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(eventlog.Entry{}, "ID")); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}
}
