package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/generator"
	"github.com/glizzus/soundlink/internal/opus"
	"github.com/glizzus/soundlink/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	once              sync.Once
	postgresContainer *postgres.PostgresContainer
	connStr           string
	startErr          error
	pool              *pgxpool.Pool
	wg                sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()

	once.Do(func() {
		ctx := context.Background()
		postgresContainer, startErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("soundlink"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if startErr != nil {
			return
		}
		connStr, startErr = postgresContainer.ConnectionString(ctx)
		if startErr != nil {
			return
		}

		pool, startErr = pgxpool.New(ctx, connStr)
		if startErr != nil {
			return
		}
		defer pool.Close()

		startErr = datalayer.MigratePostgres(pool)
	})

	if startErr != nil {
		t.Fatalf("failed to start postgres container: %v", startErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)

	return connStr
}

// GetPlaylistRepository creates a new PostgresPlaylistRepository for testing.
// It performs no modifications or migrations on the database schema.
func GetPlaylistRepository(t *testing.T, connStr string) *repository.PostgresPlaylistRepository {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	t.Cleanup(pool.Close)
	return repository.NewPostgresPlaylistRepository(pool)
}

var uuidGenerator = generator.UUIDV4Generator{}

// SavePlaylist stores a playlist under a fresh id, replacing any playlist
// already saved under name.
func SavePlaylist(t *testing.T, repo *repository.PostgresPlaylistRepository, name string, identifiers ...string) {
	t.Helper()
	if err := repo.Delete(t.Context(), name); err != nil && !errors.Is(err, repository.ErrPlaylistNotFound) {
		t.Fatalf("failed to clear playlist: %v", err)
	}
	id, err := uuidGenerator.Next()
	if err != nil {
		t.Fatalf("failed to generate id: %v", err)
	}
	playlist := repository.Playlist{ID: id, Name: name, Identifiers: identifiers}
	if err := repo.Save(t.Context(), playlist); err != nil {
		t.Fatalf("failed to save playlist: %v", err)
	}
}

func TerminatePostgresForE2E() {
	wg.Wait()
	if postgresContainer != nil {
		err := postgresContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}

var (
	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisURL       string
	redisErr       error
	redisWG        sync.WaitGroup
)

// UseRedis provisions or reuses a Redis container and returns a client
// connected to it. Keys are shared across tests.
func UseRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisErr = tcredis.Run(ctx, "redis:7")
		if redisErr != nil {
			return
		}
		redisURL, redisErr = redisContainer.ConnectionString(ctx)
	})
	if redisErr != nil {
		t.Fatalf("failed to start redis container: %v", redisErr)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	redisWG.Add(1)
	t.Cleanup(func() {
		client.Close()
		redisWG.Done()
	})
	return client
}

func TerminateRedisForE2E() {
	redisWG.Wait()
	if redisContainer != nil {
		if err := redisContainer.Terminate(context.Background()); err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
}

// WriteFrames writes a track of n length-prefixed frames to dir/name.
// Frame i starts with the byte i.
func WriteFrames(t *testing.T, dir, name string, n int) {
	t.Helper()
	var buf bytes.Buffer
	for i := range n {
		if err := opus.WriteFrame(&buf, []byte{byte(i), 0xf8, 0xff, 0xfe}); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}
