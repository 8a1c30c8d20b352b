package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/repository"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := t.Context()

	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("soundlink"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}
	return pool
}

func TestPlaylistRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pool := startPostgres(t)
	repo := repository.NewPostgresPlaylistRepository(pool)
	ctx := t.Context()

	morning := repository.Playlist{
		ID:          "302808d9-141e-410d-a69d-2418ad15b5de",
		Name:        "morning",
		Identifiers: []string{"blob:wake-up", "https://example.com/coffee.ogg", "blob:news"},
	}
	empty := repository.Playlist{
		ID:   "8597e24a-f204-4c88-bad0-fe0ab9a73ff1",
		Name: "empty",
	}
	for _, playlist := range []repository.Playlist{morning, empty} {
		if err := repo.Save(ctx, playlist); err != nil {
			t.Fatalf("Save(%s) returned error: %v", playlist.Name, err)
		}
	}

	t.Run("FindByName keeps track order", func(t *testing.T) {
		got, err := repo.FindByName(ctx, "morning")
		if err != nil {
			t.Fatalf("FindByName() returned error: %v", err)
		}
		if diff := cmp.Diff(morning.Identifiers, got.Identifiers); diff != "" {
			t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set by the database")
		}
	})

	t.Run("Save replaces tracks", func(t *testing.T) {
		morning.Identifiers = []string{"blob:news"}
		if err := repo.Save(ctx, morning); err != nil {
			t.Fatalf("Save() returned error: %v", err)
		}
		got, err := repo.FindByName(ctx, "morning")
		if err != nil {
			t.Fatalf("FindByName() returned error: %v", err)
		}
		if diff := cmp.Diff([]string{"blob:news"}, got.Identifiers); diff != "" {
			t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List is ordered by name", func(t *testing.T) {
		playlists, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() returned error: %v", err)
		}
		var names []string
		for _, playlist := range playlists {
			names = append(names, playlist.Name)
		}
		if diff := cmp.Diff([]string{"empty", "morning"}, names); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
		if len(playlists[0].Identifiers) != 0 {
			t.Errorf("empty playlist has identifiers %v", playlists[0].Identifiers)
		}
	})

	t.Run("Delete removes the playlist", func(t *testing.T) {
		if err := repo.Delete(ctx, "empty"); err != nil {
			t.Fatalf("Delete() returned error: %v", err)
		}
		if _, err := repo.FindByName(ctx, "empty"); !errors.Is(err, repository.ErrPlaylistNotFound) {
			t.Errorf("FindByName() error = %v, want ErrPlaylistNotFound", err)
		}
		if err := repo.Delete(ctx, "empty"); !errors.Is(err, repository.ErrPlaylistNotFound) {
			t.Errorf("Delete() error = %v, want ErrPlaylistNotFound", err)
		}
	})
}
