package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPlaylistNotFound = errors.New("playlist not found")

// Playlist is a named, ordered list of identifiers resolved through the
// engine when played.
type Playlist struct {
	ID          string
	Name        string
	Identifiers []string
	CreatedAt   time.Time
}

type PlaylistPersister interface {
	Save(ctx context.Context, playlist Playlist) error
}

type PlaylistFinder interface {
	FindByName(ctx context.Context, name string) (*Playlist, error)
}

type PlaylistStore interface {
	PlaylistPersister
	PlaylistFinder
	List(ctx context.Context) ([]Playlist, error)
	Delete(ctx context.Context, name string) error
}

type PostgresPlaylistRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPlaylistRepository(db *pgxpool.Pool) *PostgresPlaylistRepository {
	return &PostgresPlaylistRepository{db: db}
}

// Save creates the playlist or replaces its name and tracks.
func (r *PostgresPlaylistRepository) Save(ctx context.Context, playlist Playlist) error {
	const playlistQuery = `
	INSERT INTO playlist (id, playlist_name)
	VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET
		playlist_name = EXCLUDED.playlist_name
	`

	const clearTracksQuery = `DELETE FROM playlist_track WHERE playlist_id = $1`

	const tracksQuery = `
	INSERT INTO playlist_track (playlist_id, position, identifier)
	SELECT $1, (t.ord - 1)::int, t.identifier
	FROM unnest($2::text[]) WITH ORDINALITY AS t(identifier, ord)
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Warn("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, playlistQuery, playlist.ID, playlist.Name); err != nil {
		return fmt.Errorf("failed to execute playlist query: %w", err)
	}
	if _, err := tx.Exec(ctx, clearTracksQuery, playlist.ID); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	if len(playlist.Identifiers) > 0 {
		if _, err := tx.Exec(ctx, tracksQuery, playlist.ID, playlist.Identifiers); err != nil {
			return fmt.Errorf("failed to execute playlist tracks query: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresPlaylistRepository) FindByName(ctx context.Context, name string) (*Playlist, error) {
	const query = `
	SELECT p.id, p.playlist_name, p.created_at,
		COALESCE(array_agg(t.identifier ORDER BY t.position) FILTER (WHERE t.identifier IS NOT NULL), '{}')
	FROM playlist p
	LEFT JOIN playlist_track t ON t.playlist_id = p.id
	WHERE p.playlist_name = $1
	GROUP BY p.id
	`

	var playlist Playlist
	err := r.db.QueryRow(ctx, query, name).Scan(&playlist.ID, &playlist.Name, &playlist.CreatedAt, &playlist.Identifiers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
		}
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	return &playlist, nil
}

func (r *PostgresPlaylistRepository) List(ctx context.Context) ([]Playlist, error) {
	const query = `
	SELECT p.id, p.playlist_name, p.created_at,
		COALESCE(array_agg(t.identifier ORDER BY t.position) FILTER (WHERE t.identifier IS NOT NULL), '{}')
	FROM playlist p
	LEFT JOIN playlist_track t ON t.playlist_id = p.id
	GROUP BY p.id
	ORDER BY p.playlist_name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var playlist Playlist
		if err := rows.Scan(&playlist.ID, &playlist.Name, &playlist.CreatedAt, &playlist.Identifiers); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playlists: %w", err)
	}
	return playlists, nil
}

func (r *PostgresPlaylistRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM playlist WHERE playlist_name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
	}
	return nil
}

var _ PlaylistStore = (*PostgresPlaylistRepository)(nil)
