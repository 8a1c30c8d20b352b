package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glizzus/soundlink/internal/config"
	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/generator"
	"github.com/glizzus/soundlink/internal/loader"
	"github.com/glizzus/soundlink/internal/opus"
	"github.com/glizzus/soundlink/internal/playback"
	"github.com/glizzus/soundlink/internal/repository"
	"github.com/urfave/cli/v2"
)

var uuidGenerator = generator.UUIDV4Generator{}

func resolve(ctx context.Context, manager engine.Manager, identifier string) error {
	future, err := loader.New(manager).Load(identifier)
	if err != nil {
		return err
	}
	result, err := future.Wait(ctx)
	if err != nil {
		return err
	}

	log.Printf("%s: %s", identifier, result.Kind)
	if result.Kind == loader.KindFailed {
		log.Printf("  %s (%s)", result.Err.Message, result.Err.Severity)
		return nil
	}
	for i, track := range result.Tracks() {
		info := track.Info()
		encoded, err := manager.EncodeTrack(track)
		if err != nil {
			encoded = "<" + err.Error() + ">"
		}
		log.Printf("  %d. %s by %s [%s, %s] %s", i+1, info.Title, info.Author, info.SourceName, info.Length, encoded)
	}
	return nil
}

// upload stores path as length-prefixed Opus frames under key. Files that
// are not already frames are transcoded with ffmpeg.
func upload(ctx context.Context, storage datalayer.BlobStorage, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".dca", ".frames":
		return storage.Put(ctx, key, f, datalayer.PutOptions{Size: -1, ContentType: "application/x-opus-frames"})
	}

	encoded, err := opus.Encode(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	defer encoded.Close()
	return storage.Put(ctx, key, encoded, datalayer.PutOptions{Size: -1, ContentType: "application/x-opus-frames"})
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	integrations, err := datalayer.ConnectFromEnv(context.Background())
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer integrations.Close()

	playlists := func() (*repository.PostgresPlaylistRepository, error) {
		if integrations.Postgres == nil {
			return nil, cli.Exit("Postgres is not configured, set the POSTGRES_* variables", 1)
		}
		return repository.NewPostgresPlaylistRepository(integrations.Postgres), nil
	}
	blocklist := func() (*eventlog.RedisBlocklist, error) {
		if integrations.Redis == nil {
			return nil, cli.Exit("Redis is not configured, set REDIS_ADDR", 1)
		}
		return eventlog.NewRedisBlocklist(integrations.Redis, integrations.RedisConfig.Blocklist), nil
	}

	app := &cli.App{
		Name:        "soundlink-cli",
		Description: "A development CLI tool for testing soundlink without a controller",
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "Resolve identifiers the way the node would",
				ArgsUsage: "<identifier>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "audio-dir",
						Usage:   "Directory for local file identifiers",
						EnvVars: []string{"AUDIO_DIR"},
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("Please provide at least one identifier", 1)
					}
					manager := playback.NewManager(playback.Config{}, playback.IntegrationOptions(integrations, c.String("audio-dir"))...)
					ctx, cancel := context.WithTimeout(c.Context, time.Minute)
					defer cancel()
					for _, identifier := range c.Args().Slice() {
						if err := resolve(ctx, manager, identifier); err != nil {
							return cli.Exit("Failed to resolve "+identifier+": "+err.Error(), 1)
						}
					}
					return nil
				},
			},
			{
				Name:  "playlist",
				Usage: "Manage stored playlists",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Create or replace a playlist",
						ArgsUsage: "<identifier>...",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "Name of the playlist", Required: true},
						},
						Action: func(c *cli.Context) error {
							repo, err := playlists()
							if err != nil {
								return err
							}
							id, err := uuidGenerator.Next()
							if err != nil {
								return cli.Exit("Failed to generate id: "+err.Error(), 1)
							}
							name := c.String("name")
							if existing, err := repo.FindByName(c.Context, name); err == nil {
								id = existing.ID
							}

							playlist := repository.Playlist{ID: id, Name: name, Identifiers: c.Args().Slice()}
							if err := repo.Save(c.Context, playlist); err != nil {
								return cli.Exit("Failed to save playlist: "+err.Error(), 1)
							}
							log.Printf("Saved playlist %s with %d tracks.", name, len(playlist.Identifiers))
							return nil
						},
					},
					{
						Name:  "list",
						Usage: "List all playlists",
						Action: func(c *cli.Context) error {
							repo, err := playlists()
							if err != nil {
								return err
							}
							all, err := repo.List(c.Context)
							if err != nil {
								return cli.Exit("Failed to list playlists: "+err.Error(), 1)
							}
							if len(all) == 0 {
								log.Println("No playlists found.")
								return nil
							}
							for _, playlist := range all {
								log.Printf("%s (%d tracks): %s", playlist.Name, len(playlist.Identifiers), strings.Join(playlist.Identifiers, ", "))
							}
							return nil
						},
					},
					{
						Name:  "delete",
						Usage: "Delete a playlist",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "Name of the playlist", Required: true},
						},
						Action: func(c *cli.Context) error {
							repo, err := playlists()
							if err != nil {
								return err
							}
							if err := repo.Delete(c.Context, c.String("name")); err != nil {
								return cli.Exit("Failed to delete playlist: "+err.Error(), 1)
							}
							log.Println("Playlist deleted.")
							return nil
						},
					},
				},
			},
			{
				Name:      "block",
				Usage:     "Stop an identifier from resolving",
				ArgsUsage: "<identifier>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "remove", Usage: "Unblock the identifier instead"},
				},
				Action: func(c *cli.Context) error {
					list, err := blocklist()
					if err != nil {
						return err
					}
					identifier := c.Args().First()
					if identifier == "" {
						return cli.Exit("Please provide an identifier", 1)
					}
					if c.Bool("remove") {
						err = list.Unblock(c.Context, identifier)
					} else {
						err = list.Block(c.Context, identifier)
					}
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					log.Printf("Updated blocklist for %s.", identifier)
					return nil
				},
			},
			{
				Name:  "events",
				Usage: "Show the most recent messages sent to controllers",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "count", Usage: "Number of messages", Value: 20},
				},
				Action: func(c *cli.Context) error {
					if integrations.Redis == nil {
						return cli.Exit("Redis is not configured, set REDIS_ADDR", 1)
					}
					publisher := eventlog.NewRedisPublisher(integrations.Redis, integrations.RedisConfig.Stream)
					entries, err := publisher.Recent(c.Context, c.Int64("count"))
					if err != nil {
						return cli.Exit("Failed to read events: "+err.Error(), 1)
					}
					for _, entry := range entries {
						log.Printf("%s %s %s %s", entry.Time.Format(time.RFC3339), entry.SessionID, entry.Op, entry.Payload)
					}
					return nil
				},
			},
			{
				Name:      "upload",
				Usage:     "Store an audio file as a blob: track",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "Blob key, defaults to the file name"},
				},
				Action: func(c *cli.Context) error {
					if integrations.Minio == nil {
						return cli.Exit("Minio is not configured, set the MINIO_* variables", 1)
					}
					path := c.Args().First()
					if path == "" {
						return cli.Exit("Please provide a file", 1)
					}
					key := c.String("key")
					if key == "" {
						key = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
					}
					if err := upload(c.Context, integrations.Minio, path, key); err != nil {
						return cli.Exit("Failed to upload: "+err.Error(), 1)
					}
					log.Printf("Uploaded %s as blob:%s", path, key)
					return nil
				},
			},
		},
	}

	err = app.Run(os.Args)
	if err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
