package playback

import (
	"net/http"
	"time"

	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/repository"
)

// IntegrationOptions configures sources and lookups for whatever in has
// connected. Blobs come first, then http, then files under audioDir when
// it is set.
func IntegrationOptions(in *datalayer.Integrations, audioDir string) []Option {
	var opts []Option
	if in.Minio != nil {
		opts = append(opts, WithSource(NewBlobSource(in.Minio)))
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 15 * time.Second
	opts = append(opts, WithSource(NewHTTPSource(&http.Client{Transport: transport})))
	if audioDir != "" {
		opts = append(opts, WithSource(NewFileSource(audioDir)))
	}
	if in.Postgres != nil {
		opts = append(opts, WithPlaylists(repository.NewPostgresPlaylistRepository(in.Postgres)))
	}
	if in.Redis != nil {
		opts = append(opts, WithBlocklist(eventlog.NewRedisBlocklist(in.Redis, in.RedisConfig.Blocklist)))
	}
	return opts
}
