package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/glizzus/soundlink/internal/config"
	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/playback"
	"github.com/glizzus/soundlink/internal/player"
	"github.com/glizzus/soundlink/internal/socket"
	"github.com/glizzus/soundlink/internal/voice"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVoiceGateway() (socket.VoiceGateway, func(), error) {
	if !config.Enabled("DISCORD_TOKEN") {
		slog.Warn("DISCORD_TOKEN is not set, voice connections are disabled")
		return nil, func() {}, nil
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load discord config: %w", err)
	}
	session, err := voice.NewSession(discordConfig.Token, voice.ReadyLog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open session: %w", err)
	}
	closeSession := func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}

	gateway := voice.NewGateway(session)
	join := socket.JoinFunc(func(ctx context.Context, guildID uint64, channelID string) (socket.VoiceConnection, error) {
		conn, err := gateway.Join(ctx, guildID, channelID)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	return join, closeSession, nil
}

func runNodeForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	nodeConfig, err := config.NewNodeConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load node config: %w", err)
	}
	level, err := nodeConfig.SlogLevel()
	if err != nil {
		return err
	}
	slog.SetLogLoggerLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	integrations, err := datalayer.ConnectFromEnv(ctx)
	if err != nil {
		return err
	}
	defer integrations.Close()

	manager := playback.NewManager(playback.Config{
		StuckThreshold: nodeConfig.TrackStuckThreshold,
		BufferDuration: nodeConfig.FrameBufferDuration,
	}, playback.IntegrationOptions(integrations, nodeConfig.AudioDir)...)

	gateway, closeGateway, err := newVoiceGateway()
	if err != nil {
		return err
	}
	defer closeGateway()

	opts := []socket.Option{}
	if integrations.Redis != nil {
		opts = append(opts, socket.WithPublisher(eventlog.NewRedisPublisher(integrations.Redis, integrations.RedisConfig.Stream)))
	}
	server, err := socket.NewServer(socket.Config{
		Password:  nodeConfig.Password,
		StatsCron: nodeConfig.StatsCron,
		Player:    player.Config{UpdateInterval: nodeConfig.UpdateInterval()},
		Info:      socket.Info{Version: version, Build: "soundlink"},
	}, manager, gateway, opts...)
	if err != nil {
		return fmt.Errorf("failed to create socket server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              nodeConfig.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		slog.Info("Listening for controllers", "addr", nodeConfig.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	server.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shut down http server", "error", err)
	}
	return nil
}

func main() {
	if err := runNodeForever(); err != nil {
		log.Fatalf("failed to run node: %v", err)
	}
}
