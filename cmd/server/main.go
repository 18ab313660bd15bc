package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gcswan/ding/internal/config"
	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/doorbell"
	"github.com/gcswan/ding/internal/notify"
	"github.com/gcswan/ding/internal/platform/logging"
	"github.com/gcswan/ding/internal/redis"
	"github.com/gcswan/ding/internal/relay"
	"github.com/gcswan/ding/internal/server"
	"github.com/gcswan/ding/internal/store"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupStore picks Redis when configured, otherwise the in-memory store.
// The returned client is nil for the memory store.
func setupStore(cfg *config.Config) (domain.Store, *redis.Client) {
	if cfg.RedisURL == "" {
		slog.Info("No REDIS_URL configured, using in-memory store")
		return store.NewMemory(), nil
	}

	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	return redis.NewStore(client), client
}

func buildChannels(cfg *config.Config, sinks domain.SinkRegistry) []notify.Channel {
	channels := []notify.Channel{notify.NewPushChannel(sinks)}

	if cfg.SMSEnabled() {
		channels = append(channels, notify.NewSMSChannel(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber,
			splitRecipients(cfg.SMSDefaultTargets)))
		slog.Info("SMS notifications enabled", "from", cfg.TwilioFromNumber)
	}

	if cfg.WebhookDefaultURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.WebhookDefaultURL))
		slog.Info("Webhook notifications enabled")
	}

	return channels
}

func splitRecipients(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func runGracefulShutdown(srv *server.Server, svc *doorbell.Service, hub *relay.Hub, redisClient *redis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		svc.Stop()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Redis close error", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	sessionStore, redisClient := setupStore(cfg)

	sinks := store.NewSinks()
	dispatcher := notify.NewDispatcher(sessionStore, clock, cfg.NotifyChannelTimeout, buildChannels(cfg, sinks)...)

	svc := doorbell.NewService(sessionStore, clock, cfg.PendingSessionTTL)

	onGroupOpened := func(videoSessionID string) {
		if err := svc.ActivateVideo(context.Background(), videoSessionID); err != nil {
			slog.Error("Failed to activate video session", "video_session_id", videoSessionID, "error", err)
		}
	}
	onGroupClosed := func(videoSessionID string) {
		if err := svc.EndVideo(context.Background(), videoSessionID); err != nil {
			slog.Error("Failed to end video session", "video_session_id", videoSessionID, "error", err)
		}
	}
	hub := relay.NewHub(onGroupOpened, onGroupClosed, clock,
		cfg.RelayMaxClientsPerGroup, cfg.RelaySendBuffer, cfg.HeartbeatInterval)

	// Pass nil explicitly for the memory store to avoid a typed-nil pinger.
	var srv *server.Server
	if redisClient != nil {
		srv = server.NewServer(cfg, svc, dispatcher, hub, sinks, redisClient, clock)
	} else {
		srv = server.NewServer(cfg, svc, dispatcher, hub, sinks, nil, clock)
	}

	done := runGracefulShutdown(srv, svc, hub, redisClient)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
