package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/medmmo/roomsync/internal/adapters/http"
	"github.com/medmmo/roomsync/internal/adapters/ws"
	"github.com/medmmo/roomsync/internal/app"
	"github.com/medmmo/roomsync/internal/auth"
	"github.com/medmmo/roomsync/internal/config"
	"github.com/medmmo/roomsync/internal/core"
	"github.com/medmmo/roomsync/internal/events"
	"github.com/medmmo/roomsync/internal/presence"
	"github.com/medmmo/roomsync/internal/storage/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("secret is required")
	}

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	var pres presence.Store
	if cfg.RedisAddr != "" {
		rs, err := presence.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		pres = rs
	} else {
		log.Warn().Msg("no redis configured, using in-memory presence")
		pres = presence.NewMemoryStore()
	}

	var feed core.EventPublisher
	if cfg.NatsURL != "" {
		pub, err := events.Connect(cfg.NatsURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer pub.Close()
		feed = pub
	}

	rooms := app.NewRoomManager(core.Options{
		Store:    store,
		Presence: pres,
		Events:   feed,
	})
	authn := auth.New(cfg.Secret, store)
	ctl := ws.NewController(rooms, authn)

	r := router.SetupRouter(ctx, cfg, rooms, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("roomsync server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	rooms.Shutdown()
	log.Info().Msg("Server exited gracefully")
}
