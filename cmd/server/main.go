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

	router "github.com/dkeye/voxroom/internal/adapters/http"
	"github.com/dkeye/voxroom/internal/adapters/rtc"
	signalws "github.com/dkeye/voxroom/internal/adapters/signal"
	"github.com/dkeye/voxroom/internal/adapters/storage"
	"github.com/dkeye/voxroom/internal/adapters/wsclient"
	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/hub"
	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/app/sfu"
	"github.com/dkeye/voxroom/internal/auth"
	"github.com/dkeye/voxroom/internal/config"
	"github.com/dkeye/voxroom/internal/domain"
)

const janitorInterval = 30 * time.Second

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)
	log.Info().Str("file", config.File()).Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config loaded")

	store, err := storage.Open(cfg.BadgerPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BadgerPath).Msg("failed to open message store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close message store")
		}
	}()

	issuer := auth.NewIssuer(auth.Config{
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		ParticipantTTL: cfg.ParticipantTokenTTL,
		AgentTTL:       cfg.Agent.TokenTTL,
		AgentName:      cfg.Agent.Name,
	})

	accounts := auth.NewAccounts(store.Accounts(), auth.AccountsConfig{
		Secret:     cfg.Auth.JWTSecret,
		SessionTTL: cfg.Auth.SessionTTL,
		Reserved:   []string{cfg.Agent.Identity, cfg.Agent.Name},
	})

	h := &hub.Hub{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(cfg.Room.MaxParticipants),
		Policy:   app.SimplePolicy{},
		Relays:   sfu.NewRelayManager(),
	}
	signals := signalws.NewSignalWSController(h, issuer, signalws.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		RTC:        rtc.DefaultWebRTCConfig(cfg.ICEServers),
	})

	// The agent is a data-only participant dialling this server's public endpoint.
	agentTransport := wsclient.NewProvider(wsclient.Config{})
	agents := orch.NewOrchestrator(issuer, agentTransport, store, app.KeywordPolicy{}, orch.Config{
		URL:            cfg.PublicWSURL,
		Identity:       domain.Identity(cfg.Agent.Identity),
		Name:           cfg.Agent.Name,
		PersistTimeout: cfg.PersistTimeout,
	})

	// Signalling connections outlive the HTTP listener so the agent can leave cleanly.
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go h.RunJanitor(serveCtx, janitorInterval, cfg.Room.EmptyTimeout)

	r := router.SetupRouter(serveCtx, cfg, router.Deps{
		Tokens:   issuer,
		Accounts: accounts,
		Agents:   agents,
		Hub:      h,
		History:  store,
		Signal:   signals,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voxroom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	agents.Shutdown(shutdownCtx)
	stopServe()
	log.Info().Msg("Server exited gracefully")
}
