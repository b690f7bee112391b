package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/client"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/sink"
	"github.com/dkeye/Tandem/internal/source"
	"github.com/dkeye/Tandem/internal/syncer"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	role := domain.Role(cfg.Agent.Role)
	if !role.Valid() {
		log.Fatal().Str("role", cfg.Agent.Role).Msg("agent.role must be source or follower")
	}

	sup := client.NewSupervisor(client.Config{
		URL:          cfg.Agent.RelayURL,
		Session:      domain.SessionKey(cfg.Agent.Session),
		Role:         role,
		FollowerID:   cfg.Agent.FollowerID,
		Heartbeat:    cfg.Heartbeat,
		InitialDelay: cfg.Agent.InitialDelay,
		MaxAttempts:  cfg.Agent.MaxAttempts,
	})
	sup.OnTerminal = func(err error) {
		log.Error().Err(err).Msg("relay unreachable")
		cancel()
	}

	switch role {
	case domain.RoleFollower:
		policy := syncer.Policy{
			Throttle:         cfg.Sync.Throttle,
			SeekCooldown:     cfg.Sync.SeekCooldown,
			DriftThresholdMs: cfg.Sync.DriftThresholdMs,
		}
		runner := syncer.NewRunner(sink.LogPlayer{}, policy, clockwork.NewRealClock())
		sup.OnSnapshot = runner.Handle
		sup.OnOpen = runner.Reset
		sup.Start(ctx)
		log.Info().Str("session", cfg.Agent.Session).Msg("follower agent started")
		<-ctx.Done()

	case domain.RoleSource:
		sup.Start(ctx)
		log.Info().Str("session", cfg.Agent.Session).Msg("source agent started, reading snapshots from stdin")
		det := source.LineDetector{R: os.Stdin}
		if err := det.Run(ctx, sup.Publish); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("snapshot source failed")
		}
	}

	sup.Stop()
	log.Info().Msg("Agent exited gracefully")
}
