package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsechat/stream/config"
	"github.com/pulsechat/stream/src/bridge"
	"github.com/pulsechat/stream/src/hub"
	"github.com/pulsechat/stream/src/server"
	"github.com/pulsechat/stream/src/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	cfg := config.ConfigFromEnv()

	registry := hub.NewRegistry(cfg, logger)
	rooms := hub.NewRooms(registry, logger)
	registry.SetRooms(rooms)
	svc := service.New(registry, rooms, logger)
	srv := server.New(svc, logger)

	// Redis bridge is optional: when unreachable the instance runs standalone.
	rb := bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), rooms, logger)
	if err := rb.Start(); err != nil {
		logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		rb = nil
	} else {
		rooms.SetBridge(rb)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		registry.Run()
		return nil
	})
	g.Go(func() error {
		return srv.Listen(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		if rb != nil {
			if err := rb.Stop(); err != nil {
				logger.Error().Err(err).Msg("bridge stop error")
			}
		}
		registry.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}
