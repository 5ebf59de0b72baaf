package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"blackball/internal/app"
	"blackball/internal/config"
	"blackball/internal/ports/rest"
	"blackball/internal/ports/ws"
	"blackball/internal/room"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets := app.NewSecretService(cfg.SecretKey)
	registry := room.NewRegistry(ctx, room.Options{
		MaxPlayers:      cfg.MaxPlayers,
		EventBatchSize:  cfg.EventBatchSize,
		InboundQueue:    cfg.InboundQueue,
		BroadcastBuffer: cfg.BroadcastBuffer,
	}, secrets, logger)

	reaper := room.NewReaper(registry, cfg.ReapInterval, cfg.StaleTimeout, logger)
	go reaper.Run(ctx)

	gateway := ws.NewGateway(registry, logger, originChecker(cfg.AllowedOrigins))
	api := rest.NewHandler(registry, logger)

	router := api.Routes(cfg.AllowedOrigins)
	router.Handle("/ws", gateway)
	// Room-scoped alias; the lobby still comes from the Connect frame.
	router.Handle("/rooms/{code}/ws", gateway)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// originChecker approves websocket upgrades from the configured origins; "*"
// approves everything, matching the CORS layer on the REST side.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}
