package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"campus-bus-tracker/internal/logging"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	routes, err := loadRoutes(cfg.RoutesFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("routes")
	}

	feed := cfg.feedSource()
	var poll *poller
	hub := newHub(routes, func() []Vehicle { return poll.Snapshot() })
	poll = newPoller(feed, cfg.RefreshMinSecs, hub.broadcast)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           (&server{poller: poll, hub: hub, routes: routes, staticDir: cfg.StaticDir}).routesHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Int("port", cfg.Port).Int("routes", len(routes)).Msgf("server starting on http://localhost:%d/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// start poller
	pctx, pcancel := context.WithCancel(context.Background())
	go poll.run(pctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logging.Info().Msg("shutdown initiated...")

	pcancel()
	hub.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logging.Info().Msg("HTTP server shut down successfully")
	}
}
