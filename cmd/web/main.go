// cmd/web/main.go
//
// Pulse – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load configuration (.env → conf/global.yaml → PULSE_ env → Vault).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Wire stores, sync, intake, and the chat flow (internal/app).
//
//  4. Build the chi router and open the optional GeoLite2 database.
//
//  5. Serve HTTP and, when configured, the Pub/Sub change-event
//     subscriber.  Both stop on SIGINT/SIGTERM; the server drains
//     in-flight requests first.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/publicpulse/pulse/internal/api"
	"github.com/publicpulse/pulse/internal/app"
	"github.com/publicpulse/pulse/internal/config"
	"github.com/publicpulse/pulse/internal/events"
	"github.com/publicpulse/pulse/internal/logger"
	"github.com/publicpulse/pulse/internal/requestinfo"
	"github.com/publicpulse/pulse/internal/server"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, cfg.Log.Level, cfg.Log.Console || runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logOut); err != nil {
		logOut.Errorw("pulse stopped", "err", err)
		os.Exit(1)
	}
	logOut.Infow("pulse stopped")
}

func run(ctx context.Context, cfg *config.Config, logOut *zap.SugaredLogger) error {
	a, err := app.Build(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logOut.Warnw("close resources", "err", err)
		}
	}()

	var geo *requestinfo.GeoDB
	if cfg.HTTP.GeoIPPath != "" {
		if geo, err = requestinfo.OpenGeo(cfg.HTTP.GeoIPPath); err != nil {
			logOut.Warnw("geoip disabled", "err", err)
			geo = nil
		}
		defer geo.Close()
	}

	router := api.NewRouter(api.Deps{
		Intake:   a.Intake,
		Geocoder: a.Geocoder,
		Sync:     a.Sync,
		Flow:     a.Flow,
	}, api.Options{
		APIKey:     cfg.Auth.APIKey,
		PushToken:  cfg.Auth.PushToken,
		ForceHTTPS: cfg.HTTP.ForceHTTPS,
		Geo:        geo,
	}, logOut.Named("http"))

	timeouts := server.Timeouts{
		Read:     cfg.HTTP.ReadTimeout,
		Write:    cfg.HTTP.WriteTimeout,
		Idle:     cfg.HTTP.IdleTimeout,
		Shutdown: cfg.HTTP.ShutdownTimeout,
	}
	srv := server.New(cfg.HTTP.ListenAddr, router, timeouts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, srv, timeouts, logOut) })
	if a.PubSub != nil && cfg.PubSub.EventsSubscription != "" {
		sub := events.NewSubscriber(a.PubSub.Subscription(cfg.PubSub.EventsSubscription), a.Sync, logOut.Named("events"))
		g.Go(func() error { return sub.Run(gctx) })
	}
	return g.Wait()
}
