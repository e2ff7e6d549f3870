package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memberconsole/internal/config"
	"memberconsole/internal/daemon"
	"memberconsole/internal/devserver"
	"memberconsole/internal/logger"
	"memberconsole/internal/monitoring"
	"memberconsole/internal/openfga"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "devserver:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", "", "YAML config overlay")
	flag.Parse()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Telemetry.ServiceName == "memberconsole" {
		cfg.Telemetry.ServiceName = "memberconsole-devserver"
	}

	tel, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	log := logger.New(*cfg, os.Stdout)

	seed := devserver.DefaultSeed()
	if cfg.DevServer.SeedFile != "" {
		if seed, err = devserver.LoadSeed(cfg.DevServer.SeedFile); err != nil {
			return err
		}
	}
	store, err := devserver.NewStore(seed, devserver.WithTokenTTL(cfg.DevServer.AccessTTL, cfg.DevServer.RefreshTTL))
	if err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	fga, err := openfga.NewClient(cfg.OpenFGA, log.Component("openfga"))
	if err != nil {
		return err
	}
	if err := fga.Verify(ctx); err != nil {
		return fmt.Errorf("verify OpenFGA store: %w", err)
	}

	var throttle devserver.LoginThrottle
	if cfg.DevServer.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.DevServer.RedisAddr})
		defer rdb.Close()
		throttle = devserver.NewRedisThrottle(rdb, cfg.DevServer.LoginRateLimit, 15*time.Minute)
	}

	srv := devserver.New(devserver.Options{
		Store:          store,
		Authorizer:     openfga.NewAuthorizer(fga),
		Throttle:       throttle,
		Tracer:         tel.Tracer("memberconsole/devserver"),
		Logger:         log.Logger,
		LoginRateLimit: cfg.DevServer.LoginRateLimit,
	})

	daemons := daemon.NewManager(log.Logger)
	if cfg.DevServer.PurgeInterval > 0 {
		daemons.Add("token-cleanup", daemon.CleanupTask(store, cfg.DevServer.PurgeInterval, log.Logger))
	}
	daemonCtx, stopDaemons := context.WithCancel(ctx)
	daemons.Start(daemonCtx)
	defer func() {
		stopDaemons()
		daemons.Wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.DevServer.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down dev server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
