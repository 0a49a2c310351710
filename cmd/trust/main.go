package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhttp "github.com/AlibekovAA/dh-trust/backend/internal/auth/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/cleanup"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/bootstrap"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	srv "github.com/AlibekovAA/dh-trust/backend/internal/common/server"
	consenthttp "github.com/AlibekovAA/dh-trust/backend/internal/consent/http"
	identityhttp "github.com/AlibekovAA/dh-trust/backend/internal/identity/http"
	messagehttp "github.com/AlibekovAA/dh-trust/backend/internal/message/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/realtime"
	rotationhttp "github.com/AlibekovAA/dh-trust/backend/internal/rotation/http"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start trust service: %v\n", err)
		os.Exit(1)
	}
	defer app.Storage.Close()

	log := app.Log
	cfg := app.Config

	scheduler, err := cleanup.NewScheduler(app.Storage.TTL, "ttl_entries", cfg.CleanupCron, app.Clock, log)
	if err != nil {
		log.Fatalf("failed to create cleanup scheduler: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		app.Hub.Run(ctx)
	}()

	restMux := http.NewServeMux()
	restMux.HandleFunc("GET /health", commonhttp.HealthHandler(log))
	restMux.HandleFunc("GET /ready", commonhttp.ReadyHandler(app.Storage.Pinger, log))
	restMux.Handle("GET /metrics", promhttp.Handler())

	authhttp.NewHandler(app.Auth, app.Limiters, cfg.RequestTimeout, log).Register(restMux)
	identityhttp.NewHandler(app.Identity, app.Verifier, cfg.AdminAPIKey, cfg.RequestTimeout, log).Register(restMux)
	rotationhttp.NewHandler(app.Rotation, app.Limiters, cfg.AdminAPIKey, cfg.RequestTimeout, log).Register(restMux)
	messagehttp.NewHandler(app.Messages, app.Verifier, app.Identity, cfg.SystemAPIKey, app.Limiters, cfg.RequestTimeout, log).Register(restMux)
	consenthttp.NewHandler(app.Consent, app.Verifier, app.Identity, cfg.RequestTimeout, log).Register(restMux)

	// The upgrade needs the raw connection, so /ws stays outside the wrapped stack.
	mainMux := http.NewServeMux()
	realtime.NewHandler(app.Hub, app.Verifier, app.Identity, realtime.DefaultClientConfig(), log).Register(mainMux)
	mainMux.Handle("/", commonhttp.BuildBaseHandler(log, restMux))

	serverConfig := srv.FromTrustConfig(cfg)
	server := srv.NewServer(serverConfig, mainMux)

	shutdownHooks := []srv.ShutdownHook{
		func(ctx context.Context) error {
			log.Info("trust service: stopping hub and cleanup")
			cancel()
			wg.Wait()
			return nil
		},
		func(ctx context.Context) error {
			app.Limiters.Stop()
			return nil
		},
	}

	srv.Run(server, serverConfig, log, shutdownHooks)
}
