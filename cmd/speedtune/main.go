// speedtune attaches to Chrome over the DevTools protocol and pins the
// playback rate of the primary video on every attached tab.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/bridge"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/config"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/server"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/settings"
)

var version = "dev"

const targetPollInterval = 2 * time.Second

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("speedtune %s\n", version)
		os.Exit(0)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		slog.Error("cannot create state dir", "err", err)
		os.Exit(1)
	}
	store := settings.NewFileStore(cfg.StateDir)

	_, allocCancel, browserCtx, browserCancel, err := bridge.InitChrome(cfg)
	if err != nil {
		slog.Error("chrome startup failed", "err", err)
		os.Exit(1)
	}
	defer allocCancel()
	defer browserCancel()

	b := bridge.New(browserCtx, cfg, store, slog.Default())

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	go b.Watch(watchCtx, targetPollInterval)

	mux := http.NewServeMux()
	h := server.New(b, b.Events, cfg)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.LoggingMiddleware(server.CorsMiddleware(server.AuthMiddleware(cfg, mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownOnce := &sync.Once{}
	doShutdown := func() {
		shutdownOnce.Do(func() {
			slog.Info("shutting down")
			watchCancel()
			b.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(ctx)

			browserCancel()
			allocCancel()
		})
	}

	go func() {
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		go doShutdown()
		<-sig
		slog.Warn("force shutdown requested")
		os.Exit(130)
	}()

	slog.Info("speedtune running", "addr", cfg.ListenAddr(), "cdp", cfg.CdpURL, "token", config.MaskToken(cfg.Token))

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server", "err", err)
		os.Exit(1)
	}
}
