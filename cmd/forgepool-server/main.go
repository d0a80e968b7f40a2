package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/forgepool/forgepool/internal/catalogsrc"
	"github.com/forgepool/forgepool/internal/config"
	"github.com/forgepool/forgepool/internal/ctrl"
	"github.com/forgepool/forgepool/internal/logx"
	"github.com/forgepool/forgepool/internal/server"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	// Allow --config to override file path before loading it
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlags()
	flag.Parse()

	if *showVersion {
		fmt.Printf("forgepool-server version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)

	fetcher, err := catalogsrc.New(cfg.CatalogSource, cfg.CatalogRedisKey)
	if err != nil {
		if len(cfg.DefaultLibraries) == 0 {
			logx.Log.Fatal().Err(err).Msg("catalog source")
		}
		// Defaults-only deployment: fetches yield nothing and the
		// catalog settles on the configured list.
		logx.Log.Warn().Err(err).Msg("no catalog source; serving default libraries only")
		fetcher = ctrl.FetcherFunc(func(context.Context) ([]string, error) { return nil, nil })
	}

	rt := ctrl.New(fetcher, cfg.DefaultLibraries, ctrl.Options{
		CatalogRefreshInterval: cfg.CatalogRefreshInterval,
		CatalogRetryInterval:   cfg.CatalogRetryInterval,
		LivenessInterval:       cfg.LivenessInterval,
		LivenessGrace:          cfg.LivenessGrace,
		HeartbeatExpiry:        cfg.HeartbeatExpiry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go rt.Run(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.New(rt, cfg),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("forgepool server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("server")
	}
}
