package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/forgepool/forgepool/internal/config"
	"github.com/forgepool/forgepool/internal/logx"
	"github.com/forgepool/forgepool/internal/worker"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.WorkerConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()
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
		fmt.Printf("forgepool-worker version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)

	if cfg.CompilerCmd == "" {
		logx.Log.Fatal().Msg("compiler command required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Fatal().Err(err).Msg("worker")
	}
}
