package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/themkat/shade-eval-print-loop/internal/app"
	"github.com/themkat/shade-eval-print-loop/internal/config"
)

func main() {
	def := config.Default()

	// ---- Flags (config.yaml overrides what it sets) ----
	var (
		shaderPath    = flag.String("shader", def.ShaderPath, "WGSL fragment shader to preview")
		replAddr      = flag.String("repl", def.ReplAddr, "REPL listen address")
		statusAddr    = flag.String("status", def.StatusAddr, `status HTTP listen address ("-" disables)`)
		refreshRate   = flag.String("refresh", def.RefreshRate, "render refresh rate, e.g. 60Hz")
		dynamicPeriod = flag.Duration("dynamic-period", def.DynamicPeriod, "dynamic uniform update period")
		evalTimeout   = flag.Duration("eval-timeout", def.EvalTimeout, "wall clock budget per evaluation")
		width         = flag.Uint("width", uint(def.Screen.Width), "initial screen width")
		height        = flag.Uint("height", uint(def.Screen.Height), "initial screen height")
		onDemand      = flag.Bool("on-demand", false, "draw only when something changed")
		headless      = flag.Bool("headless", false, "count frames instead of publishing them")
		noWatch       = flag.Bool("no-watch", false, "disable shader hot reload")
		logLevel      = flag.String("log-level", def.LogLevel, "debug | info | warn | error")
		configPath    = flag.String("config", "config.yaml", "path to config.yaml")
	)
	flag.Parse()

	// ---- Effective params ----
	continuous := !*onDemand
	cfg := config.Config{
		ShaderPath:    *shaderPath,
		ReplAddr:      *replAddr,
		StatusAddr:    *statusAddr,
		RefreshRate:   *refreshRate,
		DynamicPeriod: *dynamicPeriod,
		EvalTimeout:   *evalTimeout,
		Screen:        config.Screen{Width: uint32(*width), Height: uint32(*height)},
		Queues:        def.Queues,
		Continuous:    &continuous,
		LogLevel:      *logLevel,
	}

	// ---- Load config.yaml (optional) ----
	file, err := config.Load(*configPath)
	if err == nil {
		cfg = cfg.Overlay(file)
	}

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	if lvl, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level; using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	}

	core, err := app.InitCore(cfg, app.Options{
		Headless: *headless,
		NoWatch:  *noWatch,
		Log:      log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Str("shader", cfg.ShaderPath).Msg("startup failed")
	}
	log.Info().
		Str("shader", cfg.ShaderPath).
		Str("repl", core.Server.Addr().String()).
		Str("status", cfg.StatusAddr).
		Bool("headless", *headless).
		Msg("preview running")

	// ---- Run until SIGINT/SIGTERM ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := core.Run(ctx); err != nil {
		log.Error().Err(err).Msg("stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shut down")
}
