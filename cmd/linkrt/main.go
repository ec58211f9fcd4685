package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oro-os/oro-link-x86/internal/config"
	"github.com/oro-os/oro-link-x86/internal/hardware/sim"
	"github.com/oro-os/oro-link-x86/internal/link"
	"github.com/oro-os/oro-link-x86/internal/logging"
	"github.com/oro-os/oro-link-x86/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var configPath, envFile, daemonAddr string
	flagSet := pflag.NewFlagSet("linkrt", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to linkrt TOML config (defaults only when empty)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading LINK_* variables")
	flagSet.StringVar(&daemonAddr, "daemon", "", "daemon host:port, overrides daemon_addr and LINK_DAEMON_ADDR")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "linkrt: %v\n", err)
		return 1
	}

	logging.ConfigureRuntime()
	observability.InitLogger("linkrt")
	observability.RegisterMetrics()

	if err := config.LoadEnvFile(envFile, flagSet.Changed("env-file")); err != nil {
		log.Error().Err(err).Msg("linkrt.main env file")
		return 1
	}
	cfg, err := loadRuntimeConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("linkrt.main config")
		return 1
	}
	if addr := strings.TrimSpace(daemonAddr); addr != "" {
		cfg.DaemonAddr = addr
	}
	if cfg.Version == link.DefaultConfig().Version {
		cfg.Version = version
	}

	// No board support is wired in yet; the simulated rig stands in for the
	// display, power switch and raw port.
	hw := link.Hardware{
		Monitor: sim.NewMonitor(256),
		Power:   sim.NewPower(),
		LED:     &sim.LED{},
		Raw:     sim.NewRawLink(true),
		Dialer:  &net.Dialer{},
	}
	rt, err := link.New(cfg, hw)
	if err != nil {
		log.Error().Err(err).Msg("linkrt.main runtime")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info().
		Str("version", cfg.Version).
		Str("daemon", cfg.DaemonAddr).
		Msg("linkrt.main starting oro link runtime")
	if err := rt.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("linkrt.main runtime stopped")
		return 2
	}
	log.Info().Msg("linkrt.main shut down")
	return 0
}
