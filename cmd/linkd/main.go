package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/oro-os/oro-link-x86/internal/auth"
	"github.com/oro-os/oro-link-x86/internal/config"
	"github.com/oro-os/oro-link-x86/internal/daemon"
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
	var configPath, envFile, metricsAddr string
	flagSet := pflag.NewFlagSet("linkd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to linkd TOML config (defaults only when empty)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading LINK_* variables")
	flagSet.StringVar(&metricsAddr, "metrics-addr", "", "admin HTTP listen address, overrides metrics_addr")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "linkd: %v\n", err)
		return 1
	}

	logging.ConfigureRuntime()
	observability.InitLogger("linkd")
	observability.RegisterMetrics()

	if err := config.LoadEnvFile(envFile, flagSet.Changed("env-file")); err != nil {
		log.Error().Err(err).Msg("linkd.main env file")
		return 1
	}
	cfg, err := loadServiceConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("linkd.main config")
		return 1
	}
	if addr := strings.TrimSpace(metricsAddr); addr != "" {
		cfg.AdminListenAddr = addr
	}
	cfg.Version = version
	if list, ok := cfg.Validator.(auth.Allowlist); ok {
		log.Info().Int("allowed_uids", list.Len()).Msg("linkd.main link allowlist enabled")
	} else {
		log.Warn().Msg("linkd.main no allowlist configured, accepting every link")
	}

	log.Info().
		Str("version", version).
		Str("addr", cfg.ListenAddr).
		Msg("linkd.main starting oro-linkd")
	if err := daemon.NewServiceWithConfig(cfg).Run(); err != nil {
		// The accept loop never ends on its own; any exit here is fatal.
		log.Error().Err(err).Msg("linkd.main daemon stopped")
		return 2
	}
	log.Info().Msg("linkd.main shut down")
	return 0
}
