package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/oro-os/oro-link-x86/internal/config"
	"github.com/oro-os/oro-link-x86/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	kind := flagSet.String("kind", config.KindDaemon, "config kind: linkd|linkrt")
	output := flagSet.String("output", "", "output path for config template (defaults to per-kind cmd path)")
	validate := flagSet.Bool("validate", false, "validate an existing config file")
	input := flagSet.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flagSet.Bool("force", false, "overwrite existing config file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	logging.ConfigureRuntime()

	if *validate {
		path := *input
		if path == "" {
			def, err := config.DefaultPath(*kind)
			if err != nil {
				return err
			}
			path = def
		}
		if err := config.Validate(path, *kind); err != nil {
			return err
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated config")
		return nil
	}

	target := *output
	if target == "" {
		def, err := config.DefaultPath(*kind)
		if err != nil {
			return err
		}
		target = def
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote config template")
	return nil
}
