package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/oro-os/oro-link-x86/internal/auth"
	"github.com/oro-os/oro-link-x86/internal/config"
	"github.com/oro-os/oro-link-x86/internal/daemon"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// linkd loader for TOML config with default overlay. LINK_SERVER_BIND and
// LINK_SERVER_PORT win over the file.
func loadServiceConfig(path string) (daemon.ServiceConfig, error) {
	cfg := daemon.DefaultServiceConfig()
	bind := config.DefaultServerBind
	port := config.DefaultServerPort

	if path = strings.TrimSpace(path); path != "" {
		var raw config.DaemonFile
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return daemon.ServiceConfig{}, fmt.Errorf("load linkd config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return daemon.ServiceConfig{}, fmt.Errorf("load linkd config: unknown key %q", undecoded[0].String())
		}
		if err := config.ValidateDaemonFile(raw); err != nil {
			return daemon.ServiceConfig{}, fmt.Errorf("load linkd config: %w", err)
		}

		if meta.IsDefined("bind") {
			bind = strings.TrimSpace(raw.Bind)
		}
		if meta.IsDefined("port") && raw.Port > 0 {
			port = raw.Port
		}
		if meta.IsDefined("metrics_addr") {
			cfg.AdminListenAddr = strings.TrimSpace(raw.MetricsAddr)
		}
		if meta.IsDefined("handshake_timeout_ms") {
			cfg.Session.HandshakeTimeout = ms(raw.HandshakeTimeoutMS)
		}
		if meta.IsDefined("allowed_uids") {
			validator, err := auth.NewValidator(raw.AllowedUIDs)
			if err != nil {
				return daemon.ServiceConfig{}, fmt.Errorf("load linkd config: %w", err)
			}
			cfg.Validator = validator
		}
		if meta.IsDefined("total_tests") {
			cfg.Plan.TotalTests = uint32(raw.TotalTests)
		}
		if meta.IsDefined("tests") {
			cfg.Plan.Tests = raw.Tests
		}
		if meta.IsDefined("author") {
			cfg.Plan.Author = raw.Author
		}
		if meta.IsDefined("title") {
			cfg.Plan.Title = raw.Title
		}
		if meta.IsDefined("ref_id") {
			cfg.Plan.RefID = strings.TrimSpace(raw.RefID)
		}
		if meta.IsDefined("reset_every") {
			cfg.Plan.ResetEvery = uint32(raw.ResetEvery)
		}
		if meta.IsDefined("max_jitter_ms") {
			cfg.Plan.MaxJitter = ms(raw.MaxJitterMS)
		}
		if meta.IsDefined("logo_pause_ms") {
			cfg.Plan.LogoPause = ms(raw.LogoPauseMS)
		}
		if meta.IsDefined("boot_pause_ms") {
			cfg.Plan.BootPause = ms(raw.BootPauseMS)
		}
	}

	env, err := config.ReadDaemonEnv()
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("load linkd config: %w", err)
	}
	if env.Bind != "" {
		bind = env.Bind
	}
	if env.Port != 0 {
		port = env.Port
	}
	cfg.ListenAddr = net.JoinHostPort(bind, strconv.Itoa(port))

	cfg.Session = cfg.Session.WithDefaults()
	cfg.Plan = cfg.Plan.WithDefaults()
	return cfg, nil
}
