package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/auth"
	"github.com/oro-os/oro-link-x86/internal/config"
	"github.com/oro-os/oro-link-x86/internal/link"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// linkrt loader for TOML config with default overlay. LINK_DAEMON_ADDR,
// LINK_UID and LINK_VERSION win over the file.
func loadRuntimeConfig(path string) (link.Config, error) {
	cfg := link.DefaultConfig()
	uid := ""

	if path = strings.TrimSpace(path); path != "" {
		var raw config.LinkFile
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return link.Config{}, fmt.Errorf("load linkrt config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return link.Config{}, fmt.Errorf("load linkrt config: unknown key %q", undecoded[0].String())
		}
		if err := config.ValidateLinkFile(raw); err != nil {
			return link.Config{}, fmt.Errorf("load linkrt config: %w", err)
		}

		if meta.IsDefined("daemon_addr") {
			cfg.DaemonAddr = strings.TrimSpace(raw.DaemonAddr)
		}
		if meta.IsDefined("uid") {
			uid = raw.UID
		}
		if meta.IsDefined("version") {
			cfg.Version = strings.TrimSpace(raw.Version)
		}
		if meta.IsDefined("connect_timeout_ms") {
			cfg.Session.ConnectTimeout = ms(raw.ConnectTimeoutMS)
		}
		if meta.IsDefined("handshake_timeout_ms") {
			cfg.Session.HandshakeTimeout = ms(raw.HandshakeTimeoutMS)
		}
		if meta.IsDefined("idle_delay_ms") {
			cfg.Session.IdleDelay = ms(raw.IdleDelayMS)
		}
		if meta.IsDefined("power_settle_ms") {
			cfg.PowerSettle = ms(raw.PowerSettleMS)
		}
		if meta.IsDefined("reset_settle_ms") {
			cfg.ResetSettle = ms(raw.ResetSettleMS)
		}
		if meta.IsDefined("link_poll_ms") {
			cfg.LinkPollInterval = ms(raw.LinkPollMS)
		}
		if meta.IsDefined("monitor_hz") {
			cfg.MonitorHz = raw.MonitorHz
		}
		if meta.IsDefined("heartbeat_on_ms") {
			cfg.HeartbeatOn = ms(raw.HeartbeatOnMS)
		}
		if meta.IsDefined("heartbeat_off_ms") {
			cfg.HeartbeatOff = ms(raw.HeartbeatOffMS)
		}
		if meta.IsDefined("backoff_initial_ms") {
			cfg.Session.Backoff.InitialDelay = ms(raw.BackoffInitialMS)
		}
		if meta.IsDefined("backoff_multiplier") {
			cfg.Session.Backoff.Multiplier = raw.BackoffMultiplier
		}
		if meta.IsDefined("backoff_max_ms") {
			cfg.Session.Backoff.MaxDelay = ms(raw.BackoffMaxMS)
		}
		if raw.BackoffJitter != nil {
			cfg.Session.Backoff.Jitter = *raw.BackoffJitter
		}
	}

	env := config.ReadLinkEnv()
	if env.DaemonAddr != "" {
		cfg.DaemonAddr = env.DaemonAddr
	}
	if env.UID != "" {
		uid = env.UID
	}
	if env.Version != "" {
		cfg.Version = env.Version
	}
	if strings.TrimSpace(uid) == "" {
		return link.Config{}, fmt.Errorf("load linkrt config: %w: set uid or %s", link.ErrUIDRequired, config.EnvUID)
	}
	parsed, err := auth.ParseUID(uid)
	if err != nil {
		return link.Config{}, fmt.Errorf("load linkrt config: uid: %w", err)
	}
	if parsed == uuid.Nil {
		return link.Config{}, fmt.Errorf("load linkrt config: %w: the nil uid cannot identify a rig", link.ErrUIDRequired)
	}
	cfg.UID = parsed
	return cfg.WithDefaults(), nil
}
