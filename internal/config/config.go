package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strings"

	"github.com/oro-os/oro-link-x86/internal/auth"
	"github.com/pelletier/go-toml/v2"
)

// DaemonFile is the on-disk shape of linkd.toml.
type DaemonFile struct {
	Bind               string   `toml:"bind"`
	Port               int      `toml:"port"`
	MetricsAddr        string   `toml:"metrics_addr"`
	HandshakeTimeoutMS int      `toml:"handshake_timeout_ms"`
	AllowedUIDs        []string `toml:"allowed_uids"`
	TotalTests         int      `toml:"total_tests"`
	Tests              []string `toml:"tests"`
	Author             string   `toml:"author"`
	Title              string   `toml:"title"`
	RefID              string   `toml:"ref_id"`
	ResetEvery         int      `toml:"reset_every"`
	MaxJitterMS        int      `toml:"max_jitter_ms"`
	LogoPauseMS        int      `toml:"logo_pause_ms"`
	BootPauseMS        int      `toml:"boot_pause_ms"`
}

// LinkFile is the on-disk shape of linkrt.toml.
type LinkFile struct {
	DaemonAddr         string  `toml:"daemon_addr"`
	UID                string  `toml:"uid"`
	Version            string  `toml:"version"`
	ConnectTimeoutMS   int     `toml:"connect_timeout_ms"`
	HandshakeTimeoutMS int     `toml:"handshake_timeout_ms"`
	IdleDelayMS        int     `toml:"idle_delay_ms"`
	PowerSettleMS      int     `toml:"power_settle_ms"`
	ResetSettleMS      int     `toml:"reset_settle_ms"`
	LinkPollMS         int     `toml:"link_poll_ms"`
	MonitorHz          int     `toml:"monitor_hz"`
	HeartbeatOnMS      int     `toml:"heartbeat_on_ms"`
	HeartbeatOffMS     int     `toml:"heartbeat_off_ms"`
	BackoffInitialMS   int     `toml:"backoff_initial_ms"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffMaxMS       int     `toml:"backoff_max_ms"`
	BackoffJitter      *bool   `toml:"backoff_jitter"`
}

func LoadDaemonFile(path string) (DaemonFile, error) {
	var cfg DaemonFile
	if err := loadToml(path, &cfg); err != nil {
		return DaemonFile{}, err
	}
	if err := ValidateDaemonFile(cfg); err != nil {
		return DaemonFile{}, err
	}
	return cfg, nil
}

func LoadLinkFile(path string) (LinkFile, error) {
	var cfg LinkFile
	if err := loadToml(path, &cfg); err != nil {
		return LinkFile{}, err
	}
	if err := ValidateLinkFile(cfg); err != nil {
		return LinkFile{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// ValidateDaemonFile checks value ranges. Zero values mean "use the default"
// and are always accepted.
func ValidateDaemonFile(cfg DaemonFile) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("daemon config port out of range: %d", cfg.Port)
	}
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("daemon config metrics_addr: %w", err)
		}
	}
	if cfg.TotalTests < 0 || int64(cfg.TotalTests) > math.MaxUint32 {
		return fmt.Errorf("daemon config total_tests out of range: %d", cfg.TotalTests)
	}
	for i, name := range cfg.Tests {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("daemon config tests[%d] is empty", i)
		}
	}
	if cfg.ResetEvery < 0 {
		return fmt.Errorf("daemon config reset_every must not be negative")
	}
	if cfg.MaxJitterMS < 0 || cfg.LogoPauseMS < 0 || cfg.BootPauseMS < 0 || cfg.HandshakeTimeoutMS < 0 {
		return fmt.Errorf("daemon config durations must not be negative")
	}
	if _, err := auth.NewAllowlist(cfg.AllowedUIDs); err != nil {
		return fmt.Errorf("daemon config allowed_uids: %w", err)
	}
	return nil
}

func ValidateLinkFile(cfg LinkFile) error {
	if addr := strings.TrimSpace(cfg.DaemonAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("link config daemon_addr: %w", err)
		}
	}
	if uid := strings.TrimSpace(cfg.UID); uid != "" {
		if _, err := auth.ParseUID(uid); err != nil {
			return fmt.Errorf("link config uid: %w", err)
		}
	}
	for name, v := range map[string]int{
		"connect_timeout_ms":   cfg.ConnectTimeoutMS,
		"handshake_timeout_ms": cfg.HandshakeTimeoutMS,
		"idle_delay_ms":        cfg.IdleDelayMS,
		"power_settle_ms":      cfg.PowerSettleMS,
		"reset_settle_ms":      cfg.ResetSettleMS,
		"link_poll_ms":         cfg.LinkPollMS,
		"monitor_hz":           cfg.MonitorHz,
		"heartbeat_on_ms":      cfg.HeartbeatOnMS,
		"heartbeat_off_ms":     cfg.HeartbeatOffMS,
		"backoff_initial_ms":   cfg.BackoffInitialMS,
		"backoff_max_ms":       cfg.BackoffMaxMS,
	} {
		if v < 0 {
			return fmt.Errorf("link config %s must not be negative", name)
		}
	}
	if cfg.BackoffMultiplier != 0 && cfg.BackoffMultiplier < 1 {
		return fmt.Errorf("link config backoff_multiplier must be >= 1")
	}
	return nil
}
