package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oro-os/oro-link-x86/internal/config"
	"github.com/oro-os/oro-link-x86/internal/link"
	"github.com/oro-os/oro-link-x86/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearLinkEnv(t *testing.T) {
	t.Setenv(config.EnvDaemonAddr, "")
	t.Setenv(config.EnvUID, "")
	t.Setenv(config.EnvVersion, "")
}

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	testlog.Start(t)
	clearLinkEnv(t)
	t.Setenv(config.EnvUID, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	cfg, err := loadRuntimeConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := link.DefaultConfig()
	if cfg.DaemonAddr != def.DaemonAddr || cfg.UID[0] != 0xAA || cfg.PowerSettle != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRuntimeConfigRequiresUID(t *testing.T) {
	testlog.Start(t)
	clearLinkEnv(t)
	if _, err := loadRuntimeConfig(""); !errors.Is(err, link.ErrUIDRequired) {
		t.Fatalf("expected ErrUIDRequired without uid, got %v", err)
	}
	path := writeConfig(t, "uid = \"00000000-0000-0000-0000-000000000000\"\n")
	if _, err := loadRuntimeConfig(path); !errors.Is(err, link.ErrUIDRequired) {
		t.Fatalf("expected ErrUIDRequired for the nil uid, got %v", err)
	}
}

func TestLoadRuntimeConfigOverlaysFile(t *testing.T) {
	testlog.Start(t)
	clearLinkEnv(t)
	path := writeConfig(t, `
daemon_addr = "10.0.0.5:1337"
uid = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
version = "1.2.3"
idle_delay_ms = 50
reset_settle_ms = 20
monitor_hz = 60
backoff_initial_ms = 100
backoff_jitter = false
`)
	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DaemonAddr != "10.0.0.5:1337" || cfg.Version != "1.2.3" {
		t.Fatalf("unexpected addr/version: %q %q", cfg.DaemonAddr, cfg.Version)
	}
	if cfg.UID[0] != 0xAA || cfg.UID[15] != 0xAA {
		t.Fatalf("unexpected uid: %s", cfg.UID)
	}
	if cfg.Session.IdleDelay != 50*time.Millisecond || cfg.ResetSettle != 20*time.Millisecond || cfg.MonitorHz != 60 {
		t.Fatalf("durations not applied: %+v", cfg)
	}
	if cfg.Session.Backoff.InitialDelay != 100*time.Millisecond || cfg.Session.Backoff.Jitter {
		t.Fatalf("backoff not applied: %+v", cfg.Session.Backoff)
	}
}

func TestLoadRuntimeConfigEnvWins(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvDaemonAddr, "192.168.1.9:1337")
	t.Setenv(config.EnvUID, "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	t.Setenv(config.EnvVersion, "9.9.9")
	path := writeConfig(t, "daemon_addr = \"10.0.0.5:1337\"\nuid = \"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA\"\n")
	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DaemonAddr != "192.168.1.9:1337" || cfg.Version != "9.9.9" || cfg.UID[0] != 0xBB {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadRuntimeConfigRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	clearLinkEnv(t)
	t.Setenv(config.EnvUID, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	for name, content := range map[string]string{
		"unknown key": "speed = 3\n",
		"bad uid":     "uid = \"not-a-uid\"\n",
		"bad addr":    "daemon_addr = \"nohostport\"\n",
		"negative hz": "monitor_hz = -1\n",
		"wrong type":  "idle_delay_ms = \"soon\"\n",
	} {
		if _, err := loadRuntimeConfig(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	t.Setenv(config.EnvUID, "zz")
	if _, err := loadRuntimeConfig(""); err == nil {
		t.Fatalf("expected invalid env uid to fail")
	}
}
