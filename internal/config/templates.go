package config

import (
	"fmt"
	"os"
	"strings"
)

// Config kinds understood by Template.
const (
	KindDaemon = "linkd"
	KindLink   = "linkrt"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindDaemon, "daemon":
		return daemonTemplate, nil
	case KindLink, "link":
		return linkTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as the given kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindDaemon, "daemon":
		_, err := LoadDaemonFile(path)
		return err
	case KindLink, "link":
		_, err := LoadLinkFile(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

// DefaultPath is where each command looks for its config when none is given.
func DefaultPath(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindDaemon, "daemon":
		return "cmd/linkd/config.toml", nil
	case KindLink, "link":
		return "cmd/linkrt/config.toml", nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

const daemonTemplate = `# LINK_SERVER_BIND and LINK_SERVER_PORT override bind and port.
bind = "0.0.0.0"
port = 1337
metrics_addr = "127.0.0.1:9337"
handshake_timeout_ms = 5000
# Empty accepts every link; otherwise only the listed UIDs are driven.
allowed_uids = []

total_tests = 1337
tests = [
  "test_protocol_proc_macro",
  "test_test_harness",
  "test_hid_mouse",
  "test_hid_keyboard",
]
author = "Josh Junon"
title = "test: daemon protocol"
ref_id = ""
reset_every = 50
max_jitter_ms = 300
logo_pause_ms = 3000
boot_pause_ms = 5000
`

const linkTemplate = `# LINK_DAEMON_ADDR, LINK_UID and LINK_VERSION override the matching keys.
daemon_addr = "127.0.0.1:1337"
uid = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
version = "1.0.0"
connect_timeout_ms = 5000
handshake_timeout_ms = 5000
idle_delay_ms = 1000
power_settle_ms = 3000
reset_settle_ms = 500
link_poll_ms = 1000
monitor_hz = 240
heartbeat_on_ms = 100
heartbeat_off_ms = 2000
backoff_initial_ms = 1000
backoff_multiplier = 2.0
backoff_max_ms = 10000
backoff_jitter = true
`
