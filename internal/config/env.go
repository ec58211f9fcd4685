package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvServerBind = "LINK_SERVER_BIND"
	EnvServerPort = "LINK_SERVER_PORT"
	EnvDaemonAddr = "LINK_DAEMON_ADDR"
	EnvUID        = "LINK_UID"
	EnvVersion    = "LINK_VERSION"

	DefaultServerBind = "0.0.0.0"
	DefaultServerPort = 1337
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error unless required is true.
func LoadEnvFile(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file (%s): %w", path, err)
	}
	return nil
}

// DaemonEnv holds the daemon overrides present in the environment. Empty
// and zero fields were not set.
type DaemonEnv struct {
	Bind string
	Port int
}

func ReadDaemonEnv() (DaemonEnv, error) {
	var out DaemonEnv
	out.Bind = strings.TrimSpace(os.Getenv(EnvServerBind))
	if raw := strings.TrimSpace(os.Getenv(EnvServerPort)); raw != "" {
		port, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || port == 0 {
			return DaemonEnv{}, fmt.Errorf("%s: invalid port %q", EnvServerPort, raw)
		}
		out.Port = int(port)
	}
	return out, nil
}

// LinkEnv holds the link runtime overrides present in the environment.
type LinkEnv struct {
	DaemonAddr string
	UID        string
	Version    string
}

func ReadLinkEnv() LinkEnv {
	return LinkEnv{
		DaemonAddr: strings.TrimSpace(os.Getenv(EnvDaemonAddr)),
		UID:        strings.TrimSpace(os.Getenv(EnvUID)),
		Version:    strings.TrimSpace(os.Getenv(EnvVersion)),
	}
}
