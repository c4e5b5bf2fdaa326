package callbridge

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName     = "callbridge"
	DefaultEnvPrefix   = "CALLBRIDGE"
	DefaultHTTPAddr    = ":8000"
	DefaultSessionKind = "memory"
	Version            = "0.4.0"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir     = filepath.Join(userDataDir(), DefaultAppName)
	DefaultDatabaseDSN = filepath.Join(DefaultDataDir, "sessions.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
