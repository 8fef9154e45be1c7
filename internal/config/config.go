// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default values for every configuration key.
// Called once before the config file and environment are read so that a
// bare install works without any config at all.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "$HOME/.local/share/centavo/centavo.db")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("recat.days_back", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
