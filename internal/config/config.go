package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional eacopy configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Server   ServerConfig   `toml:"server"`
}

// DefaultsConfig holds persistent flag defaults for the copy client.
type DefaultsConfig struct {
	Workers       *int    `toml:"workers"`
	Server        *string `toml:"server"`
	Secret        *string `toml:"secret"`
	BWLimit       *string `toml:"bwlimit"`
	UseHardlinks  *bool   `toml:"use_hardlinks"`
	SkipIfSameKey *bool   `toml:"skip_if_same_key"`
	Retries       *int    `toml:"retries"`
	Journal       *string `toml:"journal"`
}

// ServerConfig holds defaults for the serve subcommand.
type ServerConfig struct {
	Listen      *string  `toml:"listen"`
	Root        *string  `toml:"root"`
	MaxSessions *int     `toml:"max_sessions"`
	MaxHistory  *int     `toml:"max_history"`
	Database    *string  `toml:"database"`
	PrimeDirs   []string `toml:"prime_dirs"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "eacopy", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
