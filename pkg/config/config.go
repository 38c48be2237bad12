// Package config loads the stowage configuration file and the STOWAGE_*
// environment overrides on top of it. Command line flags resolve against it
// last, so the effective precedence is flag, then environment, then file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wuxler/stowage/pkg/util/homedir"
)

const (
	// EnvPrefix prefixes every environment override, e.g. STOWAGE_LOG_LEVEL.
	EnvPrefix = "STOWAGE"
	// DefaultDirName is the directory under the user home holding stowage
	// state: the configuration file, the database and the blob store.
	DefaultDirName = ".stowage"
	// DefaultFileName is the configuration file probed when no explicit path
	// is given.
	DefaultFileName = "config.yaml"
)

// Keys understood in the configuration file and environment.
const (
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
	KeyLogFile     = "log.file"
	KeyDBPath      = "db.path"
	KeyStorageRoot = "storage.root"
	KeyServerHost  = "server.host"
	KeyServerPort  = "server.port"
)

// DefaultDir returns the stowage state directory under the user home.
func DefaultDir() string {
	return filepath.Join(homedir.MustGet(), DefaultDirName)
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), DefaultFileName)
}

// Config is the loaded configuration tree.
type Config struct {
	k *koanf.Koanf
}

// Load reads the YAML file at path and applies environment overrides on top.
// An explicit path must exist; when path is empty the default path is probed
// and its absence is fine.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	required := path != ""
	if path == "" {
		path = DefaultPath()
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if required || !os.IsNotExist(err) {
			return nil, fmt.Errorf("unable to read configuration file %q: %w", path, err)
		}
	} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("unable to load configuration file %q: %w", path, err)
	}

	// STOWAGE_LOG_LEVEL becomes log.level and so on.
	if err := k.Load(env.Provider(EnvPrefix+"_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("unable to load environment overrides: %w", err)
	}
	return &Config{k: k}, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix+"_")
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

// Exists reports whether the key is present.
func (c *Config) Exists(key string) bool {
	return c.k.Exists(key)
}

// String returns the string value of the key, empty when absent.
func (c *Config) String(key string) string {
	return c.k.String(key)
}

// StringOr returns the value of the key, or fallback when absent or empty.
func (c *Config) StringOr(key, fallback string) string {
	if v := c.k.String(key); v != "" {
		return v
	}
	return fallback
}

// Int64Or returns the value of the key, or fallback when absent.
func (c *Config) Int64Or(key string, fallback int64) int64 {
	if c.k.Exists(key) {
		return c.k.Int64(key)
	}
	return fallback
}
