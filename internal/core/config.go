package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the user configuration of kks.
type Config struct {
	Run    RunConfig    `yaml:"run"`
	Gen    GenConfig    `yaml:"gen"`
	Store  StoreConfig  `yaml:"store"`
	Remote RemoteConfig `yaml:"remote"`
}

type RunConfig struct {
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	ValgrindArgs   []string `yaml:"valgrind_args"`
}

type GenConfig struct {
	// DefaultRange is used by gen when no test or range is given.
	DefaultRange []int `yaml:"default_range"`
}

type StoreConfig struct {
	// Path of the SQLite database. Nil means the default location, an
	// empty string disables the store.
	Path *string `yaml:"path"`
}

// RemoteConfig points at the course host serving test archives over SFTP.
type RemoteConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	KeyPath        string `yaml:"key_path"`
	KnownHosts     string `yaml:"known_hosts"`
	Root           string `yaml:"root"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Password comes from secrets.env or the environment only.
	Password string `yaml:"-"`
}

// ConfigDir resolves $XDG_CONFIG_HOME/kks or ~/.config/kks.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "kks")
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Run: RunConfig{
			TimeoutSeconds: 10,
			ValgrindArgs:   []string{"--leak-check=full", "--error-exitcode=1"},
		},
		Gen: GenConfig{DefaultRange: []int{1, 100}},
		Remote: RemoteConfig{
			Port:           22,
			TimeoutSeconds: 15,
		},
	}
}

// LoadConfig reads YAML configuration from a path. If path is empty, it
// resolves ConfigDir()/config.yaml. A missing file yields the defaults.
// secrets.env and the environment are merged on top.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = filepath.Join(ConfigDir(), "config.yaml")
	}
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	// Secrets are kept out of the YAML file.
	secrets, err := LoadSecretsEnv("")
	if err != nil {
		return cfg, err
	}
	if p := secrets.Get("KKS_SSH_PASSWORD"); p != "" {
		cfg.Remote.Password = p
	}
	if v := os.Getenv("KKS_RUN_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse KKS_RUN_TIMEOUT: %w", err)
		}
		cfg.Run.TimeoutSeconds = n
	}
	return cfg, cfg.Validate()
}

// Validate checks values that the YAML decoder cannot.
func (c Config) Validate() error {
	if c.Run.TimeoutSeconds < 0 {
		return fmt.Errorf("run.timeout_seconds must not be negative")
	}
	if len(c.Gen.DefaultRange) != 2 {
		return fmt.Errorf("gen.default_range must have exactly two elements, got %d", len(c.Gen.DefaultRange))
	}
	return nil
}

// RunTimeout is the per-process timeout. Zero disables it.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// DefaultRange returns gen.default_range as bounds.
func (c Config) DefaultRange() (lo, hi int) {
	return c.Gen.DefaultRange[0], c.Gen.DefaultRange[1]
}

// StorePath returns the database path, empty when the store is disabled.
func (c Config) StorePath() string {
	if c.Store.Path == nil {
		return filepath.Join(ConfigDir(), "kks.db")
	}
	return *c.Store.Path
}

// RemoteAddr returns host:port of the course host.
func (c Config) RemoteAddr() string {
	port := c.Remote.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", c.Remote.Host, port)
}
