// Package config loads and validates pipeline configuration.
//
// Settings come from the environment (a local .env file is honored), with an
// optional YAML file at ~/.config/oarq/config.yml as a fallback for values
// the environment leaves unset. Every recognized option is an explicit field
// on Config and required settings are validated eagerly at load time.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingSettings is wrapped by Load when required settings are unset.
var ErrMissingSettings = errors.New("missing required configuration")

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "oarq"
	// ConfigFile is the optional global config file name.
	ConfigFile = "config.yml"

	// DefaultTimeout bounds each HTTP call to the Elements API.
	DefaultTimeout = 10 * time.Second
)

// Config enumerates every recognized setting.
type Config struct {
	// ElementsEndpoint is the versioned API base URL. Required.
	ElementsEndpoint string
	// ElementsUser and ElementsPassword are the basic auth credentials.
	// Required.
	ElementsUser     string
	ElementsPassword string
	// DBPath is the SQLite database location. Required.
	DBPath string
	// ProxyURL routes API requests through a static proxy. Optional.
	ProxyURL string
	// Timeout bounds each HTTP call. Optional, defaults to DefaultTimeout.
	Timeout time.Duration
}

// fileConfig mirrors Config for the optional YAML file.
type fileConfig struct {
	ElementsEndpoint string `yaml:"elements_endpoint,omitempty"`
	ElementsUser     string `yaml:"elements_user,omitempty"`
	ElementsPassword string `yaml:"elements_password,omitempty"`
	DBPath           string `yaml:"db_path,omitempty"`
	ProxyURL         string `yaml:"proxy_url,omitempty"`
	TimeoutSeconds   int    `yaml:"timeout_seconds,omitempty"`
}

// Path returns the location of the optional global config file. Respects
// XDG_CONFIG_HOME, defaults to ~/.config/oarq/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads configuration from the environment and the optional config
// file, applies defaults, and validates required settings. All missing
// required settings are reported in one error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	file, err := loadFile(Path())
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ElementsEndpoint: firstOf(os.Getenv("ELEMENTS_ENDPOINT"), file.ElementsEndpoint),
		ElementsUser:     firstOf(os.Getenv("ELEMENTS_USER"), file.ElementsUser),
		ElementsPassword: firstOf(os.Getenv("ELEMENTS_PASSWORD"), file.ElementsPassword),
		DBPath:           firstOf(os.Getenv("OAREQ_DB_PATH"), file.DBPath),
		ProxyURL:         firstOf(os.Getenv("OAREQ_PROXY_URL"), file.ProxyURL),
		Timeout:          DefaultTimeout,
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid OAREQ_PROXY_URL: %q", cfg.ProxyURL)
		}
	}

	if s := os.Getenv("OAREQ_TIMEOUT_SECONDS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid OAREQ_TIMEOUT_SECONDS: %q", s)
		}
		cfg.Timeout = time.Duration(n) * time.Second
	} else if file.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(file.TimeoutSeconds) * time.Second
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"ELEMENTS_ENDPOINT", cfg.ElementsEndpoint},
		{"ELEMENTS_USER", cfg.ElementsUser},
		{"ELEMENTS_PASSWORD", cfg.ElementsPassword},
		{"OAREQ_DB_PATH", cfg.DBPath},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}
	return cfg, nil
}

// loadFile reads the optional YAML config file. A missing file is not an
// error.
func loadFile(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &fc, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
