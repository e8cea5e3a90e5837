package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups everything the client reads at startup.
type Config struct {
	API     APIConfig
	Storage StorageConfig
	Log     LogConfig
	UI      UIConfig
	HTTP    HTTPConfig
}

// APIConfig locates the SGB backend.
type APIConfig struct {
	BaseURL string
}

// StorageConfig locates the local session database.
type StorageConfig struct {
	Path string
}

// LogConfig is passed straight to logger.New.
type LogConfig struct {
	Level string
	Env   string
}

// UIConfig holds the message timings of the modal.
type UIConfig struct {
	FlashTTL   time.Duration
	CloseDelay time.Duration
}

// HTTPConfig tunes the API client. A zero Timeout keeps the transport default.
type HTTPConfig struct {
	Timeout time.Duration
}

const (
	DefaultBaseURL    = "http://localhost:8080"
	DefaultFlashTTL   = 2 * time.Second
	DefaultCloseDelay = 1500 * time.Millisecond
)

// Load reads ~/.sgb/config.yaml (or file, when given) and SGB_* environment
// variables. Environment variables win; a missing file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".sgb")

	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("storage.path", filepath.Join(dir, "sgb.db"))
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.env", "production")
	v.SetDefault("ui.flash_ttl", DefaultFlashTTL)
	v.SetDefault("ui.close_delay", DefaultCloseDelay)
	v.SetDefault("http.timeout", time.Duration(0))

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("SGB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		API:     APIConfig{BaseURL: strings.TrimRight(v.GetString("api.base_url"), "/")},
		Storage: StorageConfig{Path: expandHome(v.GetString("storage.path"), home)},
		Log:     LogConfig{Level: v.GetString("log.level"), Env: v.GetString("log.env")},
		UI: UIConfig{
			FlashTTL:   v.GetDuration("ui.flash_ttl"),
			CloseDelay: v.GetDuration("ui.close_delay"),
		},
		HTTP: HTTPConfig{Timeout: v.GetDuration("http.timeout")},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is empty")
	}
	if c.Storage.Path == "" {
		return errors.New("config: storage.path is empty")
	}
	if c.UI.FlashTTL < 0 || c.UI.CloseDelay < 0 || c.HTTP.Timeout < 0 {
		return errors.New("config: durations must not be negative")
	}
	return nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
