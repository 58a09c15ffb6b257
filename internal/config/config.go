package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cesargomez89/keepoffline/internal/constants"
)

// EnvPrefix is prepended to every environment override, e.g. KEEPOFFLINE_PORT.
const EnvPrefix = "KEEPOFFLINE"

// Config holds all application configuration
type Config struct {
	Port                string        `mapstructure:"port"`
	DBPath              string        `mapstructure:"db_path"`
	DownloadsDir        string        `mapstructure:"downloads_dir"`
	MetadataURL         string        `mapstructure:"metadata_url"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	ConnectivityProbe   string        `mapstructure:"connectivity_probe"`
	StatusInterval      time.Duration `mapstructure:"status_interval"`
	UpdateInterval      time.Duration `mapstructure:"update_interval"`
	ReplanInterval      time.Duration `mapstructure:"replan_interval"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	CacheSize           int           `mapstructure:"cache_size"`
	MaxSupportTransfers int           `mapstructure:"max_support_transfers"`
	MaxVideoTransfers   int           `mapstructure:"max_video_transfers"`
}

// Load reads config.yaml from the working directory or ./config when
// present and applies KEEPOFFLINE_* environment overrides on top of defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("port", constants.DefaultPort)
	v.SetDefault("db_path", constants.DefaultDBPath)
	v.SetDefault("downloads_dir", filepath.Join(home, ".local/share/keepoffline"))
	v.SetDefault("metadata_url", constants.DefaultMetadataURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("connectivity_probe", "")
	v.SetDefault("status_interval", constants.DefaultStatusInterval)
	v.SetDefault("update_interval", constants.DefaultUpdateInterval)
	v.SetDefault("replan_interval", constants.DefaultReplanInterval)
	v.SetDefault("retry_backoff", constants.DefaultRetryBackoff)
	v.SetDefault("cache_ttl", constants.DefaultCacheTTL)
	v.SetDefault("cache_size", constants.DefaultCacheSize)
	v.SetDefault("max_support_transfers", constants.DefaultSupportTransfers)
	v.SetDefault("max_video_transfers", constants.DefaultVideoTransfers)
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errs = append(errs, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errs = append(errs, "DB_PATH cannot be empty")
	}

	if c.DownloadsDir == "" {
		errs = append(errs, "DOWNLOADS_DIR cannot be empty")
	}

	if c.MetadataURL == "" {
		errs = append(errs, "METADATA_URL cannot be empty")
	} else if u, err := url.Parse(c.MetadataURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("METADATA_URL is not a valid URL: %s", c.MetadataURL))
	}

	if c.ConnectivityProbe != "" {
		if _, _, err := net.SplitHostPort(c.ConnectivityProbe); err != nil {
			errs = append(errs, fmt.Sprintf("CONNECTIVITY_PROBE must be host:port, got: %s", c.ConnectivityProbe))
		}
	}

	if c.StatusInterval <= 0 {
		errs = append(errs, "STATUS_INTERVAL must be positive")
	}
	if c.UpdateInterval <= 0 {
		errs = append(errs, "UPDATE_INTERVAL must be positive")
	}
	if c.ReplanInterval <= 0 {
		errs = append(errs, "REPLAN_INTERVAL must be positive")
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, "RETRY_BACKOFF cannot be negative")
	}

	if c.MaxSupportTransfers < 1 {
		errs = append(errs, fmt.Sprintf("MAX_SUPPORT_TRANSFERS must be at least 1, got: %d", c.MaxSupportTransfers))
	}
	if c.MaxVideoTransfers != constants.DefaultVideoTransfers {
		errs = append(errs, fmt.Sprintf("MAX_VIDEO_TRANSFERS must be %d, got: %d", constants.DefaultVideoTransfers, c.MaxVideoTransfers))
	}

	if c.CacheSize < 0 {
		errs = append(errs, fmt.Sprintf("CACHE_SIZE cannot be negative, got: %d", c.CacheSize))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
