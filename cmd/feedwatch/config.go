package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/feedwatch/internal/client"
	"github.com/tinytelemetry/feedwatch/internal/model"
	"github.com/tinytelemetry/feedwatch/internal/socketrpc"
)

const (
	defaultBindHost          = "127.0.0.1"
	defaultAPIPort           = 3100
	defaultLogLevel          = "info"
	defaultReconnectInterval = 5 * time.Second
	maxEntityIDLimit         = 99
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Server            string        `mapstructure:"server" yaml:"server"`
	Port              int           `mapstructure:"port" yaml:"port"`
	ConnectTimeout    time.Duration `mapstructure:"connect-timeout" yaml:"connect-timeout"`
	RecvTimeout       time.Duration `mapstructure:"recv-timeout" yaml:"recv-timeout"`
	ReconnectInterval time.Duration `mapstructure:"reconnect-interval" yaml:"reconnect-interval"`
	OnlineWindow      time.Duration `mapstructure:"online-window" yaml:"online-window"`
	MaxEntityID       int           `mapstructure:"max-entity-id" yaml:"max-entity-id"`
	StatsMessage      string        `mapstructure:"stats-message" yaml:"stats-message"`
	EventMessage      string        `mapstructure:"event-message" yaml:"event-message"`
	EventHistory      int           `mapstructure:"event-history" yaml:"event-history"`
	SocketPath        string        `mapstructure:"socket-path" yaml:"socket-path"`
	APIEnabled        bool          `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort           int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr           string        `mapstructure:"api-addr" yaml:"api-addr"`
	LogLevel          string        `mapstructure:"log-level" yaml:"log-level"`
	LogFile           string        `mapstructure:"log-file" yaml:"log-file"`
	ConfigPath        string        `mapstructure:"-" yaml:"-"` // not from config file
}

// loadConfig resolves defaults, the optional config file, an optional .env
// file and FEEDWATCH_* environment variables, in increasing precedence.
func loadConfig(configPath, envFile string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	if envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("FEEDWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("server", model.DefaultServer)
	v.SetDefault("port", model.DefaultPort)
	v.SetDefault("connect-timeout", model.DefaultConnectTimeout)
	v.SetDefault("recv-timeout", model.DefaultRecvTimeout)
	v.SetDefault("reconnect-interval", defaultReconnectInterval)
	v.SetDefault("online-window", model.DefaultOnlineWindow)
	v.SetDefault("max-entity-id", model.DefaultMaxEntityID)
	v.SetDefault("stats-message", model.DefaultStatsMessage)
	v.SetDefault("event-message", model.DefaultEventMessage)
	v.SetDefault("event-history", client.DefaultEventHistory)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "feedwatch", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, statErr := os.Stat(cfg.ConfigPath); statErr != nil {
		cfg.ConfigPath = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	if strings.HasPrefix(cfg.LogFile, "~/") {
		cfg.LogFile = filepath.Join(home, cfg.LogFile[2:])
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func (c appConfig) validate() error {
	if c.Server == "" {
		return fmt.Errorf("server must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	for name, d := range map[string]time.Duration{
		"connect-timeout":    c.ConnectTimeout,
		"recv-timeout":       c.RecvTimeout,
		"reconnect-interval": c.ReconnectInterval,
		"online-window":      c.OnlineWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s", name, d)
		}
	}
	if c.MaxEntityID < 0 || c.MaxEntityID > maxEntityIDLimit {
		return fmt.Errorf("invalid max-entity-id: %d (want 0..%d)", c.MaxEntityID, maxEntityIDLimit)
	}
	if c.EventHistory <= 0 {
		return fmt.Errorf("invalid event-history: %d", c.EventHistory)
	}
	if c.StatsMessage == c.EventMessage {
		return fmt.Errorf("stats-message and event-message must differ")
	}
	return nil
}
