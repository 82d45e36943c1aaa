// Package config loads settings shared by the serve and call commands.
//
// Precedence, highest first: command line flags, EDITOR_RPC_* environment
// variables (dashes become underscores: EDITOR_RPC_REQUEST_TIMEOUT), the file
// named by --config, built-in defaults.
package config

import (
	"editor-rpc/client"
	"editor-rpc/logger"
	"editor-rpc/transport"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "EDITOR_RPC"

type Config struct {
	Network  string
	Address  string
	HTTPAddr string // extra HTTP surface (ws, rpc, healthz) for serve; empty disables

	RequestTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration

	HandlerTimeout time.Duration
	RateLimit      float64 // requests per second; 0 disables
	RateBurst      int

	LogLevel  string
	LogFormat string

	EtcdEndpoints []string // empty disables discovery
	EtcdService   string
	EtcdTTL       int64

	SettingsFile string
}

func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "editor-rpc.sock")
}

func Default() Config {
	return Config{
		Network:              transport.NetworkUnix,
		Address:              DefaultSocketPath(),
		RequestTimeout:       5 * time.Second,
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
		DialTimeout:          3 * time.Second,
		HandlerTimeout:       30 * time.Second,
		RateBurst:            10,
		LogLevel:             "info",
		LogFormat:            logger.FormatConsole,
		EtcdService:          "editor-rpc",
		EtcdTTL:              10,
		SettingsFile:         filepath.Join(os.TempDir(), "editor-rpc-settings.yaml"),
	}
}

// AddFlags defines every setting as a flag on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("network", d.Network, "transport: "+strings.Join(transport.Networks, ", "))
	fs.String("address", d.Address, "socket path, host:port or URL")
	fs.String("http-addr", d.HTTPAddr, "serve: additional HTTP listen address for /ws, /rpc and /healthz")
	fs.Duration("request-timeout", d.RequestTimeout, "per-request timeout")
	fs.Duration("reconnect-delay", d.ReconnectDelay, "wait between reconnection attempts")
	fs.Int("max-reconnect-attempts", d.MaxReconnectAttempts, "reconnection attempts before giving up (0 disables)")
	fs.Duration("dial-timeout", d.DialTimeout, "timeout of a single dial")
	fs.Duration("handler-timeout", d.HandlerTimeout, "serve: maximum run time of one command")
	fs.Float64("rate-limit", d.RateLimit, "serve: requests per second across all connections (0 disables)")
	fs.Int("rate-burst", d.RateBurst, "serve: rate limiter burst")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "console or json")
	fs.String("etcd-endpoints", "", "comma separated etcd endpoints for discovery")
	fs.String("etcd-service", d.EtcdService, "service name advertised in etcd")
	fs.Int64("etcd-ttl", d.EtcdTTL, "etcd lease TTL in seconds")
	fs.String("settings-file", d.SettingsFile, "serve: settings store file")
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("network", d.Network)
	v.SetDefault("address", d.Address)
	v.SetDefault("http-addr", d.HTTPAddr)
	v.SetDefault("request-timeout", d.RequestTimeout)
	v.SetDefault("reconnect-delay", d.ReconnectDelay)
	v.SetDefault("max-reconnect-attempts", d.MaxReconnectAttempts)
	v.SetDefault("dial-timeout", d.DialTimeout)
	v.SetDefault("handler-timeout", d.HandlerTimeout)
	v.SetDefault("rate-limit", d.RateLimit)
	v.SetDefault("rate-burst", d.RateBurst)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("etcd-endpoints", "")
	v.SetDefault("etcd-service", d.EtcdService)
	v.SetDefault("etcd-ttl", d.EtcdTTL)
	v.SetDefault("settings-file", d.SettingsFile)
}

// Load resolves the configuration. fs may be nil; flags that were not set on
// the command line do not override the environment or the config file.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		Network:              v.GetString("network"),
		Address:              v.GetString("address"),
		HTTPAddr:             v.GetString("http-addr"),
		RequestTimeout:       v.GetDuration("request-timeout"),
		ReconnectDelay:       v.GetDuration("reconnect-delay"),
		MaxReconnectAttempts: v.GetInt("max-reconnect-attempts"),
		DialTimeout:          v.GetDuration("dial-timeout"),
		HandlerTimeout:       v.GetDuration("handler-timeout"),
		RateLimit:            v.GetFloat64("rate-limit"),
		RateBurst:            v.GetInt("rate-burst"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
		EtcdEndpoints:        splitList(v.GetStringSlice("etcd-endpoints")),
		EtcdService:          v.GetString("etcd-service"),
		EtcdTTL:              v.GetInt64("etcd-ttl"),
		SettingsFile:         v.GetString("settings-file"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both a YAML list and a comma separated string.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if !transport.ValidNetwork(c.Network) {
		errs = append(errs, fmt.Errorf("network: %w %q", transport.ErrUnknownNetwork, c.Network))
	}
	if c.Address == "" {
		errs = append(errs, errors.New("address: must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"request-timeout": c.RequestTimeout,
		"reconnect-delay": c.ReconnectDelay,
		"dial-timeout":    c.DialTimeout,
		"handler-timeout": c.HandlerTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, d))
		}
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("max-reconnect-attempts: must not be negative, got %d", c.MaxReconnectAttempts))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate-limit: must not be negative, got %g", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate-burst: must be positive when rate-limit is set, got %d", c.RateBurst))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log-level: %w", err))
	}
	if c.LogFormat != logger.FormatConsole && c.LogFormat != logger.FormatJSON {
		errs = append(errs, fmt.Errorf("log-format: must be console or json, got %q", c.LogFormat))
	}
	if len(c.EtcdEndpoints) > 0 {
		if c.EtcdService == "" {
			errs = append(errs, errors.New("etcd-service: must not be empty"))
		}
		if c.EtcdTTL <= 0 {
			errs = append(errs, fmt.Errorf("etcd-ttl: must be positive, got %d", c.EtcdTTL))
		}
	}
	return errors.Join(errs...)
}

// Logger builds the logger described by LogLevel and LogFormat.
func (c *Config) Logger() (*zap.Logger, error) {
	return logger.New(c.LogLevel, c.LogFormat)
}

// ClientConfig returns the client settings.
func (c *Config) ClientConfig(log *zap.Logger) client.Config {
	return client.Config{
		RequestTimeout:       c.RequestTimeout,
		ReconnectDelay:       c.ReconnectDelay,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		DialTimeout:          c.DialTimeout,
		Logger:               log,
	}
}
