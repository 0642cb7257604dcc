// Package config loads service settings from defaults, an optional YAML file,
// FUNDIMART_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FUNDIMART"

// Config is the resolved runtime configuration of the API process.
type Config struct {
	ConfigFile     string        `mapstructure:"config"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	GRPCAddr       string        `mapstructure:"grpc_addr"`
	PostgresDSN    string        `mapstructure:"pg_dsn"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	AuthSecret     string        `mapstructure:"auth_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	LogLevel       string        `mapstructure:"log_level"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	ReportBaseURL  string        `mapstructure:"report_base_url"`
	// TrustedProxies lists the peers whose X-Forwarded-For header is honoured.
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

var defaults = map[string]any{
	"config":          "",
	"http_addr":       ":8080",
	"grpc_addr":       ":9090",
	"pg_dsn":          "",
	"redis_addr":      "",
	"redis_password":  "",
	"redis_db":        0,
	"auth_secret":     "",
	"token_ttl":       time.Hour,
	"log_level":       "info",
	"rate_per_second": 10.0,
	"rate_burst":      20,
	"max_body_bytes":  int64(1 << 20),
	"report_base_url": "https://reports.fundimart.local",
	"trusted_proxies": []string{},
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers the persistent flags of cmd and binds them into v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	fs := cmd.PersistentFlags()
	fs.String("config", "", "path to a YAML config file")
	fs.String("http-addr", defaults["http_addr"].(string), "HTTP listen address")
	fs.String("grpc-addr", defaults["grpc_addr"].(string), "gRPC listen address")
	fs.String("pg-dsn", "", "Postgres DSN; empty selects the in-memory store")
	fs.String("redis-addr", "", "Redis address for token revocation")
	fs.String("log-level", defaults["log_level"].(string), "log level")
	fs.StringSlice("trusted-proxies", nil, "CIDRs or addresses of reverse proxies allowed to set X-Forwarded-For")

	for key, flag := range map[string]string{
		"config":          "config",
		"http_addr":       "http-addr",
		"grpc_addr":       "grpc-addr",
		"pg_dsn":          "pg-dsn",
		"redis_addr":      "redis-addr",
		"log_level":       "log-level",
		"trusted_proxies": "trusted-proxies",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load merges the optional config file and decodes the result.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("auth_secret is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProxyPrefixes parses TrustedProxies; a bare address is a single-host prefix.
func (c Config) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted_proxies: %w", err)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}
