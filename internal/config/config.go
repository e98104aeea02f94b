// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then GATEHOUSE_ environment variables, then command
// line flags. Later layers win.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

const envPrefix = "GATEHOUSE_"

// Config is the full runtime configuration for the gatehouse server.
type Config struct {
	HTTP          HTTPConfig          `koanf:"http"`
	Observability ObservabilityConfig `koanf:"observability"`
	Database      DatabaseConfig      `koanf:"database"`
	Session       SessionConfig       `koanf:"session"`
	Log           LogConfig           `koanf:"log"`
}

// HTTPConfig configures the public web listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// ObservabilityConfig configures the internal metrics and health listener.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection and its retry policy.
type DatabaseConfig struct {
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port"`
	Name          string        `koanf:"name"`
	User          string        `koanf:"user"`
	Password      string        `koanf:"password"`
	SSLMode       string        `koanf:"sslmode"`
	RetryAttempts uint64        `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// DSN assembles a postgres:// connection string. The password is URL
// escaped so generated secrets with punctuation survive.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// SessionConfig configures browser sessions. Secret signs the flash cookie
// and must be set; there is no development fallback.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// LogConfig configures log output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration baseline before any layer is applied.
func Default() Config {
	return Config{
		HTTP:          HTTPConfig{Addr: ":8080"},
		Observability: ObservabilityConfig{Addr: ":9090"},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Name:          "gatehouse",
			User:          "gatehouse",
			SSLMode:       "disable",
			RetryAttempts: 5,
			RetryDelay:    5 * time.Second,
		},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from all layers. The path may be empty, in
// which case no file layer is read; a non-empty path must exist. The flag
// set may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	// GATEHOUSE_DATABASE_PASSWORD becomes database.password. A double
	// underscore keeps an underscore inside a segment, so
	// GATEHOUSE_DATABASE_RETRY__ATTEMPTS becomes database.retry_attempts.
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.ReplaceAll(key, "__", "-")
			key = strings.ReplaceAll(key, "_", ".")
			key = strings.ReplaceAll(key, "-", "_")
			return key, value
		},
	}), nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Session.Secret == "" {
		return oops.Code("CONFIG_INVALID").With("field", "session.secret").
			Errorf("session secret is required")
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "session.ttl").
			Errorf("session ttl must be positive")
	}
	if c.Database.Host == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.host").
			Errorf("database host is required")
	}
	if c.Database.Name == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.name").
			Errorf("database name is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return oops.Code("CONFIG_INVALID").With("field", "database.port").
			Errorf("database port %d out of range", c.Database.Port)
	}
	if c.Database.RetryAttempts == 0 {
		return oops.Code("CONFIG_INVALID").With("field", "database.retry_attempts").
			Errorf("retry attempts must be at least 1")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("field", "log.format").
			Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Flags returns the pflag set for config keys that may be overridden on the
// command line. Flag names use dots matching the koanf key paths, and flag
// defaults mirror Default() so unset flags never clobber lower layers.
func Flags() *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet("gatehouse", pflag.ContinueOnError)
	fs.String("http.addr", def.HTTP.Addr, "public HTTP listen address")
	fs.String("observability.addr", def.Observability.Addr, "metrics and health listen address")
	fs.String("database.host", def.Database.Host, "database host")
	fs.Int("database.port", def.Database.Port, "database port")
	fs.String("database.name", def.Database.Name, "database name")
	fs.String("database.user", def.Database.User, "database user")
	fs.String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", def.Log.Format, "log format (json, text)")
	return fs
}
