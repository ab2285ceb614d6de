// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads warden settings from defaults, an optional YAML file
// and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/logging"
	"github.com/holomush/warden/internal/xdg"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// ConfigFlag names the flag that selects the config file. It is not a setting.
const ConfigFlag = "config"

// Config is the resolved warden configuration. The jsonschema tags describe
// the YAML file; Validate enforces the cross-field rules.
type Config struct {
	HTTPAddr      string `koanf:"http_addr" jsonschema:"description=Address the auth API listens on"`
	MetricsAddr   string `koanf:"metrics_addr" jsonschema:"description=Address for /metrics and health probes; empty disables"`
	LogFormat     string `koanf:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel      string `koanf:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Store         string `koanf:"store" jsonschema:"enum=memory,enum=postgres,enum=sqlite"`
	DatabaseURL   string `koanf:"database_url" jsonschema:"description=PostgreSQL URL used when store is postgres"`
	SQLitePath    string `koanf:"sqlite_path" jsonschema:"description=SQLite database file used when store is sqlite"`
	CookieSecure  bool   `koanf:"cookie_secure" jsonschema:"description=Mark the session cookie Secure"`
	TLSCertFile   string `koanf:"tls_cert_file" jsonschema:"description=PEM certificate for serving HTTPS"`
	TLSKeyFile    string `koanf:"tls_key_file" jsonschema:"description=PEM private key for tls_cert_file"`
	TLSAuto       bool   `koanf:"tls_auto" jsonschema:"description=Serve HTTPS with a generated local certificate"`
	Argon2Time    uint32 `koanf:"argon2_time" jsonschema:"minimum=1"`
	Argon2Memory  uint32 `koanf:"argon2_memory" jsonschema:"minimum=8,description=Argon2id memory in KiB"`
	Argon2Threads uint8  `koanf:"argon2_threads" jsonschema:"minimum=1,maximum=255"`
}

// Default returns the built-in configuration.
func Default() Config {
	argon := auth.DefaultArgon2idParams()
	sqlitePath, err := xdg.DefaultSQLitePath()
	if err != nil {
		sqlitePath = "warden.db"
	}
	return Config{
		HTTPAddr:      "127.0.0.1:5000",
		MetricsAddr:   "127.0.0.1:9100",
		LogFormat:     "json",
		LogLevel:      "info",
		Store:         StoreMemory,
		SQLitePath:    sqlitePath,
		Argon2Time:    argon.Time,
		Argon2Memory:  argon.Memory,
		Argon2Threads: argon.Threads,
	}
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"http_addr":      c.HTTPAddr,
		"metrics_addr":   c.MetricsAddr,
		"log_format":     c.LogFormat,
		"log_level":      c.LogLevel,
		"store":          c.Store,
		"database_url":   c.DatabaseURL,
		"sqlite_path":    c.SQLitePath,
		"cookie_secure":  c.CookieSecure,
		"tls_cert_file":  c.TLSCertFile,
		"tls_key_file":   c.TLSKeyFile,
		"tls_auto":       c.TLSAuto,
		"argon2_time":    c.Argon2Time,
		"argon2_memory":  c.Argon2Memory,
		"argon2_threads": c.Argon2Threads,
	}
}

// RegisterFlags adds one flag per setting, named with dashes, to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(ConfigFlag, "", "config file (default $XDG_CONFIG_HOME/warden/config.yaml)")
	flags.String("http-addr", d.HTTPAddr, "address the auth API listens on")
	flags.String("metrics-addr", d.MetricsAddr, "address for /metrics and health probes (empty disables)")
	flags.String("log-format", d.LogFormat, "log format (json|text)")
	flags.String("log-level", d.LogLevel, "log level (debug|info|warn|error)")
	flags.String("store", d.Store, "identity store backend (memory|postgres|sqlite)")
	flags.String("database-url", d.DatabaseURL, "PostgreSQL URL (default $DATABASE_URL)")
	flags.String("sqlite-path", d.SQLitePath, "SQLite database file")
	flags.Bool("cookie-secure", d.CookieSecure, "mark the session cookie Secure (implied by TLS)")
	flags.String("tls-cert-file", d.TLSCertFile, "PEM certificate; serves HTTPS when set with --tls-key-file")
	flags.String("tls-key-file", d.TLSKeyFile, "PEM private key for --tls-cert-file")
	flags.Bool("tls-auto", d.TLSAuto, "serve HTTPS with a certificate generated under $XDG_CONFIG_HOME/warden/certs")
	flags.Uint32("argon2-time", d.Argon2Time, "argon2id iterations")
	flags.Uint32("argon2-memory", d.Argon2Memory, "argon2id memory in KiB")
	flags.Uint8("argon2-threads", d.Argon2Threads, "argon2id parallelism")
}

// Load resolves the configuration. An explicit path must exist; with an
// empty path the XDG config file is read only if present. Only flags the
// user set override file values. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	ko := koanf.New(".")

	if err := ko.Load(confmap.Provider(Default().toMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	filePath, err := resolveFile(path)
	if err != nil {
		return nil, err
	}
	if filePath != "" {
		if err := ko.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", filePath).
				Wrap(err)
		}
		if err := validateFile(filePath); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", ko, func(f *pflag.Flag) (string, any) {
			if f.Name == ConfigFlag {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := ko.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := ko.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
		}
		return path, nil
	}

	defaultPath, err := xdg.ConfigFile()
	if err != nil {
		// No HOME and no XDG_CONFIG_HOME means there is no default file.
		return "", nil //nolint:nilerr // the default file is optional
	}
	if _, err := os.Stat(defaultPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", defaultPath).Wrap(err)
	}
	return defaultPath, nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return invalid("http_addr", "must not be empty")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "must be json or text, got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown level %q", c.LogLevel)
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "required when store is postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path", "required when store is sqlite")
		}
	default:
		return invalid("store", "must be memory, postgres or sqlite, got %q", c.Store)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		if c.TLSCertFile == "" {
			return invalid("tls_cert_file", "required with tls_key_file")
		}
		return invalid("tls_key_file", "required with tls_cert_file")
	}
	if c.TLSAuto && c.TLSCertFile != "" {
		return invalid("tls_auto", "cannot be combined with tls_cert_file")
	}
	if err := c.Argon2Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "argon2").Wrap(err)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// TLSEnabled reports whether the auth API is served over HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSAuto || c.TLSCertFile != ""
}

// Argon2Params returns the hashing cost with the default salt and key lengths.
func (c *Config) Argon2Params() auth.Argon2idParams {
	params := auth.DefaultArgon2idParams()
	params.Time = c.Argon2Time
	params.Memory = c.Argon2Memory
	params.Threads = c.Argon2Threads
	return params
}
