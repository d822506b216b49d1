// Package config loads the persistence configuration from YAML with
// BABBLEBOT_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BABBLEBOT_"

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

var drivers = map[string]bool{
	DriverSQLite:   true,
	DriverSQLite3:  true,
	DriverMySQL:    true,
	DriverPostgres: true,
	DriverMongoDB:  true,
}

// Config is the root configuration document.
type Config struct {
	Database Database `yaml:"database"`
	Logging  Logging  `yaml:"logging"`
	Tracing  Tracing  `yaml:"tracing"`
}

// Database selects and tunes the storage backend.
type Database struct {
	Driver string `yaml:"driver"`
	// DSN, when set, is used verbatim and the discrete fields are ignored.
	DSN      string            `yaml:"dsn,omitempty"`
	Host     string            `yaml:"host,omitempty"`
	Port     int               `yaml:"port,omitempty"`
	User     string            `yaml:"user,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Name     string            `yaml:"name,omitempty"`
	Params   map[string]string `yaml:"params,omitempty"`

	MaxOpenConns        int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`
	StmtCacheCapacity   int           `yaml:"stmt_cache_capacity,omitempty"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval,omitempty"`
	// Increment is the auto-increment strategy: native or last-row. last-row
	// serializes inserts within one process only.
	Increment string `yaml:"increment,omitempty"`
	// SensitiveColumns are masked in query logs in addition to the defaults.
	SensitiveColumns []string `yaml:"sensitive_columns,omitempty"`
}

// Logging selects the logger backend.
type Logging struct {
	// Backend is slog or zap.
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	// Format is text or json; only used by the slog backend.
	Format string `yaml:"format"`
	// Audit is none, writes or all.
	Audit string `yaml:"audit"`
}

// Tracing enables OpenTelemetry spans.
type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given: a local
// SQLite database file.
func Default() *Config {
	return &Config{
		Database: Database{
			Driver:    DriverSQLite,
			Name:      "babblebot.db",
			Increment: "native",
		},
		Logging: Logging{
			Backend: "slog",
			Level:   "info",
			Format:  "text",
			Audit:   "writes",
		},
		Tracing: Tracing{
			ServiceName: "babblebot",
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Environment
// overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to the defaults.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overrides fields from BABBLEBOT_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("DB_HOST", &c.Database.Host)
	num("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	num("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	num("DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	str("DB_INCREMENT", &c.Database.Increment)
	str("LOG_BACKEND", &c.Logging.Backend)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_AUDIT", &c.Logging.Audit)
	if v := getenv(EnvPrefix + "TRACING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		}
	}
}

// Validate checks the driver, logger backend and increment strategy.
func (c *Config) Validate() error {
	if !drivers[c.Database.Driver] {
		return fmt.Errorf("%w: unknown driver %q", ErrInvalid, c.Database.Driver)
	}
	switch c.Database.Increment {
	case "", "native", "last-row":
	default:
		return fmt.Errorf("%w: unknown increment strategy %q", ErrInvalid, c.Database.Increment)
	}
	switch c.Logging.Backend {
	case "", "slog", "zap":
	default:
		return fmt.Errorf("%w: unknown logging backend %q", ErrInvalid, c.Logging.Backend)
	}
	switch c.Logging.Audit {
	case "", "none", "writes", "all":
	default:
		return fmt.Errorf("%w: unknown audit level %q", ErrInvalid, c.Logging.Audit)
	}
	if c.Database.DSN == "" && c.Database.Name == "" {
		return fmt.Errorf("%w: database name or dsn required", ErrInvalid)
	}
	if c.Database.Driver == DriverMongoDB && c.Database.Name == "" {
		return fmt.Errorf("%w: mongodb requires a database name", ErrInvalid)
	}
	return nil
}

// IsDocument reports whether the driver is a document store.
func (d Database) IsDocument() bool { return d.Driver == DriverMongoDB }

// DataSourceName returns the driver specific connection string.
func (d Database) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case DriverMySQL:
		return d.mysqlDSN()
	case DriverPostgres:
		return d.urlDSN("postgres", 5432)
	case DriverMongoDB:
		return d.urlDSN("mongodb", 27017)
	}
	return d.sqliteDSN()
}

func (d Database) mysqlDSN() string {
	mc := mysql.NewConfig()
	mc.User = d.User
	mc.Passwd = d.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(d.hostOr("127.0.0.1"), strconv.Itoa(d.portOr(3306)))
	mc.DBName = d.Name
	if len(d.Params) > 0 {
		mc.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

func (d Database) urlDSN(scheme string, defaultPort int) string {
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(d.hostOr("localhost"), strconv.Itoa(d.portOr(defaultPort))),
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if scheme == "postgres" {
		u.Path = "/" + d.Name
	}
	q := url.Values{}
	for k, v := range d.Params {
		q.Set(k, v)
	}
	if scheme == "postgres" && q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d Database) sqliteDSN() string {
	if len(d.Params) == 0 {
		return d.Name
	}
	q := url.Values{}
	for k, v := range d.Params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(d.Name, "?") {
		sep = "&"
	}
	return d.Name + sep + q.Encode()
}

// IsMemory reports whether the DSN names an in-memory SQLite database.
func (d Database) IsMemory() bool {
	if d.Driver != DriverSQLite && d.Driver != DriverSQLite3 {
		return false
	}
	dsn := d.DataSourceName()
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func (d Database) hostOr(def string) string {
	if d.Host == "" {
		return def
	}
	return d.Host
}

func (d Database) portOr(def int) int {
	if d.Port == 0 {
		return def
	}
	return d.Port
}
