package migratord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/surrealdb/migrator"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/properties"
)

// Environment variables that override the configuration file.
const (
	EnvListen      = "MIGRATOR_LISTEN"
	EnvPhase       = "MIGRATOR_PHASE"
	EnvPostgresDSN = "MIGRATOR_POSTGRES_DSN"
	EnvSurrealURL  = "MIGRATOR_SURREALDB_URL"
	EnvLogLevel    = "MIGRATOR_LOG_LEVEL"
)

// Store kinds.
const (
	KindPostgres  = "postgres"
	KindSQLite    = "sqlite"
	KindSurrealDB = "surrealdb"
	KindMemory    = "memory"
)

// Decision modes.
const (
	DecidePhase = "phase"
	DecideFlags = "flags"
)

// Config is the daemon configuration. The same TOML file also carries the
// facade's flat properties (the [migrator] and [flags] tables).
type Config struct {
	Listen    string `toml:"listen"`
	Phase     string `toml:"phase"`
	Decision  string `toml:"decision"`
	PoolSize  int    `toml:"pool_size"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
	// DestinationWinsFrom makes the destination result win divergences from
	// that phase on. Empty keeps the source authoritative.
	DestinationWinsFrom string `toml:"destination_wins_from"`

	Source      StoreConfig `toml:"source"`
	Destination StoreConfig `toml:"destination"`

	// Properties are every key of the file, flattened.
	Properties *properties.Properties `toml:"-"`
}

type StoreConfig struct {
	Kind      string `toml:"kind"`
	DSN       string `toml:"dsn"`
	Path      string `toml:"path"`
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	MaxConns  int    `toml:"max_conns"`
}

// DefaultConfig runs both stores in memory.
func DefaultConfig() Config {
	return Config{
		Listen:      ":8080",
		Phase:       string(decision.PhaseSourceOnly),
		Decision:    DecidePhase,
		LogLevel:    "info",
		LogFormat:   "text",
		Source:      StoreConfig{Kind: KindMemory},
		Destination: StoreConfig{Kind: KindMemory},
		Properties:  properties.Empty(),
	}
}

// LoadConfig reads path over the defaults and applies the environment.
// An empty path uses the defaults only.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &conf); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		props, err := properties.LoadTOML(path)
		if err != nil {
			return Config{}, err
		}
		conf.Properties = props
	}
	conf.applyEnv()
	return conf, conf.Validate()
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(doc string) (Config, error) {
	conf := DefaultConfig()
	if _, err := toml.Decode(doc, &conf); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	props, err := properties.ParseTOML(doc)
	if err != nil {
		return Config{}, err
	}
	conf.Properties = props
	conf.applyEnv()
	return conf, conf.Validate()
}

func (c *Config) applyEnv() {
	c.Listen = migrator.GetEnvOrDefault(EnvListen, c.Listen)
	c.Phase = migrator.GetEnvOrDefault(EnvPhase, c.Phase)
	c.LogLevel = migrator.GetEnvOrDefault(EnvLogLevel, c.LogLevel)
	if c.Source.Kind == KindPostgres {
		c.Source.DSN = migrator.GetEnvOrDefault(EnvPostgresDSN, c.Source.DSN)
	}
	if c.Destination.Kind == KindSurrealDB {
		c.Destination.URL = migrator.GetEnvOrDefault(EnvSurrealURL, c.Destination.URL)
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := decision.ParsePhase(c.Phase); err != nil {
		errs = append(errs, err)
	}
	if c.DestinationWinsFrom != "" {
		if _, err := decision.ParsePhase(c.DestinationWinsFrom); err != nil {
			errs = append(errs, fmt.Errorf("destination_wins_from: %w", err))
		}
	}
	if c.Decision != DecidePhase && c.Decision != DecideFlags {
		errs = append(errs, fmt.Errorf("decision must be %q or %q, got %q", DecidePhase, DecideFlags, c.Decision))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool_size must not be negative, got %d", c.PoolSize))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Source.Kind {
	case KindPostgres:
		if c.Source.DSN == "" {
			errs = append(errs, errors.New("source: postgres needs a dsn"))
		}
	case KindSQLite, KindMemory:
	default:
		errs = append(errs, fmt.Errorf("source: unsupported kind %q", c.Source.Kind))
	}
	switch c.Destination.Kind {
	case KindSurrealDB:
		if c.Destination.URL == "" {
			errs = append(errs, errors.New("destination: surrealdb needs a url"))
		}
	case KindMemory:
	default:
		errs = append(errs, fmt.Errorf("destination: unsupported kind %q", c.Destination.Kind))
	}
	return errors.Join(errs...)
}

// Summary lists the effective settings, one per line, with secrets masked.
func (c *Config) Summary() string {
	var b strings.Builder
	line := func(k, v string) {
		fmt.Fprintf(&b, "%-22s %s\n", k, v)
	}
	line("listen", c.Listen)
	line("phase", c.Phase)
	line("decision", c.Decision)
	line("pool_size", strconv.Itoa(c.PoolSize))
	line("log", c.LogLevel+"/"+c.LogFormat)
	if c.DestinationWinsFrom != "" {
		line("destination_wins_from", c.DestinationWinsFrom)
	}
	line("source", c.Source.describe())
	line("destination", c.Destination.describe())
	for _, k := range c.Properties.Keys() {
		if strings.HasPrefix(k, "migrator.") || strings.HasPrefix(k, "flags.") {
			v, _ := c.Properties.Lookup(k)
			line(k, v)
		}
	}
	return b.String()
}

func (s StoreConfig) describe() string {
	switch s.Kind {
	case KindPostgres:
		return s.Kind + " " + maskDSN(s.DSN)
	case KindSQLite:
		return s.Kind + " " + s.Path
	case KindSurrealDB:
		return fmt.Sprintf("%s %s ns=%s db=%s", s.Kind, s.URL, s.Namespace, s.Database)
	default:
		return s.Kind
	}
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return dsn[:scheme+3] + creds[:colon] + ":***" + dsn[at:]
	}
	return dsn
}
