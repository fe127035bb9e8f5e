package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Applications []ApplicationConfig `yaml:"applications"`
	Store        StoreConfig         `yaml:"store"`
	Cache        CacheConfig         `yaml:"cache"`
	Queue        QueueConfig         `yaml:"queue"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	Log          LogConfig           `yaml:"log"`
}

type ApplicationConfig struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

type StoreConfig struct {
	// Driver is one of neo4j, sql or memory.
	Driver string      `yaml:"driver"`
	Neo4j  Neo4jConfig `yaml:"neo4j"`
	SQL    SQLConfig   `yaml:"sql"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type SQLConfig struct {
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

// CacheConfig enables the record listing cache when Redis is set.
type CacheConfig struct {
	Redis    string        `yaml:"redis"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	// Driver is one of memory, nats or redis.
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
	// Group is the NATS queue group, Prefix the Redis key prefix.
	Group  string `yaml:"group"`
	Prefix string `yaml:"prefix"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver: "neo4j",
			Neo4j:  Neo4jConfig{Database: "neo4j"},
		},
		Cache: CacheConfig{
			Prefix: "appmigrate:cache:",
			TTL:    time.Minute,
		},
		Queue: QueueConfig{
			Driver: "memory",
			Prefix: "appmigrate:",
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// loadConfig reads the YAML file at path over the defaults and applies the
// environment overrides. An empty path means defaults and environment only.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := parseConfig(content, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseConfig(content []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	override(&cfg.Store.Neo4j.URI, "NEO4J_URI")
	override(&cfg.Store.Neo4j.Username, "NEO4J_USERNAME")
	override(&cfg.Store.Neo4j.Password, "NEO4J_PASSWORD")
	override(&cfg.Store.Neo4j.Database, "NEO4J_DATABASE")
	override(&cfg.Store.SQL.DSN, "APPMIGRATE_STORE_DSN")
	override(&cfg.Queue.URL, "APPMIGRATE_QUEUE_URL")
}

func (c Config) validate() error {
	if len(c.Applications) == 0 {
		return fmt.Errorf("at least one application is required")
	}
	for i, app := range c.Applications {
		if strings.TrimSpace(app.Name) == "" {
			return fmt.Errorf("application %d: name is required", i)
		}
		if app.Dir == "" {
			return fmt.Errorf("application %s: dir is required", app.Name)
		}
	}

	switch c.Store.Driver {
	case "neo4j":
		if c.Store.Neo4j.URI == "" {
			return fmt.Errorf("NEO4J_URI environment variable is required")
		}
		if c.Store.Neo4j.Username == "" {
			return fmt.Errorf("NEO4J_USERNAME environment variable is required")
		}
		if c.Store.Neo4j.Password == "" {
			return fmt.Errorf("NEO4J_PASSWORD environment variable is required")
		}
	case "sql":
		if c.Store.SQL.DSN == "" {
			return fmt.Errorf("APPMIGRATE_STORE_DSN environment variable is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Queue.Driver {
	case "memory", "nats":
	case "redis":
		if c.Queue.URL == "" {
			return fmt.Errorf("APPMIGRATE_QUEUE_URL environment variable is required")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	return nil
}

// application returns the configured application called name.
func (c Config) application(name string) (ApplicationConfig, error) {
	for _, app := range c.Applications {
		if app.Name == name {
			return app, nil
		}
	}
	return ApplicationConfig{}, fmt.Errorf("unknown application %q", name)
}
