// Package config loads facematch settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "FACEMATCH_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Match    MatchConfig    `koanf:"match"`
	Store    StoreConfig    `koanf:"store"`
	Raft     RaftConfig     `koanf:"raft"`
	Embedder EmbedderConfig `koanf:"embedder"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	HTTPAddr string `koanf:"http_addr"`
}

// MatchConfig tunes the ranker. A candidate must score strictly above
// Threshold to be returned, and at most TopN results are returned.
type MatchConfig struct {
	Threshold float64 `koanf:"threshold"`
	TopN      int     `koanf:"top_n"`
}

type StoreConfig struct {
	DataDir          string        `koanf:"data_dir"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
}

type RaftConfig struct {
	Enabled      bool          `koanf:"enabled"`
	NodeID       string        `koanf:"node_id"`
	BindAddr     string        `koanf:"bind_addr"`
	Bootstrap    bool          `koanf:"bootstrap"`
	ApplyTimeout time.Duration `koanf:"apply_timeout"`
}

// EmbedderConfig points at the external face-embedding service. An empty
// URL disables image-based operations.
type EmbedderConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
	Retries int           `koanf:"retries"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{HTTPAddr: ":8080"},
		Match:  MatchConfig{Threshold: 0.7, TopN: 3},
		Store: StoreConfig{
			DataDir:          "./data",
			SnapshotInterval: 10 * time.Minute,
		},
		Raft: RaftConfig{
			NodeID:       "node-1",
			BindAddr:     "127.0.0.1:7000",
			ApplyTimeout: 10 * time.Second,
		},
		Embedder: EmbedderConfig{
			Timeout: 30 * time.Second,
			Retries: 2,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration with the following precedence (highest first):
//  1. Environment variables, e.g. FACEMATCH_MATCH_TOP_N -> match.top_n
//  2. The YAML file at path, when path is non-empty and exists
//  3. Default()
//
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps FACEMATCH_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

func (c *Config) Validate() error {
	if c.Match.Threshold < 0 || c.Match.Threshold >= 1 {
		return fmt.Errorf("match.threshold must be in [0, 1), got %v", c.Match.Threshold)
	}
	if c.Match.TopN < 1 {
		return fmt.Errorf("match.top_n must be at least 1, got %d", c.Match.TopN)
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Raft.Enabled {
		if c.Raft.NodeID == "" || c.Raft.BindAddr == "" {
			return errors.New("raft.node_id and raft.bind_addr are required when raft is enabled")
		}
		if c.Raft.ApplyTimeout <= 0 {
			return errors.New("raft.apply_timeout must be positive")
		}
	}
	if c.Embedder.Retries < 0 {
		return errors.New("embedder.retries must not be negative")
	}
	return nil
}
