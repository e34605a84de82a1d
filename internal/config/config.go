package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: PROMPTBOT_GENERATOR__API_KEY sets generator.api_key.
const EnvPrefix = "PROMPTBOT_"

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Logging   LoggingConfig   `koanf:"logging" yaml:"logging"`
	Personas  PersonasConfig  `koanf:"personas" yaml:"personas"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Generator GeneratorConfig `koanf:"generator" yaml:"generator"`
	Audit     AuditConfig     `koanf:"audit" yaml:"audit"`
	// HardCap is the model's combined input and output token limit.
	HardCap int `koanf:"hard_cap" yaml:"hard_cap"`
}

type LoggingConfig struct {
	Level string `koanf:"level" yaml:"level"`
	File  string `koanf:"file" yaml:"file,omitempty"`
}

// PersonasConfig locates persona documents on disk.
type PersonasConfig struct {
	Dir string `koanf:"dir" yaml:"dir"`
}

// StoreConfig configures persistence of personas and session snapshots.
type StoreConfig struct {
	SQLitePath string `koanf:"sqlite_path" yaml:"sqlite_path"`
	// Snapshots selects the snapshot driver: "memory", "redis" or "sqlite".
	Snapshots   string `koanf:"snapshots" yaml:"snapshots"`
	RedisAddr   string `koanf:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisDB     int    `koanf:"redis_db" yaml:"redis_db,omitempty"`
	SnapshotTTL string `koanf:"snapshot_ttl" yaml:"snapshot_ttl,omitempty"`
}

// TTL parses SnapshotTTL. Empty means no expiry.
func (s StoreConfig) TTL() (time.Duration, error) {
	if strings.TrimSpace(s.SnapshotTTL) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.SnapshotTTL)
	if err != nil {
		return 0, fmt.Errorf("store.snapshot_ttl: %w", err)
	}
	return d, nil
}

// GeneratorConfig selects and configures the text generation backend.
type GeneratorConfig struct {
	// Provider is one of "openai", "anthropic", "cohere", "ollama",
	// "langchain-openai" or "scripted".
	Provider string `koanf:"provider" yaml:"provider"`
	APIKey   string `koanf:"api_key" yaml:"api_key,omitempty"`
	BaseURL  string `koanf:"base_url" yaml:"base_url,omitempty"`
	// Model overrides the persona's client_config.model when set.
	Model string `koanf:"model" yaml:"model,omitempty"`
	// Tokenizer is one of "estimate", "cohere", "tiktoken" or "words".
	Tokenizer string `koanf:"tokenizer" yaml:"tokenizer"`
	// RateLimit is the allowed generations per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit,omitempty"`
	Burst     int     `koanf:"burst" yaml:"burst,omitempty"`
}

// AuditConfig controls the JSONL log of assembled prompts.
type AuditConfig struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	Dir           string `koanf:"dir" yaml:"dir"`
	RetentionDays int    `koanf:"retention_days" yaml:"retention_days"`
	FilePrefix    string `koanf:"file_prefix" yaml:"file_prefix"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Personas: PersonasConfig{
			Dir: "personas",
		},
		Store: StoreConfig{
			SQLitePath:  ".promptbot.db",
			Snapshots:   "sqlite",
			SnapshotTTL: "24h",
		},
		Generator: GeneratorConfig{
			Provider:  "cohere",
			Tokenizer: "estimate",
		},
		Audit: AuditConfig{
			Enabled:       false,
			Dir:           ".promptbot/audit",
			RetentionDays: 7,
			FilePrefix:    "promptbuild",
		},
		HardCap: 2048,
	}
}

func defaultValues() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		"logging.level":        d.Logging.Level,
		"personas.dir":         d.Personas.Dir,
		"store.sqlite_path":    d.Store.SQLitePath,
		"store.snapshots":      d.Store.Snapshots,
		"store.snapshot_ttl":   d.Store.SnapshotTTL,
		"generator.provider":   d.Generator.Provider,
		"generator.tokenizer":  d.Generator.Tokenizer,
		"audit.enabled":        d.Audit.Enabled,
		"audit.dir":            d.Audit.Dir,
		"audit.retention_days": d.Audit.RetentionDays,
		"audit.file_prefix":    d.Audit.FilePrefix,
		"hard_cap":             d.HardCap,
	}
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".promptbot.yaml")
}

// Load reads the config beside the executable.
func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath layers defaults, the YAML file at path (if it exists) and
// PROMPTBOT_* environment variables, in that order.
func LoadFromPath(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, err := cfg.Store.TTL(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the config beside the executable.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
