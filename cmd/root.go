package cmd

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kayz/promptbot/internal/config"
	"github.com/kayz/promptbot/internal/generator"
	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/persist"
	"github.com/kayz/promptbot/internal/persona"
	"github.com/kayz/promptbot/internal/snapshot"
)

var (
	logLevel   string
	configPath string
	personaDir string
)

var rootCmd = &cobra.Command{
	Use:   "promptbot",
	Short: "Template-driven chat agents with a bounded context window",
	Long: `promptbot runs chat agents described by persona documents.

A persona is a prompt template (preamble, labeled roles, seed examples)
plus engine and generation settings. Every turn the prompt is rebuilt from
the template and as much recent history as fits the model's budget.

Commands:
  promptbot chat <persona>      Chat interactively
  promptbot render <persona>    Print the prompt for one query
  promptbot persona ...         Validate, import and inspect personas
  promptbot sessions ...        Inspect saved sessions`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		return logger.Init(level, cfg.Logging.File)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "",
		"Log level: trace, debug, info, warn, error, fatal, panic (default from config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: .promptbot.yaml beside the executable)")
	rootCmd.PersistentFlags().StringVar(&personaDir, "persona-dir", "",
		"Directory of persona documents (overrides personas.dir)")
}

// loadConfig loads the config file named by --config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if personaDir != "" {
		cfg.Personas.Dir = personaDir
	}
	return cfg, nil
}

// openStore opens the SQLite store of personas and sessions.
func openStore(cfg *config.Config) (*persist.Store, error) {
	store, err := persist.NewStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.SQLitePath, err)
	}
	return store, nil
}

// personaSource reads personas from the persona directory first, then
// from the store.
func personaSource(cfg *config.Config, store *persist.Store) persona.Source {
	sources := persona.Sources{persona.DirSource{Root: cfg.Personas.Dir}}
	if store != nil {
		sources = append(sources, persist.PersonaSource{Store: store})
	}
	return sources
}

// openSnapshots opens the snapshot driver selected by store.snapshots.
func openSnapshots(cfg *config.Config, store *persist.Store) (snapshot.Store, error) {
	ttl, err := cfg.Store.TTL()
	if err != nil {
		return nil, err
	}
	kind := snapshot.StoreType(cfg.Store.Snapshots)
	switch kind {
	case snapshot.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Store.RedisAddr,
			DB:   cfg.Store.RedisDB,
		})
		return snapshot.NewStore(kind, snapshot.WithRedisClient(client), snapshot.WithTTL(ttl))
	case snapshot.StoreTypeSQLite:
		return snapshot.NewStore(kind, snapshot.WithSQLite(store))
	default:
		return snapshot.NewStore(kind)
	}
}

// newGenerator builds the configured generator, or the scripted one for
// dry runs.
func newGenerator(cfg *config.Config, dryRun bool) (generator.TextGenerator, error) {
	gcfg := cfg.Generator
	if dryRun {
		gcfg.Provider = "scripted"
		gcfg.RateLimit = 0
	}
	return generator.New(gcfg)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
