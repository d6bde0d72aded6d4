package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mbrandao/opchat/internal/dialog"
	"github.com/mbrandao/opchat/internal/extract"
	"github.com/mbrandao/opchat/internal/output"
	"github.com/mbrandao/opchat/internal/session"
	"github.com/mbrandao/opchat/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "opchat",
	Short: "Chat-driven production order tracking",
	Long: `opchat manages production orders, their parts, and delivery risk
alerts through a conversational interface. Talk to it in plain
language to create, search, update, and delete orders; every
mutation is confirmed before it happens.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "opchat %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/opchat/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "opchat")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("OPCHAT")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "opchat")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "opchat.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("chat.history", 10)
	viper.SetDefault("chat.yes_words", []string{})
	viper.SetDefault("chat.no_words", []string{})
	viper.SetDefault("order.required_fields", []string{"client_name", "delivery_date"})
	viper.SetDefault("session.backend", "memory")
	viper.SetDefault("session.redis_addr", "localhost:6379")
	viper.SetDefault("session.redis_password", "")
	viper.SetDefault("session.redis_db", 0)
	viper.SetDefault("session.ttl", "24h")
	viper.SetDefault("webhook.url", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version commands run
	// without a database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newSessionStore builds the configured conversation state backend.
func newSessionStore() (session.Store, error) {
	switch backend := viper.GetString("session.backend"); backend {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		ttl, err := time.ParseDuration(viper.GetString("session.ttl"))
		if err != nil {
			return nil, fmt.Errorf("invalid session.ttl: %w", err)
		}
		return session.NewRedisStore(
			viper.GetString("session.redis_addr"),
			viper.GetString("session.redis_password"),
			viper.GetInt("session.redis_db"),
			ttl,
		)
	default:
		return nil, fmt.Errorf("unknown session.backend: %q (use memory or redis)", backend)
	}
}

// newOrchestrator wires the chat pipeline: store, session backend, and
// extractor into a dialog orchestrator.
func newOrchestrator() (*dialog.Orchestrator, error) {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	sessions, err := newSessionStore()
	if err != nil {
		return nil, err
	}

	extractor := extract.NewAnthropicExtractor(apiKey, viper.GetString("anthropic.model"))

	cfg := dialog.Config{
		HistoryLimit:   viper.GetInt("chat.history"),
		RequiredFields: viper.GetStringSlice("order.required_fields"),
		YesWords:       viper.GetStringSlice("chat.yes_words"),
		NoWords:        viper.GetStringSlice("chat.no_words"),
	}
	return dialog.New(s, sessions, extractor, cfg), nil
}
