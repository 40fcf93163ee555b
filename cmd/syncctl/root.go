package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/brettsam/offlinesync/internal/aiconflict"
	"github.com/brettsam/offlinesync/internal/engineconfig"
	"github.com/brettsam/offlinesync/internal/remoteclient"
	"github.com/brettsam/offlinesync/internal/store"
	"github.com/brettsam/offlinesync/internal/syncengine"
	"github.com/brettsam/offlinesync/internal/ui"
)

var (
	flagDBPath        string
	flagServerURL     string
	flagConfigPath    string
	flagEngineCfgPath string
	flagLogFile       string
	flagAIResolve     bool
	flagAIAPIKey      string
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Drive the offline sync engine from the command line",
	Long: `syncctl exercises the offline sync engine end to end against the
sqlite DataSource and http RemoteClient adapters: queue a local mutation,
push it, pull server-side changes, purge a table, or cancel a pending
operation.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "mutate", Title: "Local mutations:"},
		&cobra.Group{ID: "sync", Title: "Sync operations:"},
	)

	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "path to the local sqlite database (default .syncctl/local.db)")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "base URL of the sync server")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a syncctl viper config file (yaml/toml/json)")
	rootCmd.PersistentFlags().StringVar(&flagEngineCfgPath, "engine-config", "", "path to an engine TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file, rotated at 10MB (default stderr)")
	rootCmd.PersistentFlags().BoolVar(&flagAIResolve, "ai-resolve", false, "resolve push conflicts with an AI-assisted merge instead of leaving them pending")
	rootCmd.PersistentFlags().StringVar(&flagAIAPIKey, "ai-api-key", "", "Anthropic API key for --ai-resolve (default $ANTHROPIC_API_KEY)")

	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.SetEnvPrefix("SYNCCTL")
	viper.AutomaticEnv()
}

// newLogger builds the shared logger for commands that run long enough to
// want one (watch, serve). With --log-file set, output goes to a
// lumberjack-rotated file instead of stderr.
func newLogger() *log.Logger {
	if flagLogFile == "" {
		return log.New(os.Stderr, "[syncctl] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   flagLogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}, "[syncctl] ", log.LstdFlags)
}

// loadedContext bundles the pieces openSyncContext assembles, so command
// handlers can close what they opened without reaching back into globals.
type loadedContext struct {
	syncCtx *syncengine.SyncContext
	store   *store.Store
}

func (l *loadedContext) Close() {
	l.syncCtx.Close()
	_ = l.store.Close()
}

// openSyncContext wires the sqlite DataSource, the http RemoteClient (if a
// server URL is configured), and the engine configuration into a ready
// SyncContext. Every subcommand that touches the engine calls this first.
func openSyncContext(cmd *cobra.Command) (*loadedContext, error) {
	return openSyncContextWithBroadcaster(cmd, nil)
}

// openSyncContextWithBroadcaster is openSyncContext plus an optional
// Broadcaster, used by "serve" to fan push/pull/conflict events out over
// a websocket while every other command runs with Broadcaster unset.
func openSyncContextWithBroadcaster(cmd *cobra.Command, broadcaster syncengine.Broadcaster) (*loadedContext, error) {
	if flagConfigPath != "" {
		viper.SetConfigFile(flagConfigPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", flagConfigPath, err)
		}
	}

	dbPath := flagDBPath
	if dbPath == "" {
		dbPath = viper.GetString("db")
	}
	if dbPath == "" {
		dbPath = filepath.Join(".syncctl", "local.db")
	}

	ds, err := store.Open(store.DefaultConfig(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	engineCfg, err := engineconfig.Load(flagEngineCfgPath)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}

	var remote syncengine.RemoteClient
	serverURL := flagServerURL
	if serverURL == "" {
		serverURL = viper.GetString("server")
	}
	if serverURL != "" {
		remote = remoteclient.New(remoteclient.Config{BaseURL: serverURL})
	}

	var resolver syncengine.ConflictResolver
	if flagAIResolve {
		apiKey := flagAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			_ = ds.Close()
			return nil, fmt.Errorf("--ai-resolve requires --ai-api-key or ANTHROPIC_API_KEY")
		}
		resolver = aiconflict.New(aiconflict.Config{APIKey: apiKey}).AsResolver()
	}

	syncCtx, err := syncengine.NewContext(syncengine.ContextConfig{
		DataSource:                  ds,
		Remote:                      remote,
		CallbackConcurrency:         engineCfg.CallbackConcurrency,
		MinSupportedProtocolVersion: engineCfg.MinSupportedProtocolVersion,
		Broadcaster:                 broadcaster,
		ConflictResolver:            resolver,
	})
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("new sync context: %w", err)
	}

	return &loadedContext{syncCtx: syncCtx, store: ds}, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, ui.RenderFail("✗"), err)
	os.Exit(1)
}
