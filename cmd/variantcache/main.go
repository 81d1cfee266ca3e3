package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"variantcache/internal/config"
	"variantcache/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose      bool
	configPath   string
	dataDir      string
	participant  string
	conversation string
	mode         string

	// Logger
	logger *zap.Logger

	// app is built once flags are parsed.
	app *application
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "variantcache",
	Short: "Keep every generated version of a chat message and switch between them",
	Long: `variantcache records each generated text of a conversation message as a
variant, persists the variants next to the conversation history and lets
you step through them. The selected variant is written back into the
history, so the transcript always shows what you picked.

Histories live under the data directory as {mode}/{participant}/{id}.json
(instruct mode: instruct/{id}.json); caches sit beside them as
{id}.json.cache.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Settings()); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		logging.Boot("variantcache %s starting (data dir %s)", cmd.Name(), cfg.DataDir)

		app, err = newApplication(cfg)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "History directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&participant, "participant", "p", "default", "Participant (character) name")
	rootCmd.PersistentFlags().StringVarP(&conversation, "conversation", "c", "", "Conversation id")
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", "chat", "Chat mode (chat, chat-instruct, instruct)")

	registerMessageCommands()
	registerNavigationCommands()
	registerLifecycleCommands()
	rootCmd.AddCommand(browseCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	shutdown()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// shutdown persists the active cache context and flushes the logs.
func shutdown() {
	if app != nil {
		app.close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
	logging.CloseAudit()
	logging.CloseAll()
}
