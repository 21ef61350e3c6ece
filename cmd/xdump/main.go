package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xdump/internal/config"
	"xdump/internal/twitter"
	"xdump/internal/twitter/apireplay"
	"xdump/internal/twitter/browser"
)

const version = "0.3.0"

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xdump",
	Short: "X/Twitter timeline scraper",
	Long: `xdump scrapes X/Twitter lists and user profiles into a local database
and emits tweets as JSON lines.

Two fetch strategies are available. "browser" (the default) drives a real
browser over a persistent profile and reads the web client's own API traffic.
"api" replays the same GraphQL calls directly, authenticated with session
cookies from the account pool. Select one via the config file or
XDUMP_BACKEND.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		// Keep stderr quiet by default; tweets go to stdout and progress
		// messages are printed separately.
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the xdump version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("xdump " + version)
	},
}

// newBackend builds the configured fetch strategy.
func newBackend(cfg config.Config, log *zap.Logger) (twitter.Backend, error) {
	switch cfg.Backend {
	case config.BackendAPI:
		return apireplay.New(cfg.AccountsDB, cfg.Proxy, log)
	case config.BackendBrowser:
		return browser.New(cfg.ChromeProfile, cfg.Headless, cfg.Proxy, log), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(addAccountCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
