package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xdump/internal/config"
	"xdump/internal/twitter/browser"
)

var loginURL string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a browser for manual login (browser backend only)",
	Long: `Open a browser window on the persistent profile so you can sign in to
X/Twitter. Close the window when done; the session is saved in the profile
and reused by subsequent scrapes.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginURL, "url", "u", "https://x.com", "URL to open for login")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Backend != config.BackendBrowser {
		return fmt.Errorf("login requires the browser backend; set XDUMP_BACKEND=browser and retry")
	}

	fmt.Fprintf(os.Stderr, "Opening browser with profile: %s\n", cfg.ChromeProfile)
	fmt.Fprintln(os.Stderr, "Log in to X/Twitter, then close the browser window when done.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Always headed: the user has to see the window to sign in.
	b := browser.New(cfg.ChromeProfile, false, cfg.Proxy, logger)
	defer b.Close()

	if err := b.Login(ctx, loginURL); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	fmt.Fprintln(os.Stderr, "Session saved.")
	return nil
}
