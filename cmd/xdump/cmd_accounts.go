package main

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"xdump/internal/config"
	"xdump/internal/twitter/apireplay"
)

var (
	addAccountUsername string
	addAccountCookies  string
)

var addAccountCmd = &cobra.Command{
	Use:   "add-account",
	Short: "Add an X/Twitter account to the api backend's pool",
	Long: `Add an account using browser cookies.

Get the cookies from your browser after logging in to X:
  1. Open DevTools (F12) -> Application -> Cookies -> x.com
  2. Copy the 'auth_token' and 'ct0' values
  3. Pass them as JSON: {"auth_token": "xxx", "ct0": "yyy"}`,
	RunE: runAddAccount,
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List configured accounts and their status",
	RunE:  runAccounts,
}

func init() {
	addAccountCmd.Flags().StringVarP(&addAccountUsername, "username", "u", "", "X/Twitter username (required)")
	addAccountCmd.Flags().StringVarP(&addAccountCookies, "cookies", "c", "", `Cookies as JSON: {"auth_token": "xxx", "ct0": "yyy"} (required)`)
	addAccountCmd.MarkFlagRequired("username")
	addAccountCmd.MarkFlagRequired("cookies")
}

func runAddAccount(cmd *cobra.Command, args []string) error {
	var cookies struct {
		AuthToken string `json:"auth_token"`
		CT0       string `json:"ct0"`
	}
	if err := sonic.Unmarshal([]byte(addAccountCookies), &cookies); err != nil {
		return fmt.Errorf("invalid cookies JSON: %w", err)
	}
	if cookies.AuthToken == "" || cookies.CT0 == "" {
		return fmt.Errorf("cookies must contain 'auth_token' and 'ct0' keys")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := apireplay.OpenPool(cfg.AccountsDB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Add(addAccountUsername, cookies.AuthToken, cookies.CT0); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Account '%s' added successfully!\n", addAccountUsername)
	return nil
}

func runAccounts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := apireplay.OpenPool(cfg.AccountsDB)
	if err != nil {
		return err
	}
	defer pool.Close()

	stats, err := pool.Stats()
	if err != nil {
		return err
	}
	if stats.Total == 0 {
		fmt.Println("No accounts configured. Run 'xdump add-account' first.")
		return nil
	}

	fmt.Printf("Total: %d | Active: %d | Inactive: %d\n\n", stats.Total, stats.Active, stats.Inactive)

	accounts, err := pool.All()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		status := "active"
		if !a.Active {
			msg := a.ErrorMsg
			if msg == "" {
				msg = "unknown"
			}
			status = fmt.Sprintf("inactive (%s)", msg)
		}
		fmt.Printf("  @%s: %s\n", a.Username, status)
	}
	return nil
}
