package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"xdump/internal/config"
	"xdump/internal/scrape"
	"xdump/internal/store"
	"xdump/internal/twitter"
)

var (
	scrapeLimit         int
	scrapeOld           string
	scrapeExpandThreads bool
	scrapePretty        bool
	scrapeNoStore       bool
	scrapeQuiet         bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [url]",
	Short: "Scrape tweets from a timeline URL",
	Long: `Scrape tweets from an X/Twitter timeline URL, store them locally, and
output each one as JSON on stdout.

Tweets are cached, so repeat runs only fetch what is new: without --old the
scrape stops at the first already-stored tweet. With --old it scans past
cached tweets into older history, up to the given age.

Examples:
  xdump scrape "https://x.com/someone"
  xdump scrape "https://x.com/i/lists/123456" --limit 100
  xdump scrape "https://x.com/someone" --old 7d --expand-threads`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().IntVarP(&scrapeLimit, "limit", "n", 0, "Maximum number of tweets to scrape (0 = no limit)")
	scrapeCmd.Flags().StringVar(&scrapeOld, "old", "", "Fetch older tweets up to this age (e.g. '7d', '24h', '30m')")
	scrapeCmd.Flags().BoolVarP(&scrapeExpandThreads, "expand-threads", "e", false, "Fetch full threads for detected self-threads")
	scrapeCmd.Flags().BoolVarP(&scrapePretty, "pretty", "p", false, "Pretty-print JSON output")
	scrapeCmd.Flags().BoolVar(&scrapeNoStore, "no-store", false, "Don't store tweets to the database (output only)")
	scrapeCmd.Flags().BoolVarP(&scrapeQuiet, "quiet", "q", false, "Suppress progress messages (only output JSON)")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	target, err := twitter.ParseTimelineURL(args[0])
	if err != nil {
		return err
	}

	opts := scrape.Options{
		Limit:         scrapeLimit,
		ExpandThreads: scrapeExpandThreads,
	}
	if scrapeOld != "" {
		age, err := scrape.ParseAge(scrapeOld)
		if err != nil {
			return err
		}
		opts.Cutoff = time.Now().UTC().Add(-age)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	var orch *scrape.Orchestrator
	if scrapeNoStore {
		orch = scrape.New(nil, backend, opts, logger)
	} else {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()
		orch = scrape.New(st, backend, opts, logger)
	}

	emitted := 0
	emit := func(t *twitter.Tweet) error {
		if err := printJSON(t, scrapePretty); err != nil {
			return err
		}
		emitted++
		if !scrapeQuiet && emitted%20 == 0 {
			fmt.Fprintf(os.Stderr, "Fetched %d tweets...\n", emitted)
		}
		return nil
	}

	sum, err := orch.Run(ctx, target, emit)
	if err != nil {
		return scrapeError(cfg, err)
	}

	if !scrapeQuiet {
		line := fmt.Sprintf("Scraped %d tweets: %d new, %d cached", sum.Total, sum.New, sum.Cached)
		if sum.FromThreads > 0 {
			line += fmt.Sprintf(", %d from threads", sum.FromThreads)
		}
		if !sum.OldestSeen.IsZero() {
			age := time.Since(sum.OldestSeen)
			line += fmt.Sprintf(" (oldest: %dd ago)", int(age.Hours()/24))
		}
		fmt.Fprintln(os.Stderr, line)
	}
	return nil
}

// scrapeError turns backend failures into actionable messages.
func scrapeError(cfg config.Config, err error) error {
	switch {
	case errors.Is(err, twitter.ErrLoginRequired):
		if cfg.Backend == config.BackendBrowser {
			return fmt.Errorf("%w\nlog in first: run 'xdump login' and sign in to x.com", err)
		}
		return fmt.Errorf("%w\nrefresh the session: run 'xdump add-account' with fresh cookies", err)
	case errors.Is(err, twitter.ErrUserNotFound):
		return fmt.Errorf("%w\ncheck the handle in the URL", err)
	default:
		return err
	}
}

// printJSON writes one object as a JSON line on stdout.
func printJSON(v interface{}, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = sonic.MarshalIndent(v, "", "  ")
	} else {
		data, err = sonic.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode tweet: %w", err)
	}
	data = append(data, '\n')
	_, err = os.Stdout.Write(data)
	return err
}
