package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xdump/internal/config"
	"xdump/internal/store"
	"xdump/internal/twitter"
)

var (
	viewLimit       int
	viewPretty      bool
	viewSummary     bool
	viewOldestFirst bool
	viewNoRetweets  bool
	viewThread      string
)

var viewCmd = &cobra.Command{
	Use:   "view [url]",
	Short: "View already-scraped tweets from the local database",
	Long: `Output stored tweets for a timeline URL as JSON (default) or plain text
(--summary). Only shows previously scraped tweets; nothing is fetched.

Examples:
  xdump view "https://x.com/someone"
  xdump view "https://x.com/someone" --limit 10 --pretty
  xdump view "https://x.com/someone" --summary --no-retweets
  xdump view "https://x.com/someone" --thread 1234567890`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().IntVarP(&viewLimit, "limit", "n", 0, "Maximum number of tweets to output (0 = all)")
	viewCmd.Flags().BoolVarP(&viewPretty, "pretty", "p", false, "Pretty-print JSON output")
	viewCmd.Flags().BoolVarP(&viewSummary, "summary", "s", false, "Output as plain text instead of JSON")
	viewCmd.Flags().BoolVar(&viewOldestFirst, "oldest-first", false, "Output oldest tweets first (default: newest first)")
	viewCmd.Flags().BoolVar(&viewNoRetweets, "no-retweets", false, "Exclude retweets from output")
	viewCmd.Flags().StringVarP(&viewThread, "thread", "t", "", "View a specific thread by conversation ID")
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var tweets []*store.StoredTweet
	if viewThread != "" {
		tweets, err = st.Thread(viewThread)
		if err != nil {
			return err
		}
		if len(tweets) == 0 {
			return fmt.Errorf("no tweets found for thread %s", viewThread)
		}
	} else {
		target, err := twitter.ParseTimelineURL(args[0])
		if err != nil {
			return err
		}
		info, err := st.GetTimeline(target.Key)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("no stored data for %s; run 'xdump scrape' first", args[0])
		}

		order := "DESC"
		if viewOldestFirst {
			order = "ASC"
		}
		tweets, err = st.TweetsForTimeline(target.Key, viewLimit, order)
		if err != nil {
			return err
		}
		if len(tweets) == 0 {
			fmt.Fprintf(os.Stderr, "No tweets stored for %s\n", args[0])
			return nil
		}
	}

	if viewNoRetweets {
		kept := tweets[:0]
		for _, t := range tweets {
			if !t.IsRetweet {
				kept = append(kept, t)
			}
		}
		tweets = kept
	}

	if !viewSummary {
		for _, t := range tweets {
			if err := printJSON(t, viewPretty); err != nil {
				return err
			}
		}
		return nil
	}
	return printSummary(tweets)
}

// printSummary renders tweets as readable plain text, grouping thread tweets
// under the conversation's root URL.
func printSummary(tweets []*store.StoredTweet) error {
	convCounts := make(map[string]int)
	for _, t := range tweets {
		if t.ConversationID != "" {
			convCounts[t.ConversationID]++
		}
	}

	var b strings.Builder
	for i, t := range tweets {
		isThread := t.ConversationID != "" && convCounts[t.ConversationID] > 1

		// Thread tweets link to the root so the reader lands on the start.
		linkID := t.ID
		if isThread {
			linkID = t.ConversationID
		}
		url := fmt.Sprintf("https://x.com/%s/status/%s", t.ScreenName, linkID)

		marker := ""
		if isThread {
			marker = "[thread] "
		}
		fmt.Fprintf(&b, "@%s @ %s - %s%s\n%s\n",
			t.ScreenName, t.CreatedAt.Format("2006-01-02 15:04"), marker, url, t.Text)

		if i < len(tweets)-1 {
			b.WriteString("\n------\n\n")
		}
	}
	_, err := os.Stdout.WriteString(b.String())
	return err
}
