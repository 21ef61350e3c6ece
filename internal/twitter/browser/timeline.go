package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdump/internal/twitter"
	"xdump/internal/twitter/graphql"
)

// The driver gives up after this many scroll cycles with no new tweets;
// a slow connection can need several before the next page renders.
const maxEmptyCycles = 5

// ListTimeline streams a list's tweets as the page loads them, newest first.
func (b *Backend) ListTimeline(ctx context.Context, listID string, limit int) <-chan twitter.Result {
	url := "https://x.com/i/lists/" + listID
	return b.scrapeTimeline(ctx, url, graphql.ListEndpoints, limit)
}

// UserTimeline streams a user's tweets as the page loads them, newest first.
func (b *Backend) UserTimeline(ctx context.Context, screenName string, limit int) <-chan twitter.Result {
	return b.scrapeTimeline(ctx, profileURL(screenName), graphql.UserEndpoints, limit)
}

func (b *Backend) scrapeTimeline(ctx context.Context, url string, endpoints []string, limit int) <-chan twitter.Result {
	out := make(chan twitter.Result)
	go func() {
		defer close(out)
		if err := b.runTimeline(ctx, url, endpoints, limit, out); err != nil {
			deliver(ctx, out, twitter.Result{Err: err})
		}
	}()
	return out
}

// runTimeline opens a page on the timeline, lets the web client request
// pages while the driver scrolls, and emits every tweet the observer catches.
// A nil queue item is the end-of-timeline signal: the API answered with a
// well-formed page holding zero tweets.
func (b *Backend) runTimeline(ctx context.Context, url string, endpoints []string, limit int, out chan<- twitter.Result) error {
	browser, err := b.ensureBrowser()
	if err != nil {
		return err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	obs := newObserver(ctx, page, endpoints, b.log)
	defer obs.stop()

	queue := make(chan *twitter.Tweet, 256)

	// The driver owns the run's lifetime: when it returns, its cancel
	// releases the intake goroutine.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Intake: decode observed bodies into the queue.
	g.Go(func() error {
		for {
			select {
			case body := <-obs.bodies:
				tl, err := graphql.ExtractTimeline(body)
				if err != nil {
					// Same endpoint, unrecognized payload. Skip it; the
					// timeline only ends on an explicit empty page.
					b.log.Debug("skipping unextractable response", zap.Error(err))
					continue
				}
				if len(tl.Tweets) == 0 {
					select {
					case queue <- nil:
					case <-gctx.Done():
						return nil
					}
					continue
				}
				for _, t := range tl.Tweets {
					select {
					case queue <- t:
					case <-gctx.Done():
						return nil
					}
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	// Driver: navigate, then alternate between draining and scrolling.
	var driverErr error
	g.Go(func() error {
		defer cancel()
		driverErr = b.driveTimeline(gctx, page, url, limit, queue, out)
		return nil
	})

	if err := g.Wait(); err != nil && driverErr == nil {
		driverErr = err
	}
	obs.stop()
	return driverErr
}

func (b *Backend) driveTimeline(ctx context.Context, page *rod.Page, url string, limit int, queue <-chan *twitter.Tweet, out chan<- twitter.Result) error {
	if err := page.Context(ctx).Timeout(navigateTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate to timeline: %w", err)
	}

	// The first matching response proves the session works. Without one,
	// the most likely cause is a login wall.
	first, err := waitFirst(ctx, queue, firstResponseTimeout)
	if err != nil {
		if errors.Is(err, twitter.ErrTimeout) && loginRequired(page) {
			return fmt.Errorf("%w: log in with the browser profile at %s", twitter.ErrLoginRequired, b.profileDir)
		}
		return fmt.Errorf("no timeline response: %w", err)
	}
	if loginRequired(page) {
		return fmt.Errorf("%w: log in with the browser profile at %s", twitter.ErrLoginRequired, b.profileDir)
	}

	seen := make(map[string]bool)
	sent := 0
	endOfTimeline := false
	emit := func(t *twitter.Tweet) bool {
		if t == nil {
			endOfTimeline = true
			return true
		}
		if seen[t.ID] {
			return true
		}
		seen[t.ID] = true
		if !deliver(ctx, out, twitter.Result{Tweet: t}) {
			return false
		}
		sent++
		return true
	}

	if !emit(first) {
		return nil
	}

	emptyCycles := 0
	for {
		if limit > 0 && sent >= limit {
			return nil
		}

		drained := 0
	drain:
		for {
			select {
			case t := <-queue:
				if !emit(t) {
					return nil
				}
				drained++
				if limit > 0 && sent >= limit {
					return nil
				}
			default:
				break drain
			}
		}

		if endOfTimeline {
			b.log.Debug("end of timeline", zap.Int("tweets", sent))
			return nil
		}

		if drained > 0 {
			emptyCycles = 0
		} else {
			emptyCycles++
			if emptyCycles >= maxEmptyCycles {
				b.log.Debug("timeline stalled", zap.Int("tweets", sent))
				return nil
			}
		}

		if err := scrollToBottom(page.Context(ctx)); err != nil {
			return fmt.Errorf("scroll timeline: %w", err)
		}
		if err := b.pause(ctx, 2500*time.Millisecond, 4500*time.Millisecond); err != nil {
			return nil
		}
	}
}

// waitFirst blocks for the first queued item, up to timeout.
func waitFirst(ctx context.Context, queue <-chan *twitter.Tweet, timeout time.Duration) (*twitter.Tweet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-queue:
		return t, nil
	case <-timer.C:
		return nil, twitter.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Thread fetches one conversation by opening the tweet's permalink and
// reading the TweetDetail response, then narrows it to the author's own
// tweets in chronological order.
func (b *Backend) Thread(ctx context.Context, tweetID string, limit int) <-chan twitter.Result {
	out := make(chan twitter.Result)
	go func() {
		defer close(out)
		tweets, err := b.fetchThread(ctx, tweetID)
		if err != nil {
			deliver(ctx, out, twitter.Result{Err: err})
			return
		}
		for i, t := range tweets {
			if limit > 0 && i >= limit {
				return
			}
			if !deliver(ctx, out, twitter.Result{Tweet: t}) {
				return
			}
		}
	}()
	return out
}

func (b *Backend) fetchThread(ctx context.Context, tweetID string) ([]*twitter.Tweet, error) {
	browser, err := b.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	obs := newObserver(ctx, page, graphql.ThreadEndpoints, b.log)
	defer obs.stop()

	url := "https://x.com/i/status/" + tweetID
	if err := page.Context(ctx).Timeout(navigateTimeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate to tweet: %w", err)
	}

	body, err := obs.firstBody(ctx, firstResponseTimeout)
	if err != nil {
		return nil, fmt.Errorf("no conversation response for %s: %w", tweetID, err)
	}
	tweets, err := graphql.ExtractThread(body)
	if err != nil {
		return nil, err
	}

	// Late responses occasionally carry the rest of a long conversation.
	if err := b.pause(ctx, 2*time.Second, 3*time.Second); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(tweets))
	for _, t := range tweets {
		seen[t.ID] = true
	}
	for {
		select {
		case extra := <-obs.bodies:
			more, err := graphql.ExtractThread(extra)
			if err != nil {
				continue
			}
			for _, t := range more {
				if !seen[t.ID] {
					seen[t.ID] = true
					tweets = append(tweets, t)
				}
			}
			continue
		default:
		}
		break
	}

	return twitter.NarrowThread(tweets), nil
}
