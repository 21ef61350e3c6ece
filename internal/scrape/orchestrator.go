// Package scrape drives one timeline acquisition end to end: it consumes a
// backend's tweet stream, applies the cache/age/limit stop rules, persists
// new tweets incrementally, and expands detected self-threads after the
// primary stream completes.
package scrape

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xdump/internal/twitter"
)

// Store is the slice of persistence the orchestrator needs. The storage
// engine itself lives elsewhere; this package only relies on the contract.
type Store interface {
	HasTweet(id string) (bool, error)
	StoreTweet(t *twitter.Tweet, timelineKey string) (bool, error)
	UpdateTimeline(key, url, timelineType, newestID, oldestID string) error
}

// Options controls one scrape run.
type Options struct {
	// Limit caps the number of tweets fetched from the primary stream.
	// 0 means unlimited; the backend's own termination governs.
	Limit int

	// Cutoff stops the stream at the first tweet created before it.
	// The zero time disables the cutoff. While a cutoff is active, cached
	// tweets are skipped instead of stopping the stream, because cutoff
	// mode deliberately scans past the cache frontier into older history.
	Cutoff time.Time

	// ExpandThreads fetches full threads for tweets flagged as self-thread
	// continuations or thread starters after the primary stream finishes.
	ExpandThreads bool

	// Rand drives the inter-thread pacing jitter. Injectable for tests;
	// nil gets a time-seeded source.
	Rand *rand.Rand
}

// Summary reports what one run did.
type Summary struct {
	Total       int       // tweets seen on the primary stream
	New         int       // newly persisted and emitted
	Cached      int       // skipped as already stored
	FromThreads int       // emitted by thread expansion
	OldestSeen  time.Time // creation time of the oldest streamed tweet
}

// Orchestrator runs scrapes against one backend and one store.
type Orchestrator struct {
	store   Store // nil disables persistence and the cache-stop rule
	backend twitter.Backend
	opts    Options
	log     *zap.Logger
	rng     *rand.Rand

	// Inter-thread pacing bounds; shortened by tests.
	threadPauseMin time.Duration
	threadPauseMax time.Duration
}

// New builds an orchestrator. store may be nil for output-only runs.
func New(store Store, backend twitter.Backend, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		store: store, backend: backend, opts: opts, log: log, rng: rng,
		threadPauseMin: 3 * time.Second,
		threadPauseMax: 6 * time.Second,
	}
}

// Run streams the target through the stop rules, persisting and re-emitting
// each surviving tweet via emit. Tweets already emitted before a fatal error
// remain valid and persisted.
func (o *Orchestrator) Run(ctx context.Context, target twitter.Target, emit func(*twitter.Tweet) error) (*Summary, error) {
	runID := uuid.NewString()
	log := o.log.With(zap.String("run_id", runID), zap.String("target", target.Key))
	log.Info("starting scrape",
		zap.Int("limit", o.opts.Limit),
		zap.Bool("cutoff", !o.opts.Cutoff.IsZero()),
		zap.Bool("expand_threads", o.opts.ExpandThreads))

	summary := &Summary{}
	seen := make(map[string]bool)
	var threadIDs []string
	threadSet := make(map[string]bool)
	var newestID, oldestID string

	// The primary stream gets its own cancel scope so an early stop
	// releases the backend's resources without killing thread expansion.
	streamCtx, cancelStream := context.WithCancel(ctx)
	err := func() error {
		defer cancelStream()
		stream := twitter.StreamTarget(streamCtx, o.backend, target, o.opts.Limit)

		for res := range stream {
			if res.Err != nil {
				return res.Err
			}
			t := res.Tweet
			summary.Total++
			seen[t.ID] = true

			if newestID == "" || twitter.NewerID(t.ID, newestID) {
				newestID = t.ID
			}
			if oldestID == "" || twitter.OlderID(t.ID, oldestID) {
				oldestID = t.ID
			}
			summary.OldestSeen = t.CreatedAt

			// Age cutoff ends the stream without emitting this tweet.
			if !o.opts.Cutoff.IsZero() && t.CreatedAt.Before(o.opts.Cutoff) {
				log.Info("reached age cutoff", zap.String("tweet_id", t.ID))
				return nil
			}

			if o.store != nil {
				cached, err := o.store.HasTweet(t.ID)
				if err != nil {
					return fmt.Errorf("cache lookup: %w", err)
				}
				if cached {
					summary.Cached++
					if o.opts.Cutoff.IsZero() {
						// The timeline is append-only upstream, so the
						// first cached tweet marks the known frontier.
						log.Info("reached cache frontier", zap.String("tweet_id", t.ID))
						return nil
					}
					continue
				}
				if _, err := o.store.StoreTweet(t, target.Key); err != nil {
					return fmt.Errorf("store tweet: %w", err)
				}
			}

			summary.New++
			if err := emit(t); err != nil {
				return fmt.Errorf("emit tweet: %w", err)
			}

			if o.opts.ExpandThreads && t.ConversationID != "" &&
				(t.IsSelfThread || t.IsThreadStarter) && !threadSet[t.ConversationID] {
				threadSet[t.ConversationID] = true
				threadIDs = append(threadIDs, t.ConversationID)
			}
		}
		return nil
	}()
	if err != nil {
		return summary, err
	}

	if err := o.expandThreads(ctx, log, target, threadIDs, seen, summary, emit); err != nil {
		return summary, err
	}

	if o.store != nil {
		if err := o.store.UpdateTimeline(target.Key, target.URL, string(target.Type), newestID, oldestID); err != nil {
			return summary, fmt.Errorf("update timeline record: %w", err)
		}
	}

	log.Info("scrape finished",
		zap.Int("total", summary.Total),
		zap.Int("new", summary.New),
		zap.Int("cached", summary.Cached),
		zap.Int("from_threads", summary.FromThreads))
	return summary, nil
}

// expandThreads fetches each recorded conversation sequentially with
// randomized pacing. A failed thread fetch is logged and skipped; it never
// fails the run.
func (o *Orchestrator) expandThreads(ctx context.Context, log *zap.Logger, target twitter.Target,
	threadIDs []string, seen map[string]bool, summary *Summary, emit func(*twitter.Tweet) error) error {

	if len(threadIDs) == 0 {
		return nil
	}
	log.Info("expanding threads", zap.Int("count", len(threadIDs)))

	for i, convID := range threadIDs {
		if i > 0 {
			if err := o.pause(ctx, o.threadPauseMin, o.threadPauseMax); err != nil {
				return err
			}
		}

		stream := o.backend.Thread(ctx, convID, 0)
		for res := range stream {
			if res.Err != nil {
				log.Warn("thread expansion failed",
					zap.String("conversation_id", convID), zap.Error(res.Err))
				break
			}
			t := res.Tweet
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			if o.store != nil {
				if _, err := o.store.StoreTweet(t, target.Key); err != nil {
					return fmt.Errorf("store thread tweet: %w", err)
				}
			}
			summary.FromThreads++
			if err := emit(t); err != nil {
				return fmt.Errorf("emit thread tweet: %w", err)
			}
		}
	}
	return nil
}

// pause sleeps a random interval in [min, max), honoring cancellation.
func (o *Orchestrator) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(o.rng.Int63n(int64(max - min)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
