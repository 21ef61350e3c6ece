package apireplay

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"xdump/internal/twitter"
	"xdump/internal/twitter/graphql"
)

// Backend implements twitter.Backend over the GraphQL replay client.
type Backend struct {
	client *Client
	pool   *Pool
	log    *zap.Logger

	mu      sync.Mutex
	userIDs map[string]string // lowercased handle -> numeric id
}

// New opens the account pool at dbPath and builds the backend around it.
func New(dbPath, proxy string, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := OpenPool(dbPath)
	if err != nil {
		return nil, err
	}
	client, err := NewClient(pool, proxy, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{
		client:  client,
		pool:    pool,
		log:     log,
		userIDs: make(map[string]string),
	}, nil
}

// ResolveUserID maps a handle to its numeric account id, memoizing the answer
// for the backend's lifetime.
func (b *Backend) ResolveUserID(ctx context.Context, screenName string) (string, error) {
	key := strings.ToLower(screenName)

	b.mu.Lock()
	if id, ok := b.userIDs[key]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	id, err := b.client.UserByScreenName(ctx, screenName)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.userIDs[key] = id
	b.mu.Unlock()
	return id, nil
}

// ListTimeline streams a list's tweets newest-first, paging through cursors
// until the timeline ends, the limit is hit, or the context is done.
func (b *Backend) ListTimeline(ctx context.Context, listID string, limit int) <-chan twitter.Result {
	return b.paged(ctx, limit, func(cursor string) (*graphql.TimelinePage, error) {
		return b.client.ListTimelinePage(ctx, listID, cursor)
	})
}

// UserTimeline streams a user's tweets newest-first. The handle is resolved
// to a numeric id before the first page.
func (b *Backend) UserTimeline(ctx context.Context, screenName string, limit int) <-chan twitter.Result {
	out := make(chan twitter.Result)
	go func() {
		defer close(out)
		userID, err := b.ResolveUserID(ctx, screenName)
		if err != nil {
			deliver(ctx, out, twitter.Result{Err: err})
			return
		}
		pages := b.paged(ctx, limit, func(cursor string) (*graphql.TimelinePage, error) {
			return b.client.UserTimelinePage(ctx, userID, cursor)
		})
		for res := range pages {
			if !deliver(ctx, out, res) {
				return
			}
		}
	}()
	return out
}

// Thread streams one conversation's tweets, narrowed to the focal author and
// oldest first. Conversations fit in a single TweetDetail response, so there
// is no paging; the limit applies after narrowing.
func (b *Backend) Thread(ctx context.Context, tweetID string, limit int) <-chan twitter.Result {
	out := make(chan twitter.Result)
	go func() {
		defer close(out)
		tweets, err := b.client.TweetDetail(ctx, tweetID)
		if err != nil {
			deliver(ctx, out, twitter.Result{Err: err})
			return
		}
		for i, t := range twitter.NarrowThread(tweets) {
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

// Close releases the account pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}

// paged drives a cursor loop over fetch, deduplicating across pages. The
// stream ends at the first empty page, a repeated cursor, or a page that
// yields nothing new.
func (b *Backend) paged(ctx context.Context, limit int, fetch func(cursor string) (*graphql.TimelinePage, error)) <-chan twitter.Result {
	out := make(chan twitter.Result)
	go func() {
		defer close(out)
		seen := make(map[string]bool)
		cursor := ""
		sent := 0
		for {
			page, err := fetch(cursor)
			if err != nil {
				deliver(ctx, out, twitter.Result{Err: err})
				return
			}

			fresh := 0
			for _, t := range page.Tweets {
				if seen[t.ID] {
					continue
				}
				seen[t.ID] = true
				fresh++
				if !deliver(ctx, out, twitter.Result{Tweet: t}) {
					return
				}
				sent++
				if limit > 0 && sent >= limit {
					return
				}
			}

			if page.BottomCursor == "" || page.BottomCursor == cursor || fresh == 0 {
				return
			}
			cursor = page.BottomCursor
		}
	}()
	return out
}

// deliver sends one result unless the context ends first.
func deliver(ctx context.Context, out chan<- twitter.Result, res twitter.Result) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
