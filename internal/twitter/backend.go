package twitter

import "context"

// Result couples one streamed tweet with a terminal error. A backend sends a
// Result with Err set as the final item before closing the channel; per-item
// parse failures never appear here, they are logged and dropped inside the
// backend.
type Result struct {
	Tweet *Tweet
	Err   error
}

// Backend is the capability set every fetch strategy implements. Callers
// depend only on this interface, never on a concrete backend.
//
// Timeline streams are newest-first and finite when limit > 0; with limit 0
// they run until the backend detects end-of-timeline. Thread streams are
// oldest-first and scoped to tweets by the thread's original author.
//
// All streams honor ctx cancellation between items and release their
// underlying resources (pages, sessions) on early termination as well as on
// normal completion.
type Backend interface {
	// ResolveUserID resolves a handle to the account's numeric id string.
	// Results are memoized per-process keyed by lowercased handle. Fails
	// with ErrUserNotFound when the platform reports no such account.
	ResolveUserID(ctx context.Context, screenName string) (string, error)

	// ListTimeline streams a list timeline, newest first.
	ListTimeline(ctx context.Context, listID string, limit int) <-chan Result

	// UserTimeline streams a user's timeline, newest first. The handle is
	// resolved internally.
	UserTimeline(ctx context.Context, screenName string, limit int) <-chan Result

	// Thread streams a conversation thread in chronological order,
	// filtered to the original author's tweets.
	Thread(ctx context.Context, tweetID string, limit int) <-chan Result

	// Close releases the backend's long-lived resources.
	Close() error
}

// StreamTarget dispatches a parsed target to the matching backend capability.
func StreamTarget(ctx context.Context, b Backend, target Target, limit int) <-chan Result {
	switch target.Type {
	case TimelineList:
		return b.ListTimeline(ctx, target.ListID, limit)
	case TimelineUser:
		return b.UserTimeline(ctx, target.ScreenName, limit)
	case TimelineThread:
		return b.Thread(ctx, target.TweetID, limit)
	default:
		out := make(chan Result, 1)
		out <- Result{Err: ErrUnsupportedURL}
		close(out)
		return out
	}
}
