package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"xdump/internal/twitter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend streams canned tweets, honoring ctx like a real backend.
type fakeBackend struct {
	timeline []*twitter.Tweet
	threads  map[string][]*twitter.Tweet
	err      error // terminal error appended after the timeline
}

func (f *fakeBackend) ResolveUserID(ctx context.Context, screenName string) (string, error) {
	return "10", nil
}

func (f *fakeBackend) stream(ctx context.Context, tweets []*twitter.Tweet, limit int, err error) <-chan twitter.Result {
	out := make(chan twitter.Result)
	go func() {
		defer close(out)
		sent := 0
		for _, t := range tweets {
			if limit > 0 && sent >= limit {
				return
			}
			select {
			case out <- twitter.Result{Tweet: t}:
				sent++
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case out <- twitter.Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func (f *fakeBackend) ListTimeline(ctx context.Context, listID string, limit int) <-chan twitter.Result {
	return f.stream(ctx, f.timeline, limit, f.err)
}

func (f *fakeBackend) UserTimeline(ctx context.Context, screenName string, limit int) <-chan twitter.Result {
	return f.stream(ctx, f.timeline, limit, f.err)
}

func (f *fakeBackend) Thread(ctx context.Context, tweetID string, limit int) <-chan twitter.Result {
	return f.stream(ctx, f.threads[tweetID], limit, nil)
}

func (f *fakeBackend) Close() error { return nil }

// memStore records calls; HasTweet answers from the preloaded set.
type memStore struct {
	existing map[string]bool
	stored   []string
	updates  []string // "newest/oldest" per UpdateTimeline call
}

func newMemStore(existing ...string) *memStore {
	m := &memStore{existing: make(map[string]bool)}
	for _, id := range existing {
		m.existing[id] = true
	}
	return m
}

func (m *memStore) HasTweet(id string) (bool, error) { return m.existing[id], nil }

func (m *memStore) StoreTweet(t *twitter.Tweet, key string) (bool, error) {
	if m.existing[t.ID] {
		return false, nil
	}
	m.existing[t.ID] = true
	m.stored = append(m.stored, t.ID)
	return true, nil
}

func (m *memStore) UpdateTimeline(key, url, timelineType, newestID, oldestID string) error {
	m.updates = append(m.updates, newestID+"/"+oldestID)
	return nil
}

func tweetAt(id string, age time.Duration) *twitter.Tweet {
	return &twitter.Tweet{
		ID:         id,
		CreatedAt:  time.Now().UTC().Add(-age),
		UserID:     "10",
		ScreenName: "alice",
		Text:       "tweet " + id,
	}
}

func userTarget() twitter.Target {
	t, _ := twitter.ParseTimelineURL("https://x.com/alice")
	return t
}

func collect() (func(*twitter.Tweet) error, *[]string) {
	var got []string
	return func(t *twitter.Tweet) error {
		got = append(got, t.ID)
		return nil
	}, &got
}

func TestRun_CacheStopLaw(t *testing.T) {
	// Store already holds T; a stream [A, B, T, C] must emit exactly [A, B].
	backend := &fakeBackend{timeline: []*twitter.Tweet{
		tweetAt("400", time.Hour),
		tweetAt("300", 2*time.Hour),
		tweetAt("200", 3*time.Hour), // T, cached
		tweetAt("100", 4*time.Hour),
	}}
	st := newMemStore("200")

	emit, got := collect()
	sum, err := New(st, backend, Options{}, nil).Run(context.Background(), userTarget(), emit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff([]string{"400", "300"}, *got); diff != "" {
		t.Errorf("emitted ids mismatch (-want +got):\n%s", diff)
	}
	if sum.New != 2 || sum.Cached != 1 {
		t.Errorf("summary = %+v, want New=2 Cached=1", sum)
	}
}

func TestRun_AgeCutoffLaw(t *testing.T) {
	// Cutoff 2h against [A(1h), B(3h), C(5h)]: emit [A], stop at B unemitted.
	backend := &fakeBackend{timeline: []*twitter.Tweet{
		tweetAt("300", time.Hour),
		tweetAt("200", 3*time.Hour),
		tweetAt("100", 5*time.Hour),
	}}
	st := newMemStore()

	emit, got := collect()
	opts := Options{Cutoff: time.Now().UTC().Add(-2 * time.Hour)}
	_, err := New(st, backend, opts, nil).Run(context.Background(), userTarget(), emit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff([]string{"300"}, *got); diff != "" {
		t.Errorf("emitted ids mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CutoffSkipsCachedWithoutStopping(t *testing.T) {
	// With a cutoff active, a cache hit is skipped, not a stop signal.
	backend := &fakeBackend{timeline: []*twitter.Tweet{
		tweetAt("300", time.Hour),
		tweetAt("200", 2*time.Hour), // cached
		tweetAt("100", 3*time.Hour),
	}}
	st := newMemStore("200")

	emit, got := collect()
	opts := Options{Cutoff: time.Now().UTC().Add(-24 * time.Hour)}
	sum, err := New(st, backend, opts, nil).Run(context.Background(), userTarget(), emit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff([]string{"300", "100"}, *got); diff != "" {
		t.Errorf("emitted ids mismatch (-want +got):\n%s", diff)
	}
	if sum.Cached != 1 {
		t.Errorf("cached = %d, want 1", sum.Cached)
	}
}

func TestRun_LimitRespected(t *testing.T) {
	backend := &fakeBackend{timeline: []*twitter.Tweet{
		tweetAt("300", time.Hour),
		tweetAt("200", 2*time.Hour),
		tweetAt("100", 3*time.Hour),
	}}

	emit, got := collect()
	_, err := New(newMemStore(), backend, Options{Limit: 2}, nil).Run(context.Background(), userTarget(), emit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(*got) != 2 {
		t.Errorf("emitted %d tweets, want 2", len(*got))
	}
}

func TestRun_ThreadExpansion(t *testing.T) {
	starter := tweetAt("300", time.Hour)
	starter.ConversationID = "300"
	starter.IsThreadStarter = true

	backend := &fakeBackend{
		timeline: []*twitter.Tweet{starter},
		threads: map[string][]*twitter.Tweet{
			"300": {
				tweetAt("300", time.Hour), // already seen in primary stream
				tweetAt("301", 50 * time.Minute),
				tweetAt("302", 40 * time.Minute),
			},
		},
	}
	st := newMemStore()

	emit, got := collect()
	o := New(st, backend, Options{ExpandThreads: true}, nil)
	o.threadPauseMin, o.threadPauseMax = time.Millisecond, time.Millisecond

	sum, err := o.Run(context.Background(), userTarget(), emit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff([]string{"300", "301", "302"}, *got); diff != "" {
		t.Errorf("emitted ids mismatch (-want +got):\n%s", diff)
	}
	if sum.FromThreads != 2 {
		t.Errorf("from_threads = %d, want 2 (primary-stream tweet deduped)", sum.FromThreads)
	}
}

func TestRun_UpdatesTimelineRecordEvenWhenEmpty(t *testing.T) {
	backend := &fakeBackend{}
	st := newMemStore()

	emit, _ := collect()
	_, err := New(st, backend, Options{}, nil).Run(context.Background(), userTarget(), emit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.updates) != 1 {
		t.Fatalf("UpdateTimeline called %d times, want 1", len(st.updates))
	}
	if st.updates[0] != "/" {
		t.Errorf("bounds = %q, want empty bounds", st.updates[0])
	}
}

func TestRun_BoundsTracked(t *testing.T) {
	backend := &fakeBackend{timeline: []*twitter.Tweet{
		tweetAt("100000000000000001", time.Hour),
		tweetAt("99999999999999999", 2*time.Hour),
	}}
	st := newMemStore()

	emit, _ := collect()
	if _, err := New(st, backend, Options{}, nil).Run(context.Background(), userTarget(), emit); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "100000000000000001/99999999999999999"
	if st.updates[0] != want {
		t.Errorf("bounds = %q, want %q (big-integer ordering)", st.updates[0], want)
	}
}

func TestRun_FatalStreamErrorPropagates(t *testing.T) {
	backend := &fakeBackend{
		timeline: []*twitter.Tweet{tweetAt("300", time.Hour)},
		err:      twitter.ErrLoginRequired,
	}
	st := newMemStore()

	emit, got := collect()
	_, err := New(st, backend, Options{}, nil).Run(context.Background(), userTarget(), emit)
	if !errors.Is(err, twitter.ErrLoginRequired) {
		t.Fatalf("err = %v, want ErrLoginRequired", err)
	}
	// Tweets emitted before the failure remain valid and persisted.
	if diff := cmp.Diff([]string{"300"}, *got); diff != "" {
		t.Errorf("partial results mismatch (-want +got):\n%s", diff)
	}
	if len(st.stored) != 1 {
		t.Errorf("stored %d tweets, want 1", len(st.stored))
	}
}

func TestRun_NoStore(t *testing.T) {
	backend := &fakeBackend{timeline: []*twitter.Tweet{tweetAt("300", time.Hour)}}

	emit, got := collect()
	if _, err := New(nil, backend, Options{}, nil).Run(context.Background(), userTarget(), emit); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(*got) != 1 {
		t.Errorf("emitted %d tweets, want 1", len(*got))
	}
}
