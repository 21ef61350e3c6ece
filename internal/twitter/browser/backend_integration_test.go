//go:build integration

package browser

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// Requires a browser binary and a profile already logged in to x.com.
// Run with: go test -tags integration ./internal/twitter/browser/ -run Integration
func TestUserTimeline_Integration(t *testing.T) {
	b := New(t.TempDir()+"/profile", true, "", zap.NewNop())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	count := 0
	for res := range b.UserTimeline(ctx, "x", 5) {
		if res.Err != nil {
			t.Fatalf("stream: %v", res.Err)
		}
		if res.Tweet.ID == "" || res.Tweet.ScreenName == "" {
			t.Errorf("incomplete tweet: %+v", res.Tweet)
		}
		count++
	}
	if count == 0 {
		t.Error("no tweets streamed")
	}
}
