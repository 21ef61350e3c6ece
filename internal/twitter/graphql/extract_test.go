package graphql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdump/internal/twitter"
)

func tweetResult(id, userID, screenName, createdAt string, extra string) string {
	if extra != "" {
		extra = "," + extra
	}
	return fmt.Sprintf(`{
		"__typename": "Tweet",
		"rest_id": "%s",
		"core": {"user_results": {"result": {"rest_id": "%s", "core": {"screen_name": "%s"}}}},
		"legacy": {
			"id_str": "%s",
			"created_at": "%s",
			"full_text": "tweet %s",
			"conversation_id_str": "%s"
			%s
		}
	}`, id, userID, screenName, id, createdAt, id, id, extra)
}

func itemContent(result string) string {
	return fmt.Sprintf(`{"itemType": "TimelineTweet", "tweet_results": {"result": %s}}`, result)
}

func singleEntry(entryID, result string) string {
	return fmt.Sprintf(`{"entryId": "%s", "content": {"entryType": "TimelineTimelineItem", "itemContent": %s}}`, entryID, itemContent(result))
}

func listTimelineBody(entries ...string) []byte {
	return wrapInstructions(`"list": {"tweets_timeline": {"timeline": {"instructions": [%s]}}}`, entries)
}

func userTimelineV2Body(entries ...string) []byte {
	return wrapInstructions(`"user": {"result": {"timeline_v2": {"timeline": {"instructions": [%s]}}}}`, entries)
}

func userTimelineNestedBody(entries ...string) []byte {
	return wrapInstructions(`"user": {"result": {"timeline": {"timeline": {"instructions": [%s]}}}}`, entries)
}

func wrapInstructions(dataShape string, entries []string) []byte {
	joined := ""
	for i, e := range entries {
		if i > 0 {
			joined += ","
		}
		joined += e
	}
	inst := fmt.Sprintf(`{"type": "TimelineAddEntries", "entries": [%s]}`, joined)
	return []byte(fmt.Sprintf(`{"data": {%s}}`, fmt.Sprintf(dataShape, inst)))
}

const rubyTime = "Fri Nov 22 20:08:47 +0000 2024"

func TestExtractTimeline_AllShapes(t *testing.T) {
	entry := singleEntry("tweet-1", tweetResult("1", "10", "alice", rubyTime, ""))

	bodies := map[string][]byte{
		"list":        listTimelineBody(entry),
		"user_v2":     userTimelineV2Body(entry),
		"user_nested": userTimelineNestedBody(entry),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			page, err := ExtractTimeline(body)
			require.NoError(t, err)
			require.Len(t, page.Tweets, 1)
			got := page.Tweets[0]
			assert.Equal(t, "1", got.ID)
			assert.Equal(t, "10", got.UserID)
			assert.Equal(t, "alice", got.ScreenName)
			assert.Equal(t, "tweet 1", got.Text)
			assert.Equal(t, 2024, got.CreatedAt.Year())
			assert.NotEmpty(t, got.Raw)
		})
	}
}

func TestExtractTimeline_NoShapeMatched(t *testing.T) {
	_, err := ExtractTimeline([]byte(`{"data": {"something_else": {}}}`))
	assert.ErrorIs(t, err, twitter.ErrMalformedResponse)

	_, err = ExtractTimeline([]byte(`not json`))
	assert.ErrorIs(t, err, twitter.ErrMalformedResponse)
}

func TestExtractTimeline_EmptyIsNotMalformed(t *testing.T) {
	// A matched shape with zero entries is a valid empty page, which the
	// backends treat as end-of-timeline.
	page, err := ExtractTimeline(listTimelineBody())
	require.NoError(t, err)
	assert.Empty(t, page.Tweets)
}

func TestExtractTimeline_SkipsCursorAndTombstone(t *testing.T) {
	cursor := `{"entryId": "cursor-bottom-99", "content": {"entryType": "TimelineTimelineCursor", "value": "next-page-cursor"}}`
	tombstone := `{"entryId": "tweet-2", "content": {"entryType": "TimelineTimelineItem", "itemContent": {"itemType": "TimelineTweet", "tweet_results": {"result": {"__typename": "TweetTombstone"}}}}}`
	entry := singleEntry("tweet-1", tweetResult("1", "10", "alice", rubyTime, ""))

	page, err := ExtractTimeline(listTimelineBody(cursor, tombstone, entry))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 1)
	assert.Equal(t, "1", page.Tweets[0].ID)
	assert.Equal(t, "next-page-cursor", page.BottomCursor)
}

func TestExtractTimeline_VisibilityWrapper(t *testing.T) {
	wrapped := fmt.Sprintf(`{"__typename": "TweetWithVisibilityResults", "tweet": %s}`,
		tweetResult("7", "10", "alice", rubyTime, ""))
	page, err := ExtractTimeline(listTimelineBody(singleEntry("tweet-7", wrapped)))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 1)
	assert.Equal(t, "7", page.Tweets[0].ID)
}

func TestExtractTimeline_ModuleMarksThreadStarter(t *testing.T) {
	x := itemContent(tweetResult("100", "10", "alice", "Fri Nov 22 20:00:00 +0000 2024", ""))
	y := itemContent(tweetResult("101", "10", "alice", "Fri Nov 22 20:05:00 +0000 2024", ""))
	module := fmt.Sprintf(`{"entryId": "conversation-100", "content": {
		"entryType": "TimelineTimelineModule",
		"items": [{"item": {"itemContent": %s}}, {"item": {"itemContent": %s}}]
	}}`, x, y)

	page, err := ExtractTimeline(userTimelineV2Body(module))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 2)
	assert.True(t, page.Tweets[0].IsThreadStarter, "first same-author module tweet is the thread starter")
	assert.False(t, page.Tweets[1].IsThreadStarter)
}

func TestExtractTimeline_ModuleMixedAuthorsNotAThread(t *testing.T) {
	a := itemContent(tweetResult("100", "10", "alice", rubyTime, ""))
	b := itemContent(tweetResult("101", "20", "bob", rubyTime, ""))
	module := fmt.Sprintf(`{"entryId": "conversation-100", "content": {
		"entryType": "TimelineTimelineModule",
		"items": [{"item": {"itemContent": %s}}, {"item": {"itemContent": %s}}]
	}}`, a, b)

	page, err := ExtractTimeline(userTimelineV2Body(module))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 2)
	assert.False(t, page.Tweets[0].IsThreadStarter)
}

func TestExtractTimeline_ModuleLeadingReplyStillMarksStarter(t *testing.T) {
	reply := itemContent(tweetResult("99", "20", "bob", rubyTime, ""))
	x := itemContent(tweetResult("100", "10", "alice", "Fri Nov 22 20:00:00 +0000 2024", ""))
	y := itemContent(tweetResult("101", "10", "alice", "Fri Nov 22 20:05:00 +0000 2024", ""))
	module := fmt.Sprintf(`{"entryId": "conversation-100", "content": {
		"entryType": "TimelineTimelineModule",
		"items": [{"item": {"itemContent": %s}}, {"item": {"itemContent": %s}}, {"item": {"itemContent": %s}}]
	}}`, reply, x, y)

	page, err := ExtractTimeline(userTimelineV2Body(module))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 3)
	assert.False(t, page.Tweets[0].IsThreadStarter, "another account's reply is not the starter")
	assert.True(t, page.Tweets[1].IsThreadStarter, "thread author's first module tweet is the starter")
	assert.False(t, page.Tweets[2].IsThreadStarter)
}

func TestConvertTweet_Flags(t *testing.T) {
	body := listTimelineBody(singleEntry("tweet-5", tweetResult("5", "10", "alice", rubyTime,
		`"retweeted_status_result": {}, "is_quote_status": true,
		 "extended_entities": {"media": [{"type": "photo"}]},
		 "in_reply_to_user_id_str": "10", "in_reply_to_status_id_str": "4"`)))

	page, err := ExtractTimeline(body)
	require.NoError(t, err)
	require.Len(t, page.Tweets, 1)
	got := page.Tweets[0]
	assert.True(t, got.IsRetweet)
	assert.True(t, got.IsQuote)
	assert.True(t, got.HasMedia)
	assert.True(t, got.IsSelfThread, "reply to own tweet is a self-thread continuation")
	assert.Equal(t, "4", got.InReplyToID)
}

func TestConvertTweet_NoteTextPreferred(t *testing.T) {
	result := fmt.Sprintf(`{
		"__typename": "Tweet",
		"rest_id": "9",
		"note_tweet": {"note_tweet_results": {"result": {"text": "the full untruncated text"}}},
		"core": {"user_results": {"result": {"rest_id": "10", "core": {"screen_name": "alice"}}}},
		"legacy": {"id_str": "9", "created_at": "%s", "full_text": "truncated…", "conversation_id_str": "9"}
	}`, rubyTime)

	page, err := ExtractTimeline(listTimelineBody(singleEntry("tweet-9", result)))
	require.NoError(t, err)
	require.Len(t, page.Tweets, 1)
	assert.Equal(t, "the full untruncated text", page.Tweets[0].Text)
}

func TestExtractThread(t *testing.T) {
	mk := func(id, created string) string {
		return fmt.Sprintf(`{"entryId": "tweet-%s", "content": {"entryType": "TimelineTimelineItem", "itemContent": %s}}`,
			id, itemContent(tweetResult(id, "10", "alice", created, "")))
	}
	dup := mk("1", "Fri Nov 22 20:00:00 +0000 2024")
	body := []byte(fmt.Sprintf(`{"data": {"threaded_conversation_with_injections_v2": {"instructions": [
		{"type": "TimelineAddEntries", "entries": [%s, %s, %s]}
	]}}}`, mk("1", "Fri Nov 22 20:00:00 +0000 2024"), mk("2", "Fri Nov 22 20:05:00 +0000 2024"), dup))

	tweets, err := ExtractThread(body)
	require.NoError(t, err)
	require.Len(t, tweets, 2, "duplicate ids are suppressed")
	assert.Equal(t, "1", tweets[0].ID)
	assert.Equal(t, "2", tweets[1].ID)
}

func TestExtractUserID(t *testing.T) {
	id, err := ExtractUserID([]byte(`{"data": {"user": {"result": {"rest_id": "44196397"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "44196397", id)

	_, err = ExtractUserID([]byte(`{"data": {"user": {}}}`))
	assert.True(t, errors.Is(err, twitter.ErrUserNotFound))
}

func TestEndpointFromURL(t *testing.T) {
	tests := []struct {
		url  string
		name string
		ok   bool
	}{
		{"https://x.com/i/api/graphql/AbC123/UserTweets?variables=%7B%7D", "UserTweets", true},
		{"https://x.com/i/api/graphql/AbC123/ListLatestTweetsTimeline", "ListLatestTweetsTimeline", true},
		{"https://x.com/i/api/2/notifications", "", false},
		{"https://example.com/other", "", false},
	}
	for _, tt := range tests {
		name, ok := EndpointFromURL(tt.url)
		if ok != tt.ok || name != tt.name {
			t.Errorf("EndpointFromURL(%q) = (%q, %v), want (%q, %v)", tt.url, name, ok, tt.name, tt.ok)
		}
	}

	if !MatchesEndpoint("https://x.com/i/api/graphql/AbC123/UserTweets", UserEndpoints) {
		t.Error("UserTweets should match the user endpoint set")
	}
	if MatchesEndpoint("https://x.com/i/api/graphql/AbC123/UserTweets", ListEndpoints) {
		t.Error("UserTweets must not match the list endpoint set")
	}
}
