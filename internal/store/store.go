// Package store persists tweets and per-timeline scrape bookkeeping in
// SQLite. Tweets are written once and never updated; timeline records are
// created on first scrape and refreshed on every subsequent one.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"xdump/internal/twitter"
)

const schema = `
CREATE TABLE IF NOT EXISTS timelines (
    key               TEXT PRIMARY KEY,
    url               TEXT NOT NULL,
    type              TEXT NOT NULL,
    first_scraped_at  TEXT NOT NULL,
    last_scraped_at   TEXT NOT NULL,
    newest_tweet_id   TEXT,
    oldest_tweet_id   TEXT
);

CREATE TABLE IF NOT EXISTS tweets (
    id               TEXT PRIMARY KEY,
    timeline_key     TEXT NOT NULL,
    created_at       TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    screen_name      TEXT NOT NULL,
    conversation_id  TEXT,
    in_reply_to_id   TEXT,
    is_retweet       INTEGER NOT NULL DEFAULT 0,
    is_quote         INTEGER NOT NULL DEFAULT 0,
    has_media        INTEGER NOT NULL DEFAULT 0,
    text             TEXT NOT NULL,
    raw              BLOB NOT NULL,
    stored_at        TEXT NOT NULL,
    FOREIGN KEY (timeline_key) REFERENCES timelines(key)
);

CREATE INDEX IF NOT EXISTS idx_tweets_timeline_key ON tweets(timeline_key);
CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);
CREATE INDEX IF NOT EXISTS idx_tweets_user_id ON tweets(user_id);
CREATE INDEX IF NOT EXISTS idx_tweets_conversation_id ON tweets(conversation_id);
CREATE INDEX IF NOT EXISTS idx_tweets_in_reply_to_id ON tweets(in_reply_to_id);
`

// TimelineRecord is the persisted bookkeeping row for one timeline key.
type TimelineRecord struct {
	Key            string
	URL            string
	Type           string
	FirstScrapedAt time.Time
	LastScrapedAt  time.Time
	NewestTweetID  string
	OldestTweetID  string
}

// StoredTweet is a tweet row read back from the store.
type StoredTweet struct {
	twitter.Tweet
	TimelineKey string    `json:"timeline_key"`
	StoredAt    time.Time `json:"stored_at"`
}

// TweetStore is the SQLite-backed tweet and timeline store. Safe under the
// engine's single-writer assumption; connections are capped at one.
type TweetStore struct {
	db   *sql.DB
	path string
}

// Open opens (and creates, if needed) the store at path.
func Open(path string) (*TweetStore, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &TweetStore{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *TweetStore) Close() error { return s.db.Close() }

// HasTweet reports whether a tweet id is already stored.
func (s *TweetStore) HasTweet(id string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM tweets WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has tweet: %w", err)
	}
	return true, nil
}

// StoreTweet inserts a tweet under the given timeline key. Inserting a
// duplicate id is a no-op; the return value reports whether a row was
// actually written.
func (s *TweetStore) StoreTweet(t *twitter.Tweet, timelineKey string) (bool, error) {
	raw := t.Raw
	if raw == nil {
		raw = []byte("{}")
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO tweets
		(id, timeline_key, created_at, user_id, screen_name, conversation_id,
		 in_reply_to_id, is_retweet, is_quote, has_media, text, raw, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, timelineKey, t.CreatedAt.UTC().Format(time.RFC3339), t.UserID,
		t.ScreenName, t.ConversationID, t.InReplyToID,
		boolInt(t.IsRetweet), boolInt(t.IsQuote), boolInt(t.HasMedia),
		t.Text, []byte(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("store tweet %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store tweet %s: %w", t.ID, err)
	}
	return n > 0, nil
}

// GetTimeline returns the bookkeeping record for a key, or (nil, nil) when
// the key has never been scraped.
func (s *TweetStore) GetTimeline(key string) (*TimelineRecord, error) {
	row := s.db.QueryRow(`
		SELECT key, url, type, first_scraped_at, last_scraped_at,
		       COALESCE(newest_tweet_id, ''), COALESCE(oldest_tweet_id, '')
		FROM timelines WHERE key = ?`, key)

	var rec TimelineRecord
	var first, last string
	err := row.Scan(&rec.Key, &rec.URL, &rec.Type, &first, &last,
		&rec.NewestTweetID, &rec.OldestTweetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get timeline %s: %w", key, err)
	}
	rec.FirstScrapedAt, _ = time.Parse(time.RFC3339, first)
	rec.LastScrapedAt, _ = time.Parse(time.RFC3339, last)
	return &rec, nil
}

// UpdateTimeline creates or refreshes a timeline record. Newest/oldest bounds
// are monotonic: an incoming id only replaces the stored one when it is
// strictly newer/older under numeric id comparison, so out-of-order updates
// never regress the bounds. lastScrapedAt is refreshed unconditionally.
func (s *TweetStore) UpdateTimeline(key, url, timelineType, newestID, oldestID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	existing, err := s.GetTimeline(key)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := s.db.Exec(`
			INSERT INTO timelines (key, url, type, first_scraped_at, last_scraped_at, newest_tweet_id, oldest_tweet_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key, url, timelineType, now, now, nullable(newestID), nullable(oldestID))
		if err != nil {
			return fmt.Errorf("insert timeline %s: %w", key, err)
		}
		return nil
	}

	newest := existing.NewestTweetID
	if newestID != "" && (newest == "" || twitter.NewerID(newestID, newest)) {
		newest = newestID
	}
	oldest := existing.OldestTweetID
	if oldestID != "" && (oldest == "" || twitter.OlderID(oldestID, oldest)) {
		oldest = oldestID
	}

	_, err = s.db.Exec(`
		UPDATE timelines SET last_scraped_at = ?, newest_tweet_id = ?, oldest_tweet_id = ?
		WHERE key = ?`, now, nullable(newest), nullable(oldest), key)
	if err != nil {
		return fmt.Errorf("update timeline %s: %w", key, err)
	}
	return nil
}

// TweetsForTimeline returns stored tweets for a key ordered by creation time.
// Order is "DESC" (newest first) or "ASC"; limit 0 means no limit.
func (s *TweetStore) TweetsForTimeline(key string, limit int, order string) ([]*StoredTweet, error) {
	if order != "ASC" {
		order = "DESC"
	}
	query := `
		SELECT id, timeline_key, created_at, user_id, screen_name,
		       COALESCE(conversation_id, ''), COALESCE(in_reply_to_id, ''),
		       is_retweet, is_quote, has_media, text, raw, stored_at
		FROM tweets WHERE timeline_key = ? ORDER BY created_at ` + order
	args := []interface{}{key}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryTweets(query, args...)
}

// Thread returns all stored tweets sharing a conversation id, oldest first.
func (s *TweetStore) Thread(conversationID string) ([]*StoredTweet, error) {
	return s.queryTweets(`
		SELECT id, timeline_key, created_at, user_id, screen_name,
		       COALESCE(conversation_id, ''), COALESCE(in_reply_to_id, ''),
		       is_retweet, is_quote, has_media, text, raw, stored_at
		FROM tweets WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
}

// Count returns the number of tweets stored for a timeline key.
func (s *TweetStore) Count(key string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tweets WHERE timeline_key = ?", key).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tweets: %w", err)
	}
	return n, nil
}

// NewestTweetID returns the id of the most recently created stored tweet for
// a key, or "" when none exist.
func (s *TweetStore) NewestTweetID(key string) (string, error) {
	return s.boundTweetID(key, "DESC")
}

// OldestTweetID returns the id of the earliest created stored tweet for a
// key, or "" when none exist.
func (s *TweetStore) OldestTweetID(key string) (string, error) {
	return s.boundTweetID(key, "ASC")
}

func (s *TweetStore) boundTweetID(key, order string) (string, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT id FROM tweets WHERE timeline_key = ? ORDER BY created_at "+order+" LIMIT 1",
		key).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bound tweet id: %w", err)
	}
	return id, nil
}

func (s *TweetStore) queryTweets(query string, args ...interface{}) ([]*StoredTweet, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tweets: %w", err)
	}
	defer rows.Close()

	var out []*StoredTweet
	for rows.Next() {
		var t StoredTweet
		var created, stored string
		var isRetweet, isQuote, hasMedia int
		var raw []byte
		if err := rows.Scan(&t.ID, &t.TimelineKey, &created, &t.UserID,
			&t.ScreenName, &t.ConversationID, &t.InReplyToID,
			&isRetweet, &isQuote, &hasMedia, &t.Text, &raw, &stored); err != nil {
			return nil, fmt.Errorf("scan tweet: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, created)
		t.StoredAt, _ = time.Parse(time.RFC3339, stored)
		t.IsRetweet = isRetweet != 0
		t.IsQuote = isQuote != 0
		t.HasMedia = hasMedia != 0
		t.Raw = raw
		out = append(out, &t)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
