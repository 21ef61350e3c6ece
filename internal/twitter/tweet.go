// Package twitter defines the canonical tweet model, timeline targets, and
// the capability interface every fetch backend implements.
package twitter

import (
	"encoding/json"
	"strings"
	"time"
)

// Tweet is the normalized, backend-independent tweet record.
//
// IDs are platform-assigned decimal strings. They are numeric upstream but
// exceed int64 range, so they are kept as opaque text and ordered with
// CompareIDs rather than parsed.
type Tweet struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UserID          string    `json:"user_id"`
	ScreenName      string    `json:"screen_name"`
	Text            string    `json:"text"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	InReplyToID     string    `json:"in_reply_to_id,omitempty"`
	IsRetweet       bool      `json:"is_retweet"`
	IsQuote         bool      `json:"is_quote"`
	HasMedia        bool      `json:"has_media"`
	IsSelfThread    bool      `json:"is_self_thread"`
	IsThreadStarter bool      `json:"is_thread_starter"`

	// Raw is the original source payload, retained verbatim for forward
	// compatibility and debugging. Never reparsed by this engine.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// CompareIDs orders two tweet ids numerically. Ids are decimal strings that
// can exceed int64 precision, so comparison is length-then-lexicographic
// after trimming leading zeros. Returns -1, 0, or 1.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NewerID reports whether a is strictly newer (numerically greater) than b.
func NewerID(a, b string) bool { return CompareIDs(a, b) > 0 }

// OlderID reports whether a is strictly older (numerically lesser) than b.
func OlderID(a, b string) bool { return CompareIDs(a, b) < 0 }
