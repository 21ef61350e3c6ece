package twitter

import "sort"

// NarrowThread keeps the focal author's own tweets, oldest first. A
// conversation view mixes in replies from other accounts; the thread proper
// is the first tweet's author talking to themselves. Both fetch backends
// narrow their conversation responses through this before streaming.
func NarrowThread(tweets []*Tweet) []*Tweet {
	if len(tweets) == 0 {
		return nil
	}
	author := tweets[0].UserID
	thread := tweets[:0]
	for _, t := range tweets {
		if t.UserID == author {
			thread = append(thread, t)
		}
	}
	sort.Slice(thread, func(i, j int) bool {
		return thread[i].CreatedAt.Before(thread[j].CreatedAt)
	})
	return thread
}
