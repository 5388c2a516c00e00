package shelfdb

import (
	"encoding/binary"
	"iter"
	"math/rand"
	"time"

	"github.com/AlexandriaDAO/shelfdb/indexes"
	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/cespare/xxhash"
)

// DiscoveryBucket is the rotation period of the shuffled discovery feed: the
// permutation is fixed within a bucket and changes at the boundary.
const DiscoveryBucket = time.Hour

// RecencyFeed pages the global timeline, newest first.
func (e *Engine) RecencyFeed(cursor *string, limit int) (CursorPage[indexes.TimelineEntry], error) {
	FeedPages.WithLabelValues("recency").Inc()
	return collectCursorPage(cursor, limit, cursorRecency, e.idx.GlobalTimeline)
}

// filteredTimeline narrows the global timeline to entries the keep predicate
// accepts; the pagination probe still sees a lazy sequence.
func (e *Engine) filteredTimeline(keep func(indexes.TimelineEntry) bool) func(resume []byte) (iter.Seq2[[]byte, indexes.TimelineEntry], error) {
	return func(resume []byte) (iter.Seq2[[]byte, indexes.TimelineEntry], error) {
		seq, err := e.idx.GlobalTimeline(resume)
		if err != nil {
			return nil, err
		}
		return func(yield func([]byte, indexes.TimelineEntry) bool) {
			for key, entry := range seq {
				if !keep(entry) {
					continue
				}
				if !yield(key, entry) {
					return
				}
			}
		}, nil
	}
}

// FollowedUsersFeed pages timeline entries whose owner the caller follows.
// An empty follow set short-circuits to an empty page.
func (e *Engine) FollowedUsersFeed(as shelf.UID, cursor *string, limit int) (CursorPage[indexes.TimelineEntry], error) {
	FeedPages.WithLabelValues("followed_users").Inc()
	followed, err := e.FollowedUsers(as)
	if err != nil {
		return CursorPage[indexes.TimelineEntry]{}, err
	}
	if len(followed) == 0 {
		return CursorPage[indexes.TimelineEntry]{}, nil
	}
	return collectCursorPage(cursor, limit, cursorUsersFeed, e.filteredTimeline(func(entry indexes.TimelineEntry) bool {
		return followed[string(entry.Owner)]
	}))
}

// FollowedTagsFeed pages timeline entries tagged with anything the caller
// follows.
func (e *Engine) FollowedTagsFeed(as shelf.UID, cursor *string, limit int) (CursorPage[indexes.TimelineEntry], error) {
	FeedPages.WithLabelValues("followed_tags").Inc()
	followed, err := e.FollowedTags(as)
	if err != nil {
		return CursorPage[indexes.TimelineEntry]{}, err
	}
	if len(followed) == 0 {
		return CursorPage[indexes.TimelineEntry]{}, nil
	}
	return collectCursorPage(cursor, limit, cursorTagsFeed, e.filteredTimeline(func(entry indexes.TimelineEntry) bool {
		for _, tag := range entry.Tags {
			if followed[tag] {
				return true
			}
		}
		return false
	}))
}

// StorylineFeed unions the followed-users and followed-tags filters,
// deduplicating shelves within the page.
func (e *Engine) StorylineFeed(as shelf.UID, cursor *string, limit int) (CursorPage[indexes.TimelineEntry], error) {
	FeedPages.WithLabelValues("storyline").Inc()
	users, err := e.FollowedUsers(as)
	if err != nil {
		return CursorPage[indexes.TimelineEntry]{}, err
	}
	tags, err := e.FollowedTags(as)
	if err != nil {
		return CursorPage[indexes.TimelineEntry]{}, err
	}
	if len(users) == 0 && len(tags) == 0 {
		return CursorPage[indexes.TimelineEntry]{}, nil
	}
	seen := make(map[string]bool)
	return collectCursorPage(cursor, limit, cursorStoryline, e.filteredTimeline(func(entry indexes.TimelineEntry) bool {
		match := users[string(entry.Owner)]
		if !match {
			for _, tag := range entry.Tags {
				if tags[tag] {
					match = true
					break
				}
			}
		}
		if !match || seen[entry.ShelfID] {
			return false
		}
		seen[entry.ShelfID] = true
		return true
	}))
}

// DiscoveryFeed returns up to limit shelf ids from the candidate pool in a
// pseudo-random order that is identical for every caller within the current
// time bucket. The seed mixes the bucket number through xxhash; this is fair
// rotation, not unpredictability.
func (e *Engine) DiscoveryFeed(limit int) []string {
	FeedPages.WithLabelValues("discovery").Inc()
	pool := e.idx.DiscoveryPool()
	bucket := e.clock.Now() / uint64(DiscoveryBucket.Nanoseconds())
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bucket)
	seed := xxhash.Sum64(buf[:])
	r := rand.New(rand.NewSource(int64(seed)))
	r.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	limit = clampLimit(limit)
	if limit < len(pool) {
		pool = pool[:limit]
	}
	return pool
}
