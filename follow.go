package shelfdb

import (
	"context"
	"fmt"
	"time"

	"github.com/AlexandriaDAO/shelfdb/indexes"
	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/cockroachdb/pebble"
)

// Follow sets feed the personalized timelines: a user follows other users
// and tags, and the feed filters match against these sets.

func (e *Engine) FollowUser(ctx context.Context, as, target shelf.UID) (err error) {
	ctx = e.opCtx(ctx, "follow_user")
	defer func(start time.Time) { e.observe("follow_user", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	if !target.Valid() {
		return fmt.Errorf("%w: cannot follow that identity", shelfdb_errors.ErrValidation)
	}
	if target == as {
		return fmt.Errorf("%w: cannot follow yourself", shelfdb_errors.ErrValidation)
	}
	return e.setKey(ctx, followUserKey(string(as), string(target)), nil)
}

func (e *Engine) UnfollowUser(ctx context.Context, as, target shelf.UID) (err error) {
	ctx = e.opCtx(ctx, "unfollow_user")
	defer func(start time.Time) { e.observe("unfollow_user", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	return e.deleteKey(ctx, followUserKey(string(as), string(target)))
}

func (e *Engine) FollowTag(ctx context.Context, as shelf.UID, tag string) (err error) {
	ctx = e.opCtx(ctx, "follow_tag")
	defer func(start time.Time) { e.observe("follow_tag", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return err
	}
	return e.setKey(ctx, followTagKey(string(as), norm), nil)
}

func (e *Engine) UnfollowTag(ctx context.Context, as shelf.UID, tag string) (err error) {
	ctx = e.opCtx(ctx, "unfollow_tag")
	defer func(start time.Time) { e.observe("unfollow_tag", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return err
	}
	return e.deleteKey(ctx, followTagKey(string(as), norm))
}

func (e *Engine) setKey(ctx context.Context, key, value []byte) error {
	batch := e.db.NewBatch()
	if err := batch.Set(key, value, e.WriteOptions()); err != nil {
		_ = batch.Close()
		return err
	}
	e.commit(ctx, batch)
	return nil
}

func (e *Engine) deleteKey(ctx context.Context, key []byte) error {
	batch := e.db.NewBatch()
	if err := batch.Delete(key, e.WriteOptions()); err != nil {
		_ = batch.Close()
		return err
	}
	e.commit(ctx, batch)
	return nil
}

func (e *Engine) scanSuffixes(prefix []byte) (map[string]bool, error) {
	it, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: indexes.KeyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := make(map[string]bool)
	for valid := it.First(); valid; valid = it.Next() {
		out[string(it.Key()[len(prefix):])] = true
	}
	return out, nil
}

// FollowedUsers returns the set of identities the user follows.
func (e *Engine) FollowedUsers(as shelf.UID) (map[string]bool, error) {
	return e.scanSuffixes(followUserPrefix(string(as)))
}

// FollowedTags returns the set of tags the user follows.
func (e *Engine) FollowedTags(as shelf.UID) (map[string]bool, error) {
	return e.scanSuffixes(followTagPrefix(string(as)))
}
