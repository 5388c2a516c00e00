package indexes

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/cockroachdb/pebble"
)

// OwnerEntry is one owner-timeline record.
type OwnerEntry struct {
	Timestamp uint64
	ShelfID   string
}

// scanFrom builds the lower bound for a range scan. A resume key (the first
// key of the requested page, taken from a cursor) is inclusive and must sit
// inside the scanned keyspace: a resume key carrying a different prefix came
// from a cursor minted for another filter.
func scanFrom(prefix, resume []byte) ([]byte, error) {
	if resume == nil {
		return prefix, nil
	}
	if !bytes.HasPrefix(resume, prefix) {
		return nil, fmt.Errorf("%w: cursor does not resume this filter", shelfdb_errors.ErrInvalidCursor)
	}
	return resume, nil
}

// scan iterates [lower, upper) yielding copied keys and values. Sequences
// built on it are lazy, finite and restartable.
func (c *Coordinator) scan(lower, upper []byte) iter.Seq2[[]byte, []byte] {
	return func(yield func(key, value []byte) bool) {
		it, err := c.h.Database().NewIter(&pebble.IterOptions{
			LowerBound: lower,
			UpperBound: upper,
		})
		if err != nil {
			c.h.Logger().Error("failed to create index iterator", "err", err)
			return
		}
		defer it.Close()
		for valid := it.First(); valid; valid = it.Next() {
			key := slices.Clone(it.Key())
			value := slices.Clone(it.Value())
			if !yield(key, value) {
				return
			}
		}
	}
}

// PopularTags yields tags by descending shelf count, then tag order. The
// yielded key resumes the scan.
func (c *Coordinator) PopularTags(resume []byte) (iter.Seq2[[]byte, TagCount], error) {
	prefix := []byte{'G', 'P'}
	lower, err := scanFrom(prefix, resume)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, TagCount) bool) {
		for key := range c.scan(lower, KeyUpperBound(prefix)) {
			tc := TagCount{
				Count: uint64(^binary.BigEndian.Uint32(key[2:6])),
				Tag:   string(key[6:]),
			}
			if !yield(key, tc) {
				return
			}
		}
	}, nil
}

// TagsByPrefix yields tags sharing a lexical prefix in ascending order.
func (c *Coordinator) TagsByPrefix(tagPrefix string, resume []byte) (iter.Seq2[[]byte, string], error) {
	prefix := append([]byte{'G', 'L'}, tagPrefix...)
	lower, err := scanFrom(prefix, resume)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, string) bool) {
		for key := range c.scan(lower, KeyUpperBound(prefix)) {
			if !yield(key, string(key[2:])) {
				return
			}
		}
	}, nil
}

// ShelvesWithTag yields shelf ids associated with the tag, in id order.
func (c *Coordinator) ShelvesWithTag(tag string, resume []byte) (iter.Seq2[[]byte, string], error) {
	prefix := append([]byte{'G', 'A'}, tag...)
	prefix = append(prefix, sep)
	lower, err := scanFrom(prefix, resume)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, string) bool) {
		for key := range c.scan(lower, KeyUpperBound(prefix)) {
			if !yield(key, string(key[len(prefix):])) {
				return
			}
		}
	}, nil
}

// TagShelvesByRecency yields shelves carrying the tag, newest created first.
func (c *Coordinator) TagShelvesByRecency(tag string, resume []byte) (iter.Seq2[[]byte, OwnerEntry], error) {
	prefix := append([]byte{'G', 'C'}, tag...)
	prefix = append(prefix, sep)
	lower, err := scanFrom(prefix, resume)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, OwnerEntry) bool) {
		for key := range c.scan(lower, KeyUpperBound(prefix)) {
			entry := OwnerEntry{
				Timestamp: ^binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]),
				ShelfID:   string(key[len(prefix)+8:]),
			}
			if !yield(key, entry) {
				return
			}
		}
	}, nil
}

// OwnerTimeline yields one owner's shelves, newest first.
func (c *Coordinator) OwnerTimeline(owner string, resume []byte) (iter.Seq2[[]byte, OwnerEntry], error) {
	prefix := append([]byte{'T', 'O'}, owner...)
	prefix = append(prefix, sep)
	lower, err := scanFrom(prefix, resume)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, OwnerEntry) bool) {
		for key, value := range c.scan(lower, KeyUpperBound(prefix)) {
			entry := OwnerEntry{
				Timestamp: ^binary.BigEndian.Uint64(key[len(prefix):]),
				ShelfID:   string(value),
			}
			if !yield(key, entry) {
				return
			}
		}
	}, nil
}

// GlobalTimeline yields the denormalized creation records, newest first.
func (c *Coordinator) GlobalTimeline(resume []byte) (iter.Seq2[[]byte, TimelineEntry], error) {
	prefix := []byte{'T', 'G'}
	lower, err := scanFrom(prefix, resume)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, TimelineEntry) bool) {
		for key, value := range c.scan(lower, KeyUpperBound(prefix)) {
			var entry TimelineEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				c.h.Logger().Error("skipping bad timeline record", "err", err)
				continue
			}
			entry.Timestamp = ^binary.BigEndian.Uint64(key[2:])
			if !yield(key, entry) {
				return
			}
		}
	}, nil
}

// DiscoveryPool returns the candidate shelf ids in id order.
func (c *Coordinator) DiscoveryPool() []string {
	prefix := []byte{'D', '!'}
	var ids []string
	for key := range c.scan(prefix, KeyUpperBound(prefix)) {
		ids = append(ids, string(key[2:]))
	}
	return ids
}
