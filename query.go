package shelfdb

import (
	"iter"

	"github.com/AlexandriaDAO/shelfdb/indexes"
	"github.com/AlexandriaDAO/shelfdb/shelf"
)

// MaxPageLimit caps the page size of every paginated read.
const MaxPageLimit = 50

// OffsetPage is an offset-paginated result window.
type OffsetPage[T any] struct {
	Items      []T
	TotalCount int
	Limit      int
	Offset     int
	HasNext    bool
}

// CursorPage is a cursor-paginated result window. A nil NextCursor means the
// scan is exhausted.
type CursorPage[T any] struct {
	Items      []T
	NextCursor *string
}

func clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// collectOffsetPage walks the whole sequence once, counting everything and
// keeping the requested window.
func collectOffsetPage[T any](offset, limit int, seq iter.Seq2[[]byte, T]) OffsetPage[T] {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	page := OffsetPage[T]{Limit: limit, Offset: offset}
	total := 0
	for _, item := range seq {
		if total >= offset && len(page.Items) < limit {
			page.Items = append(page.Items, item)
		}
		total++
	}
	page.TotalCount = total
	page.HasNext = offset+len(page.Items) < total
	return page
}

// collectCursorPage probes limit+1 records; the extra record's key becomes
// the next cursor and the scan resumes at it inclusively, so concatenated
// pages reproduce the unbounded scan exactly. The scan constructor rejects a
// resume key minted for a different filter.
func collectCursorPage[T any](cursor *string, limit int, kind byte, scan func(resume []byte) (iter.Seq2[[]byte, T], error)) (CursorPage[T], error) {
	resume, err := decodeCursor(cursor, kind)
	if err != nil {
		return CursorPage[T]{}, err
	}
	seq, err := scan(resume)
	if err != nil {
		return CursorPage[T]{}, err
	}
	limit = clampLimit(limit)
	page := CursorPage[T]{}
	if limit == 0 {
		return page, nil
	}
	var keys [][]byte
	for key, item := range seq {
		keys = append(keys, key)
		page.Items = append(page.Items, item)
		if len(page.Items) == limit+1 {
			break
		}
	}
	if len(page.Items) == limit+1 {
		page.Items = page.Items[:limit]
		next := encodeCursor(kind, keys[limit])
		page.NextCursor = &next
	}
	return page, nil
}

// RecentShelves pages the global timeline, newest first, by offset.
func (e *Engine) RecentShelves(offset, limit int) (OffsetPage[indexes.TimelineEntry], error) {
	seq, err := e.idx.GlobalTimeline(nil)
	if err != nil {
		return OffsetPage[indexes.TimelineEntry]{}, err
	}
	return collectOffsetPage(offset, limit, seq), nil
}

// ShelvesOf pages one owner's shelves, newest first, by offset.
func (e *Engine) ShelvesOf(owner shelf.UID, offset, limit int) (OffsetPage[indexes.OwnerEntry], error) {
	seq, err := e.idx.OwnerTimeline(string(owner), nil)
	if err != nil {
		return OffsetPage[indexes.OwnerEntry]{}, err
	}
	return collectOffsetPage(offset, limit, seq), nil
}

// PopularTags pages tags by descending shelf count.
func (e *Engine) PopularTags(cursor *string, limit int) (CursorPage[indexes.TagCount], error) {
	return collectCursorPage(cursor, limit, cursorPopular, e.idx.PopularTags)
}

// TagsByPrefix pages tags sharing a lexical prefix, ascending.
func (e *Engine) TagsByPrefix(prefix string, cursor *string, limit int) (CursorPage[string], error) {
	norm, err := shelf.NormalizeTag(prefix)
	if err != nil {
		return CursorPage[string]{}, err
	}
	return collectCursorPage(cursor, limit, cursorLexical, func(resume []byte) (iter.Seq2[[]byte, string], error) {
		return e.idx.TagsByPrefix(norm, resume)
	})
}

// ShelvesWithTag pages the shelf ids associated with a tag.
func (e *Engine) ShelvesWithTag(tag string, cursor *string, limit int) (CursorPage[string], error) {
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return CursorPage[string]{}, err
	}
	return collectCursorPage(cursor, limit, cursorTagShelves, func(resume []byte) (iter.Seq2[[]byte, string], error) {
		return e.idx.ShelvesWithTag(norm, resume)
	})
}

// TagShelvesByRecency pages shelves carrying a tag, newest created first.
func (e *Engine) TagShelvesByRecency(tag string, cursor *string, limit int) (CursorPage[indexes.OwnerEntry], error) {
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return CursorPage[indexes.OwnerEntry]{}, err
	}
	return collectCursorPage(cursor, limit, cursorTagRecency, func(resume []byte) (iter.Seq2[[]byte, indexes.OwnerEntry], error) {
		return e.idx.TagShelvesByRecency(norm, resume)
	})
}

// TagMeta returns the bookkeeping record of a tag, if the tag is in use.
func (e *Engine) TagMeta(tag string) (indexes.TagMeta, bool, error) {
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return indexes.TagMeta{}, false, err
	}
	return e.idx.TagMeta(norm)
}

// ShelvesOfAsset lists the shelves referencing an external asset.
func (e *Engine) ShelvesOfAsset(assetID string) ([]string, error) {
	if err := shelf.ValidateAssetID(assetID); err != nil {
		return nil, err
	}
	return e.idx.AssetShelves(assetID)
}
