package shelfdb

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/AlexandriaDAO/shelfdb/indexes"
	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createShelves(t *testing.T, e *Engine, n int, tags []string) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := e.CreateShelf(ctx, alice, fmt.Sprintf("shelf %d", i), "", tags)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	return ids
}

func TestRecentShelvesOffsetPagination(t *testing.T) {
	e := testEngine(t)
	ids := createShelves(t, e, 5, nil)

	page, err := e.RecentShelves(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 2)
	// newest first
	assert.Equal(t, ids[4], page.Items[0].ShelfID)
	assert.Equal(t, ids[3], page.Items[1].ShelfID)

	page, err = e.RecentShelves(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.False(t, page.HasNext)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[0], page.Items[0].ShelfID)

	page, err = e.RecentShelves(10, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasNext)
}

func TestRecentShelvesClampsLimit(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 1, nil)
	page, err := e.RecentShelves(0, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, page.Limit)
}

func TestShelvesOfOwner(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	mine := createShelves(t, e, 2, nil)
	_, err := e.CreateShelf(ctx, bob, "bobs", "", nil)
	require.NoError(t, err)

	page, err := e.ShelvesOf(alice, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, mine[1], page.Items[0].ShelfID)
	assert.Equal(t, mine[0], page.Items[1].ShelfID)
}

func TestPopularTagsOrder(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 3, []string{"go"})
	createShelves(t, e, 1, []string{"rust"})

	page, err := e.PopularTags(nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, indexes.TagCount{Tag: "go", Count: 3}, page.Items[0])
	assert.Equal(t, indexes.TagCount{Tag: "rust", Count: 1}, page.Items[1])
	assert.Nil(t, page.NextCursor)
}

func TestShelvesWithTagCursorPagination(t *testing.T) {
	e := testEngine(t)
	ids := createShelves(t, e, 5, []string{"go"})

	var got []string
	var cursor *string
	pages := 0
	for {
		page, err := e.ShelvesWithTag("go", cursor, 2)
		require.NoError(t, err)
		got = append(got, page.Items...)
		pages++
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	// concatenated pages reproduce the full scan with no gaps or repeats
	assert.ElementsMatch(t, ids, got)
	assert.Len(t, got, 5)
}

func TestTagShelvesByRecency(t *testing.T) {
	e := testEngine(t)
	ids := createShelves(t, e, 3, []string{"go"})

	page, err := e.TagShelvesByRecency("go", nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, ids[2], page.Items[0].ShelfID)
	assert.Equal(t, ids[0], page.Items[2].ShelfID)
}

func TestTagsByPrefix(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 1, []string{"golang", "gopher"})
	createShelves(t, e, 1, []string{"rust"})

	page, err := e.TagsByPrefix("go", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "gopher"}, page.Items)

	page, err = e.TagsByPrefix("GO", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "gopher"}, page.Items)

	_, err = e.TagsByPrefix("bad prefix!", nil, 10)
	assert.ErrorIs(t, err, shelfdb_errors.ErrValidation)
}

func TestCursorForeignFilterRejected(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 2, []string{"a"})

	// a cursor minted for one tag must not resume a scan of another, even
	// through the same query
	page, err := e.TagShelvesByRecency("a", nil, 1)
	require.NoError(t, err)
	require.NotNil(t, page.NextCursor)

	longTag := strings.Repeat("z", 25)
	_, err = e.TagShelvesByRecency(longTag, page.NextCursor, 1)
	assert.ErrorIs(t, err, shelfdb_errors.ErrInvalidCursor)

	shelves, err := e.ShelvesWithTag("a", nil, 1)
	require.NoError(t, err)
	require.NotNil(t, shelves.NextCursor)

	other, err := e.ShelvesWithTag("zzzzzz", shelves.NextCursor, 10)
	assert.ErrorIs(t, err, shelfdb_errors.ErrInvalidCursor)
	assert.Empty(t, other.Items)

	// a lexical cursor outside the requested prefix is a different filter too
	createShelves(t, e, 1, []string{"aa"})
	lex, err := e.TagsByPrefix("a", nil, 1)
	require.NoError(t, err)
	require.NotNil(t, lex.NextCursor)
	_, err = e.TagsByPrefix("zz", lex.NextCursor, 1)
	assert.ErrorIs(t, err, shelfdb_errors.ErrInvalidCursor)
}

func TestCursorSamePrefixStillResumes(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 1, []string{"golang", "gopher", "gourd"})

	page, err := e.TagsByPrefix("go", nil, 1)
	require.NoError(t, err)
	require.NotNil(t, page.NextCursor)

	// a broader prefix that still covers the resume key is accepted
	rest, err := e.TagsByPrefix("g", page.NextCursor, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"gopher", "gourd"}, rest.Items)
}

func TestCursorKindMismatch(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 3, []string{"go", "rust"})

	page, err := e.PopularTags(nil, 1)
	require.NoError(t, err)
	require.NotNil(t, page.NextCursor)

	// a popularity cursor replayed against the lexical index is rejected
	_, err = e.TagsByPrefix("go", page.NextCursor, 1)
	assert.ErrorIs(t, err, shelfdb_errors.ErrInvalidCursor)

	garbage := "!!!not base64!!!"
	_, err = e.PopularTags(&garbage, 1)
	assert.ErrorIs(t, err, shelfdb_errors.ErrInvalidCursor)
}

func TestZeroLimitPage(t *testing.T) {
	e := testEngine(t)
	createShelves(t, e, 2, []string{"go"})
	page, err := e.ShelvesWithTag("go", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)
}
