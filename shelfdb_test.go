package shelfdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/AlexandriaDAO/shelfdb/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = shelf.UID("alice")
	bob   = shelf.UID("bob")
	carol = shelf.UID("carol")
)

type oracleFunc func(ctx context.Context, assetID string, owner shelf.UID) (bool, error)

func (f oracleFunc) Owns(ctx context.Context, assetID string, owner shelf.UID) (bool, error) {
	return f(ctx, assetID, owner)
}

func testEngine(t *testing.T, mod ...func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Logger: utils.NewDefaultLogger(slog.LevelError),
		Clock:  shelf.NewLogicalClock(1000),
	}
	for _, m := range mod {
		m(&opts)
	}
	e, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func itemContents(t *testing.T, e *Engine, shelfID string) []shelf.ItemContent {
	t.Helper()
	items, err := e.OrderedItems(shelfID)
	require.NoError(t, err)
	var out []shelf.ItemContent
	for item := range items {
		out = append(out, item.Content)
	}
	return out
}

func TestCreateAndGetShelf(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	s, err := e.CreateShelf(ctx, alice, "reading list", "books to read", []string{"Books", "fiction"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, []string{"books", "fiction"}, s.Tags)

	got, err := e.GetShelf(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, alice, got.Owner)

	// returned copies do not alias engine state
	got.Title = "mangled"
	again, err := e.GetShelf(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "reading list", again.Title)

	_, err = e.GetShelf("missing")
	assert.ErrorIs(t, err, shelfdb_errors.ErrNotFound)
}

func TestCreateShelfValidation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.CreateShelf(ctx, shelf.Anonymous, "x", "", nil)
	assert.ErrorIs(t, err, shelfdb_errors.ErrUnauthorized)

	_, err = e.CreateShelf(ctx, alice, "  ", "", nil)
	assert.ErrorIs(t, err, shelfdb_errors.ErrValidation)

	_, err = e.CreateShelf(ctx, alice, "ok", "", []string{"bad tag!"})
	assert.ErrorIs(t, err, shelfdb_errors.ErrValidation)
}

func TestAddItemOrdering(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s, err := e.CreateShelf(ctx, alice, "mixed", "", nil)
	require.NoError(t, err)

	first, err := e.AddItem(ctx, alice, s.ID, shelf.Text("hello"), nil, false)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, alice, s.ID, shelf.AssetRef("123"), &first, true)
	require.NoError(t, err)

	assert.Equal(t, []shelf.ItemContent{shelf.AssetRef("123"), shelf.Text("hello")}, itemContents(t, e, s.ID))
}

func TestMoveAndReorder(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s, err := e.CreateShelf(ctx, alice, "ordered", "", nil)
	require.NoError(t, err)

	a, _ := e.AddItem(ctx, alice, s.ID, shelf.Text("a"), nil, false)
	b, _ := e.AddItem(ctx, alice, s.ID, shelf.Text("b"), nil, false)
	c, _ := e.AddItem(ctx, alice, s.ID, shelf.Text("c"), nil, false)

	require.NoError(t, e.MoveItem(ctx, alice, s.ID, c, &a, true))
	assert.Equal(t, []shelf.ItemContent{shelf.Text("c"), shelf.Text("a"), shelf.Text("b")}, itemContents(t, e, s.ID))

	require.NoError(t, e.SetItemOrder(ctx, alice, s.ID, []uint32{b, c, a}))
	assert.Equal(t, []shelf.ItemContent{shelf.Text("b"), shelf.Text("c"), shelf.Text("a")}, itemContents(t, e, s.ID))

	assert.ErrorIs(t, e.SetItemOrder(ctx, alice, s.ID, []uint32{a, b}), shelfdb_errors.ErrValidation)
}

func TestNestedShelfCycleRejected(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	parent, err := e.CreateShelf(ctx, alice, "parent", "", nil)
	require.NoError(t, err)
	child, err := e.CreateShelf(ctx, alice, "child", "", nil)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, alice, parent.ID, shelf.NestedShelf(child.ID), nil, false)
	require.NoError(t, err)

	// the reverse edge would make parent contain itself
	_, err = e.AddItem(ctx, alice, child.ID, shelf.NestedShelf(parent.ID), nil, false)
	assert.ErrorIs(t, err, shelfdb_errors.ErrCircularReference)
	assert.Empty(t, itemContents(t, e, child.ID))

	_, err = e.AddItem(ctx, alice, parent.ID, shelf.NestedShelf(parent.ID), nil, false)
	assert.ErrorIs(t, err, shelfdb_errors.ErrCircularReference)
}

func TestNestedShelfBackRefs(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	parent, err := e.CreateShelf(ctx, alice, "parent", "", nil)
	require.NoError(t, err)
	child, err := e.CreateShelf(ctx, alice, "child", "", nil)
	require.NoError(t, err)

	itemID, err := e.AddItem(ctx, alice, parent.ID, shelf.NestedShelf(child.ID), nil, false)
	require.NoError(t, err)

	got, err := e.GetShelf(child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{parent.ID}, got.AppearsIn)

	content, err := e.RemoveItem(ctx, alice, parent.ID, itemID)
	require.NoError(t, err)
	assert.Equal(t, shelf.NestedShelf(child.ID), content)

	got, err = e.GetShelf(child.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AppearsIn)
}

func TestAssetOracle(t *testing.T) {
	e := testEngine(t, func(o *Options) {
		o.Oracle = oracleFunc(func(_ context.Context, assetID string, owner shelf.UID) (bool, error) {
			return assetID == "7" && owner == alice, nil
		})
	})
	ctx := context.Background()
	s, err := e.CreateShelf(ctx, alice, "assets", "", nil)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, alice, s.ID, shelf.AssetRef("7"), nil, false)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, alice, s.ID, shelf.AssetRef("8"), nil, false)
	assert.ErrorIs(t, err, shelfdb_errors.ErrUnauthorized)
	assert.Len(t, itemContents(t, e, s.ID), 1)
}

func TestAssetIndexSymmetry(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s1, err := e.CreateShelf(ctx, alice, "one", "", nil)
	require.NoError(t, err)
	s2, err := e.CreateShelf(ctx, alice, "two", "", nil)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, alice, s1.ID, shelf.AssetRef("55"), nil, false)
	require.NoError(t, err)
	itemID, err := e.AddItem(ctx, alice, s2.ID, shelf.AssetRef("55"), nil, false)
	require.NoError(t, err)

	ids, err := e.ShelvesOfAsset("55")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, ids)

	_, err = e.RemoveItem(ctx, alice, s2.ID, itemID)
	require.NoError(t, err)
	ids, err = e.ShelvesOfAsset("55")
	require.NoError(t, err)
	assert.Equal(t, []string{s1.ID}, ids)
}

func TestEditorsAndAuthorization(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s, err := e.CreateShelf(ctx, alice, "shared", "", nil)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, bob, s.ID, shelf.Text("nope"), nil, false)
	assert.ErrorIs(t, err, shelfdb_errors.ErrUnauthorized)

	assert.ErrorIs(t, e.AddEditor(ctx, bob, s.ID, bob), shelfdb_errors.ErrUnauthorized)
	require.NoError(t, e.AddEditor(ctx, alice, s.ID, bob))
	assert.ErrorIs(t, e.AddEditor(ctx, alice, s.ID, bob), shelfdb_errors.ErrValidation)

	_, err = e.AddItem(ctx, bob, s.ID, shelf.Text("now allowed"), nil, false)
	require.NoError(t, err)

	require.NoError(t, e.RemoveEditor(ctx, alice, s.ID, bob))
	assert.ErrorIs(t, e.RemoveEditor(ctx, alice, s.ID, bob), shelfdb_errors.ErrNotFound)
	_, err = e.AddItem(ctx, bob, s.ID, shelf.Text("revoked"), nil, false)
	assert.ErrorIs(t, err, shelfdb_errors.ErrUnauthorized)
}

func TestUpdateMetadata(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s, err := e.CreateShelf(ctx, alice, "old title", "", nil)
	require.NoError(t, err)
	require.NoError(t, e.AddEditor(ctx, alice, s.ID, bob))

	title := "new title"
	require.NoError(t, e.UpdateMetadata(ctx, bob, s.ID, &title, nil, nil))
	got, err := e.GetShelf(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)

	open := true
	assert.ErrorIs(t, e.UpdateMetadata(ctx, bob, s.ID, nil, nil, &open), shelfdb_errors.ErrUnauthorized)
	require.NoError(t, e.UpdateMetadata(ctx, alice, s.ID, nil, nil, &open))

	// public editing lets anyone authenticated contribute
	_, err = e.AddItem(ctx, carol, s.ID, shelf.Text("drive-by"), nil, false)
	require.NoError(t, err)
}

func TestTagLifecycle(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	var shelves []string
	for _, title := range []string{"one", "two", "three"} {
		s, err := e.CreateShelf(ctx, alice, title, "", []string{"go"})
		require.NoError(t, err)
		shelves = append(shelves, s.ID)
	}

	meta, found, err := e.TagMeta("go")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(3), meta.ShelfCount)

	require.NoError(t, e.RemoveTag(ctx, alice, shelves[0], "go"))
	meta, found, err = e.TagMeta("go")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(2), meta.ShelfCount)

	require.NoError(t, e.RemoveTag(ctx, alice, shelves[1], "go"))
	require.NoError(t, e.RemoveTag(ctx, alice, shelves[2], "go"))

	_, found, err = e.TagMeta("go")
	require.NoError(t, err)
	assert.False(t, found)

	page, err := e.TagsByPrefix("g", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestAddTagNormalizesAndLimits(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s, err := e.CreateShelf(ctx, alice, "tagged", "", nil)
	require.NoError(t, err)

	require.NoError(t, e.AddTag(ctx, alice, s.ID, "  GoLang "))
	got, err := e.GetShelf(s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, got.Tags)

	assert.ErrorIs(t, e.AddTag(ctx, alice, s.ID, "golang"), shelfdb_errors.ErrValidation)
	assert.ErrorIs(t, e.RemoveTag(ctx, alice, s.ID, "absent"), shelfdb_errors.ErrNotFound)
}

func TestNestedTwiceKeepsBackRefUntilLastRemoval(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	parent, err := e.CreateShelf(ctx, alice, "parent", "", nil)
	require.NoError(t, err)
	child, err := e.CreateShelf(ctx, alice, "child", "", nil)
	require.NoError(t, err)

	i1, err := e.AddItem(ctx, alice, parent.ID, shelf.NestedShelf(child.ID), nil, false)
	require.NoError(t, err)
	i2, err := e.AddItem(ctx, alice, parent.ID, shelf.NestedShelf(child.ID), nil, false)
	require.NoError(t, err)

	// one nesting item remains, so the back-reference stays
	_, err = e.RemoveItem(ctx, alice, parent.ID, i1)
	require.NoError(t, err)
	got, err := e.GetShelf(child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{parent.ID}, got.AppearsIn)

	_, err = e.RemoveItem(ctx, alice, parent.ID, i2)
	require.NoError(t, err)
	got, err = e.GetShelf(child.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AppearsIn)
}

func TestConcurrentTaggingFromDifferentShelves(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		s, err := e.CreateShelf(ctx, alice, fmt.Sprintf("shelf %d", i), "", nil)
		require.NoError(t, err)
		ids[i] = s.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.AddTag(ctx, alice, id, "shared"))
		}()
	}
	wg.Wait()

	meta, found, err := e.TagMeta("shared")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(n), meta.ShelfCount)

	page, err := e.PopularTags(nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, uint64(n), page.Items[0].Count)

	shelves, err := e.ShelvesWithTag("shared", nil, 50)
	require.NoError(t, err)
	assert.Len(t, shelves.Items, n)
}

func TestConcurrentCreateWithSharedTag(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.CreateShelf(ctx, alice, fmt.Sprintf("parallel %d", i), "", []string{"burst"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	meta, found, err := e.TagMeta("burst")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(n), meta.ShelfCount)
}

func TestUserShelfLimit(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	for i := 0; i < shelf.MaxUserShelves; i++ {
		_, err := e.CreateShelf(ctx, alice, fmt.Sprintf("shelf %d", i), "", nil)
		require.NoError(t, err)
	}
	_, err := e.CreateShelf(ctx, alice, "one too many", "", nil)
	assert.ErrorIs(t, err, shelfdb_errors.ErrLimitExceeded)

	// the cap is per owner
	_, err = e.CreateShelf(ctx, bob, "unaffected", "", nil)
	require.NoError(t, err)
}

func TestAssetBacklinkSaturation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	for i := 0; i <= shelf.MaxAssetBacklinks; i++ {
		s, err := e.CreateShelf(ctx, alice, fmt.Sprintf("holder %d", i), "", nil)
		require.NoError(t, err)
		// the insert succeeds even once membership tracking is saturated
		_, err = e.AddItem(ctx, alice, s.ID, shelf.AssetRef("9"), nil, false)
		require.NoError(t, err)
	}

	ids, err := e.ShelvesOfAsset("9")
	require.NoError(t, err)
	assert.Len(t, ids, shelf.MaxAssetBacklinks)
}

func TestCloseTwice(t *testing.T) {
	opts := Options{Logger: utils.NewDefaultLogger(slog.LevelError)}
	e, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Close(), shelfdb_errors.ErrClosed)
}

func TestStatsRecordOperations(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	_, err := e.CreateShelf(ctx, alice, "stats", "", nil)
	require.NoError(t, err)
	stats := e.Stats()
	assert.Contains(t, stats, "create_shelf")
}
