package shelfdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/cockroachdb/pebble"
	pkgerrors "github.com/pkg/errors"
)

// Every mutating operation runs in two phases: validation (structural checks,
// authorization, the asset-ownership oracle) completes before any write is
// planned, then the whole change commits through one batch. The oracle call
// is the only suspension point and it sits strictly before the write lock;
// existence checks done before it are not repeated afterwards.

func (e *Engine) ownerShelfCount(owner shelf.UID) (uint64, error) {
	data, closer, err := e.db.Get(ownerCountKey(string(owner)))
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(err, "read owner shelf count")
	}
	return binary.BigEndian.Uint64(data), nil
}

func u64be(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// CreateShelf validates the inputs, assigns the shelf id and commits the
// record together with its timeline and tag index entries.
func (e *Engine) CreateShelf(ctx context.Context, as shelf.UID, title, description string, tags []string) (s *shelf.Shelf, err error) {
	ctx = e.opCtx(ctx, "create_shelf")
	defer func(start time.Time) { e.observe("create_shelf", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return nil, err
	}
	if err = shelf.ValidateTitle(title); err != nil {
		return nil, err
	}
	if err = shelf.ValidateDescription(description); err != nil {
		return nil, err
	}
	norm, err := shelf.NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	lockSet := []string{"owner/" + string(as), "pool"}
	for _, tag := range norm {
		lockSet = append(lockSet, "tag/"+tag)
	}
	unlock := e.lockKeys(lockSet...)
	defer unlock()
	count, err := e.ownerShelfCount(as)
	if err != nil {
		return nil, err
	}
	if count >= shelf.MaxUserShelves {
		return nil, fmt.Errorf("%w: owner holds %d shelves already", shelfdb_errors.ErrLimitExceeded, shelf.MaxUserShelves)
	}

	now := e.clock.Now()
	s = shelf.New(shelf.NewID(as, now, title), title, description, as, norm, now)
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s); err != nil {
		return nil, err
	}
	if err = batch.Set(ownerCountKey(string(as)), u64be(count+1), e.WriteOptions()); err != nil {
		return nil, err
	}
	if err = e.idx.OnShelfCreated(batch, s); err != nil {
		return nil, err
	}
	for _, tag := range norm {
		if err = e.idx.AddTag(batch, s, tag, now); err != nil {
			return nil, err
		}
	}
	e.commit(ctx, batch)
	e.cache.Add(s.ID, s)
	e.log.InfoCtx(ctx, "shelf created", "shelf", s.ID, "owner", string(as))
	return s.Clone(), nil
}

// AddItem inserts content relative to the reference item (appended when the
// reference is nil and before is false). Asset references are checked against
// the ownership oracle, nested shelves against the cycle rule.
func (e *Engine) AddItem(ctx context.Context, as shelf.UID, shelfID string, content shelf.ItemContent, reference *uint32, before bool) (itemID uint32, err error) {
	ctx = e.opCtx(ctx, "add_item")
	defer func(start time.Time) { e.observe("add_item", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return 0, err
	}
	if err = content.Validate(); err != nil {
		return 0, err
	}
	if _, err = e.loadShelf(shelfID); err != nil {
		return 0, err
	}
	if content.Kind == shelf.KindAsset && e.oracle != nil {
		owned, oerr := e.oracle.Owns(ctx, content.AssetID, as)
		if oerr != nil {
			return 0, pkgerrors.Wrap(oerr, "asset ownership check")
		}
		if !owned {
			return 0, fmt.Errorf("%w: caller does not own asset %s", shelfdb_errors.ErrUnauthorized, content.AssetID)
		}
	}

	lockSet := []string{shelfID}
	switch content.Kind {
	case shelf.KindShelf:
		lockSet = append(lockSet, content.ShelfID)
	case shelf.KindAsset:
		lockSet = append(lockSet, "asset/"+content.AssetID)
	}
	unlock := e.lockKeys(lockSet...)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return 0, err
	}
	if !cur.CanEdit(as) {
		return 0, fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}
	var target *shelf.Shelf
	if content.Kind == shelf.KindShelf {
		if target, err = e.loadShelf(content.ShelfID); err != nil {
			return 0, err
		}
		if err = shelf.CheckNesting(shelfID, content.ShelfID, e.loadShelf); err != nil {
			return 0, err
		}
	}

	s2 := cur.Clone()
	itemID, err = s2.InsertItem(content, reference, before, shelf.DefaultPositionStep)
	if err != nil {
		return 0, err
	}
	s2.UpdatedAt = e.clock.Now()
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s2); err != nil {
		return 0, err
	}
	var t2 *shelf.Shelf
	switch content.Kind {
	case shelf.KindAsset:
		if err = e.idx.AddAssetRef(batch, content.AssetID, shelfID); err != nil {
			return 0, err
		}
	case shelf.KindShelf:
		t2 = target.Clone()
		t2.AddBackRef(shelfID)
		if err = e.putShelf(batch, t2); err != nil {
			return 0, err
		}
	}
	e.commit(ctx, batch)
	e.cache.Add(s2.ID, s2)
	if t2 != nil {
		e.cache.Add(t2.ID, t2)
	}
	return itemID, nil
}

// RemoveItem deletes the item and unwinds whatever secondary state its
// content fed: asset membership for asset refs, the target's back-reference
// for nested shelves.
func (e *Engine) RemoveItem(ctx context.Context, as shelf.UID, shelfID string, itemID uint32) (content shelf.ItemContent, err error) {
	ctx = e.opCtx(ctx, "remove_item")
	defer func(start time.Time) { e.observe("remove_item", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return content, err
	}
	peek, err := e.loadShelf(shelfID)
	if err != nil {
		return content, err
	}
	lockSet := []string{shelfID}
	if item, ok := peek.Items[itemID]; ok {
		switch item.Content.Kind {
		case shelf.KindShelf:
			lockSet = append(lockSet, item.Content.ShelfID)
		case shelf.KindAsset:
			lockSet = append(lockSet, "asset/"+item.Content.AssetID)
		}
	}
	unlock := e.lockKeys(lockSet...)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return content, err
	}
	if !cur.CanEdit(as) {
		return content, fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}

	s2 := cur.Clone()
	if content, err = s2.RemoveItem(itemID); err != nil {
		return content, err
	}
	s2.UpdatedAt = e.clock.Now()
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s2); err != nil {
		return content, err
	}
	var t2 *shelf.Shelf
	switch content.Kind {
	case shelf.KindAsset:
		if err = e.idx.RemoveAssetRef(batch, content.AssetID, shelfID); err != nil {
			return content, err
		}
	case shelf.KindShelf:
		// the back-reference stays while another item still nests the target;
		// a vanished target just means there is nothing to clean
		if !s2.NestsShelf(content.ShelfID) {
			if target, terr := e.loadShelf(content.ShelfID); terr == nil {
				t2 = target.Clone()
				t2.RemoveBackRef(shelfID)
				if err = e.putShelf(batch, t2); err != nil {
					return content, err
				}
			}
		}
	}
	e.commit(ctx, batch)
	e.cache.Add(s2.ID, s2)
	if t2 != nil {
		e.cache.Add(t2.ID, t2)
	}
	return content, nil
}

// MoveItem repositions an item relative to a reference item.
func (e *Engine) MoveItem(ctx context.Context, as shelf.UID, shelfID string, itemID uint32, reference *uint32, before bool) (err error) {
	ctx = e.opCtx(ctx, "move_item")
	defer func(start time.Time) { e.observe("move_item", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	unlock := e.lockKeys(shelfID)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if !cur.CanEdit(as) {
		return fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}
	s2 := cur.Clone()
	if err = s2.MoveItem(itemID, reference, before, shelf.DefaultPositionStep); err != nil {
		return err
	}
	s2.UpdatedAt = e.clock.Now()
	return e.commitShelf(ctx, s2)
}

// SetItemOrder replaces all item positions following the given order, which
// must cover exactly the current item set.
func (e *Engine) SetItemOrder(ctx context.Context, as shelf.UID, shelfID string, orderedIDs []uint32) (err error) {
	ctx = e.opCtx(ctx, "set_item_order")
	defer func(start time.Time) { e.observe("set_item_order", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	unlock := e.lockKeys(shelfID)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if !cur.CanEdit(as) {
		return fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}
	s2 := cur.Clone()
	if err = s2.SetAbsoluteOrder(orderedIDs, shelf.DefaultPositionStep); err != nil {
		return err
	}
	s2.UpdatedAt = e.clock.Now()
	return e.commitShelf(ctx, s2)
}

// AddTag associates a tag with the shelf and moves all five tag indexes
// together.
func (e *Engine) AddTag(ctx context.Context, as shelf.UID, shelfID, tag string) (err error) {
	ctx = e.opCtx(ctx, "add_tag")
	defer func(start time.Time) { e.observe("add_tag", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return err
	}
	unlock := e.lockKeys(shelfID, "tag/"+norm)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if !cur.CanEdit(as) {
		return fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}
	s2 := cur.Clone()
	if err = s2.AddTag(norm); err != nil {
		return err
	}
	now := e.clock.Now()
	s2.UpdatedAt = now
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s2); err != nil {
		return err
	}
	if err = e.idx.AddTag(batch, s2, norm, now); err != nil {
		return err
	}
	e.commit(ctx, batch)
	e.cache.Add(s2.ID, s2)
	return nil
}

// RemoveTag is the mirror of AddTag; dropping the last use of a tag destroys
// its metadata and lexical entry.
func (e *Engine) RemoveTag(ctx context.Context, as shelf.UID, shelfID, tag string) (err error) {
	ctx = e.opCtx(ctx, "remove_tag")
	defer func(start time.Time) { e.observe("remove_tag", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	norm, err := shelf.NormalizeTag(tag)
	if err != nil {
		return err
	}
	unlock := e.lockKeys(shelfID, "tag/"+norm)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if !cur.CanEdit(as) {
		return fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}
	s2 := cur.Clone()
	if err = s2.RemoveTag(norm); err != nil {
		return err
	}
	now := e.clock.Now()
	s2.UpdatedAt = now
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s2); err != nil {
		return err
	}
	if err = e.idx.RemoveTag(batch, s2, norm, now); err != nil {
		return err
	}
	e.commit(ctx, batch)
	e.cache.Add(s2.ID, s2)
	return nil
}

// UpdateMetadata edits title and description (any editor) and the
// public-editing flag (owner only).
func (e *Engine) UpdateMetadata(ctx context.Context, as shelf.UID, shelfID string, title, description *string, publicEditing *bool) (err error) {
	ctx = e.opCtx(ctx, "update_metadata")
	defer func(start time.Time) { e.observe("update_metadata", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	if title != nil {
		if err = shelf.ValidateTitle(*title); err != nil {
			return err
		}
	}
	if description != nil {
		if err = shelf.ValidateDescription(*description); err != nil {
			return err
		}
	}
	unlock := e.lockKeys(shelfID)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if !cur.CanEdit(as) {
		return fmt.Errorf("%w: %s cannot edit shelf %s", shelfdb_errors.ErrUnauthorized, as, shelfID)
	}
	if publicEditing != nil && as != cur.Owner {
		return fmt.Errorf("%w: only the owner toggles public editing", shelfdb_errors.ErrUnauthorized)
	}
	s2 := cur.Clone()
	if title != nil {
		s2.Title = *title
	}
	if description != nil {
		s2.Description = *description
	}
	visibilityChanged := publicEditing != nil && *publicEditing != s2.PublicEditing
	if publicEditing != nil {
		s2.PublicEditing = *publicEditing
	}
	s2.UpdatedAt = e.clock.Now()
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s2); err != nil {
		return err
	}
	if visibilityChanged {
		if err = e.idx.RefreshGlobalEntry(batch, s2); err != nil {
			return err
		}
	}
	e.commit(ctx, batch)
	e.cache.Add(s2.ID, s2)
	return nil
}

// AddEditor grants edit rights. Owner only.
func (e *Engine) AddEditor(ctx context.Context, as shelf.UID, shelfID string, editor shelf.UID) (err error) {
	ctx = e.opCtx(ctx, "add_editor")
	defer func(start time.Time) { e.observe("add_editor", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	if !editor.Valid() {
		return fmt.Errorf("%w: editor identity is not usable", shelfdb_errors.ErrValidation)
	}
	unlock := e.lockKeys(shelfID)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if as != cur.Owner {
		return fmt.Errorf("%w: only the owner manages editors", shelfdb_errors.ErrUnauthorized)
	}
	if editor == cur.Owner || slices.Contains(cur.Editors, editor) {
		return fmt.Errorf("%w: %s already edits shelf %s", shelfdb_errors.ErrValidation, editor, shelfID)
	}
	s2 := cur.Clone()
	s2.Editors = append(s2.Editors, editor)
	s2.UpdatedAt = e.clock.Now()
	return e.commitShelf(ctx, s2)
}

// RemoveEditor revokes edit rights. Owner only.
func (e *Engine) RemoveEditor(ctx context.Context, as shelf.UID, shelfID string, editor shelf.UID) (err error) {
	ctx = e.opCtx(ctx, "remove_editor")
	defer func(start time.Time) { e.observe("remove_editor", start, err) }(time.Now())
	if err = requireUser(as); err != nil {
		return err
	}
	unlock := e.lockKeys(shelfID)
	defer unlock()
	cur, err := e.loadShelf(shelfID)
	if err != nil {
		return err
	}
	if as != cur.Owner {
		return fmt.Errorf("%w: only the owner manages editors", shelfdb_errors.ErrUnauthorized)
	}
	i := slices.Index(cur.Editors, editor)
	if i < 0 {
		return fmt.Errorf("%w: %s is not an editor of shelf %s", shelfdb_errors.ErrNotFound, editor, shelfID)
	}
	s2 := cur.Clone()
	s2.Editors = slices.Delete(s2.Editors, i, i+1)
	s2.UpdatedAt = e.clock.Now()
	return e.commitShelf(ctx, s2)
}

// commitShelf persists a single updated shelf record.
func (e *Engine) commitShelf(ctx context.Context, s *shelf.Shelf) (err error) {
	batch := e.db.NewBatch()
	defer func() {
		if err != nil {
			_ = batch.Close()
		}
	}()
	if err = e.putShelf(batch, s); err != nil {
		return err
	}
	e.commit(ctx, batch)
	e.cache.Add(s.ID, s)
	return nil
}

// GetShelf returns a copy of the shelf.
func (e *Engine) GetShelf(shelfID string) (*shelf.Shelf, error) {
	s, err := e.loadShelf(shelfID)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// OrderedItems yields the shelf's items in ascending position order. The
// sequence is lazy and restartable over a stable copy of the shelf.
func (e *Engine) OrderedItems(shelfID string) (iter.Seq[shelf.Item], error) {
	s, err := e.loadShelf(shelfID)
	if err != nil {
		return nil, err
	}
	return s.Clone().OrderedItems(), nil
}
