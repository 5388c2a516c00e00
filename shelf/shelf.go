// Package shelf holds the ordered-collection data model: shelves, items, the
// content union, identities, limits and the clock. Everything here enforces
// structural invariants only; authorization and index upkeep live with the
// engine.
package shelf

import (
	"fmt"
	"iter"
	"slices"

	"github.com/AlexandriaDAO/shelfdb/position"
	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
)

type Item struct {
	ID      uint32      `json:"id"`
	Content ItemContent `json:"content"`
}

// Shelf is an owned, ordered collection. Items and ItemPositions always agree:
// every item id has exactly one tracked position and vice versa.
type Shelf struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	Owner         UID                `json:"owner"`
	Editors       []UID              `json:"editors,omitempty"`
	CreatedAt     uint64             `json:"created_at"`
	UpdatedAt     uint64             `json:"updated_at"`
	Tags          []string           `json:"tags,omitempty"`
	PublicEditing bool               `json:"public_editing,omitempty"`
	AppearsIn     []string           `json:"appears_in,omitempty"`
	Items         map[uint32]Item    `json:"items"`
	ItemPositions map[uint32]float64 `json:"item_positions"`
	// ItemCounter is the monotonic item-id source. It never decreases, so ids
	// are not reused after removals.
	ItemCounter uint32 `json:"item_counter,omitempty"`

	tracker *position.Tracker[uint32]
}

// New builds an empty shelf. Inputs must be pre-validated and tags
// pre-normalized by the caller.
func New(id, title, description string, owner UID, tags []string, createdAt uint64) *Shelf {
	return &Shelf{
		ID:            id,
		Title:         title,
		Description:   description,
		Owner:         owner,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Tags:          slices.Clone(tags),
		Items:         make(map[uint32]Item),
		ItemPositions: make(map[uint32]float64),
	}
}

// Tracker returns the positional index over item ids, rebuilding it from
// ItemPositions after a decode.
func (s *Shelf) Tracker() *position.Tracker[uint32] {
	if s.tracker == nil {
		t := position.NewTracker[uint32]()
		for id, p := range s.ItemPositions {
			t.Insert(id, p)
		}
		s.tracker = t
	}
	return s.tracker
}

func (s *Shelf) syncPositions() {
	s.ItemPositions = s.tracker.Snapshot()
}

// CanEdit reports whether the identity may mutate shelf content.
func (s *Shelf) CanEdit(as UID) bool {
	if s.PublicEditing {
		return as.Valid()
	}
	return as == s.Owner || slices.Contains(s.Editors, as)
}

func (s *Shelf) nextItemID() uint32 {
	// records written before the counter existed catch it up to the live max
	for id := range s.Items {
		if id > s.ItemCounter {
			s.ItemCounter = id
		}
	}
	s.ItemCounter++
	return s.ItemCounter
}

// InsertItem adds content at a position relative to the reference item, or
// appended (reference nil, before false) / prepended (reference nil, before
// true). Content must be pre-validated.
func (s *Shelf) InsertItem(content ItemContent, reference *uint32, before bool, step float64) (uint32, error) {
	if len(s.Items) >= MaxItemsPerShelf {
		return 0, fmt.Errorf("%w: shelf holds %d items already", shelfdb_errors.ErrLimitExceeded, MaxItemsPerShelf)
	}
	pos, err := s.Tracker().Calculate(reference, before, step)
	if err != nil {
		return 0, err
	}
	id := s.nextItemID()
	s.Items[id] = Item{ID: id, Content: content}
	s.tracker.Insert(id, pos)
	s.syncPositions()
	return id, nil
}

// MoveItem repositions an existing item relative to the reference item.
func (s *Shelf) MoveItem(itemID uint32, reference *uint32, before bool, step float64) error {
	if _, ok := s.Items[itemID]; !ok {
		return fmt.Errorf("%w: item %d", shelfdb_errors.ErrNotFound, itemID)
	}
	if reference != nil {
		if _, ok := s.Items[*reference]; !ok {
			return fmt.Errorf("%w: reference item %d", shelfdb_errors.ErrNotFound, *reference)
		}
		if *reference == itemID {
			return fmt.Errorf("%w: item cannot be its own reference", shelfdb_errors.ErrValidation)
		}
	}
	t := s.Tracker()
	old, _ := t.Remove(itemID)
	pos, err := t.Calculate(reference, before, step)
	if err != nil {
		t.Insert(itemID, old)
		return err
	}
	t.Insert(itemID, pos)
	s.syncPositions()
	return nil
}

// RemoveItem drops the item and returns its content so the caller can clean
// up the secondary indices it fed.
func (s *Shelf) RemoveItem(itemID uint32) (ItemContent, error) {
	item, ok := s.Items[itemID]
	if !ok {
		return ItemContent{}, fmt.Errorf("%w: item %d", shelfdb_errors.ErrNotFound, itemID)
	}
	delete(s.Items, itemID)
	s.Tracker().Remove(itemID)
	s.syncPositions()
	return item.Content, nil
}

// OrderedItems yields items in ascending position order. The sequence is lazy
// and restartable.
func (s *Shelf) OrderedItems() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for id := range s.Tracker().Ordered() {
			if !yield(s.Items[id]) {
				return
			}
		}
	}
}

// SetAbsoluteOrder replaces all positions with i*step following the given
// order. The id list must be exactly the current item id set.
func (s *Shelf) SetAbsoluteOrder(orderedIDs []uint32, step float64) error {
	if len(orderedIDs) != len(s.Items) {
		return fmt.Errorf("%w: order lists %d ids, shelf has %d items", shelfdb_errors.ErrValidation, len(orderedIDs), len(s.Items))
	}
	seen := make(map[uint32]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return fmt.Errorf("%w: duplicate item id %d in order", shelfdb_errors.ErrValidation, id)
		}
		if _, ok := s.Items[id]; !ok {
			return fmt.Errorf("%w: item %d", shelfdb_errors.ErrNotFound, id)
		}
		seen[id] = true
	}
	t := position.NewTracker[uint32]()
	for i, id := range orderedIDs {
		t.Insert(id, float64(i+1)*step)
	}
	s.tracker = t
	s.syncPositions()
	return nil
}

// AddTag appends a pre-normalized tag.
func (s *Shelf) AddTag(tag string) error {
	if slices.Contains(s.Tags, tag) {
		return fmt.Errorf("%w: tag %q already on shelf", shelfdb_errors.ErrValidation, tag)
	}
	if len(s.Tags) >= MaxTagsPerShelf {
		return fmt.Errorf("%w: shelf carries %d tags already", shelfdb_errors.ErrLimitExceeded, MaxTagsPerShelf)
	}
	s.Tags = append(s.Tags, tag)
	return nil
}

func (s *Shelf) RemoveTag(tag string) error {
	i := slices.Index(s.Tags, tag)
	if i < 0 {
		return fmt.Errorf("%w: tag %q", shelfdb_errors.ErrNotFound, tag)
	}
	s.Tags = slices.Delete(s.Tags, i, i+1)
	return nil
}

// NestsShelf reports whether any item nests the given shelf.
func (s *Shelf) NestsShelf(shelfID string) bool {
	for _, item := range s.Items {
		if item.Content.Kind == KindShelf && item.Content.ShelfID == shelfID {
			return true
		}
	}
	return false
}

// AddBackRef records a parent shelf in AppearsIn, evicting the oldest entry
// once the list is full.
func (s *Shelf) AddBackRef(parentID string) {
	if slices.Contains(s.AppearsIn, parentID) {
		return
	}
	s.AppearsIn = append(s.AppearsIn, parentID)
	if len(s.AppearsIn) > MaxAppearsInCount {
		s.AppearsIn = s.AppearsIn[1:]
	}
}

func (s *Shelf) RemoveBackRef(parentID string) {
	if i := slices.Index(s.AppearsIn, parentID); i >= 0 {
		s.AppearsIn = slices.Delete(s.AppearsIn, i, i+1)
	}
}

// Clone deep-copies the shelf. The positional tracker is rebuilt lazily on
// the copy.
func (s *Shelf) Clone() *Shelf {
	cp := *s
	cp.tracker = nil
	cp.Editors = slices.Clone(s.Editors)
	cp.Tags = slices.Clone(s.Tags)
	cp.AppearsIn = slices.Clone(s.AppearsIn)
	cp.Items = make(map[uint32]Item, len(s.Items))
	for id, it := range s.Items {
		cp.Items[id] = it
	}
	cp.ItemPositions = make(map[uint32]float64, len(s.ItemPositions))
	for id, p := range s.ItemPositions {
		cp.ItemPositions[id] = p
	}
	return &cp
}
