package shelf

import (
	"fmt"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
)

// CheckNesting reports ErrCircularReference when nesting target inside parent
// would make parent contain itself: either directly (target == parent) or
// because a depth-first walk of target's own nested shelves reaches parent.
//
// The visited set is scoped to this single check so legitimate diamond
// references (two branches nesting the same shelf) pass. The walk
// short-circuits on the first hit. Unresolvable nested ids are skipped: a
// dangling reference cannot close a cycle.
func CheckNesting(parentID, targetID string, resolve func(id string) (*Shelf, error)) error {
	if parentID == targetID {
		return fmt.Errorf("%w: shelf %s cannot contain itself", shelfdb_errors.ErrCircularReference, parentID)
	}
	visited := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		s, err := resolve(id)
		if err != nil {
			return nil
		}
		for _, item := range s.Items {
			if item.Content.Kind != KindShelf {
				continue
			}
			nested := item.Content.ShelfID
			if nested == parentID {
				return fmt.Errorf("%w: %s already contains %s", shelfdb_errors.ErrCircularReference, targetID, parentID)
			}
			if err := walk(nested); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(targetID)
}
