package shelf

import (
	"fmt"
	"testing"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nest builds a resolver over an adjacency map of shelf id -> nested shelf ids.
func nest(graph map[string][]string) func(id string) (*Shelf, error) {
	return func(id string) (*Shelf, error) {
		nested, ok := graph[id]
		if !ok {
			return nil, fmt.Errorf("%w: shelf %s", shelfdb_errors.ErrNotFound, id)
		}
		s := New(id, id, "", "alice", nil, 1)
		for _, n := range nested {
			_, err := s.InsertItem(NestedShelf(n), nil, false, DefaultPositionStep)
			if err != nil {
				return nil, err
			}
		}
		return s, nil
	}
}

func TestCheckNestingSelf(t *testing.T) {
	err := CheckNesting("a", "a", nest(nil))
	assert.ErrorIs(t, err, shelfdb_errors.ErrCircularReference)
}

func TestCheckNestingDirectCycle(t *testing.T) {
	// b already contains a; nesting b into a would close the loop
	resolve := nest(map[string][]string{"a": {}, "b": {"a"}})
	err := CheckNesting("a", "b", resolve)
	assert.ErrorIs(t, err, shelfdb_errors.ErrCircularReference)
}

func TestCheckNestingDeepCycle(t *testing.T) {
	resolve := nest(map[string][]string{
		"a": {},
		"b": {"c"},
		"c": {"d"},
		"d": {"a"},
	})
	err := CheckNesting("a", "b", resolve)
	assert.ErrorIs(t, err, shelfdb_errors.ErrCircularReference)
}

func TestCheckNestingDiamondIsFine(t *testing.T) {
	// two branches nesting the same shelf is legitimate
	resolve := nest(map[string][]string{
		"b": {"c", "d"},
		"c": {"e"},
		"d": {"e"},
		"e": {},
	})
	require.NoError(t, CheckNesting("a", "b", resolve))
}

func TestCheckNestingDanglingReference(t *testing.T) {
	// "ghost" resolves to nothing; a dangling id cannot close a cycle
	resolve := nest(map[string][]string{"b": {"ghost"}})
	require.NoError(t, CheckNesting("a", "b", resolve))
}
