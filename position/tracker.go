// Package position implements fractional positional indexing: every tracked
// key owns a float64 position, new keys are placed between their neighbours,
// and the whole range is redistributed only when neighbouring positions get
// too close for float64 precision.
package position

import (
	"fmt"
	"iter"
	"sort"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/AlexandriaDAO/shelfdb/utils"
)

// MinGap is the smallest distance between a new position and either of its
// bounding neighbours that does not force a rebalance.
const MinGap = 1e-9

// Tracker keeps a bijective pair of views over its keys: key to position, and
// position to keys. Several keys may share one position only if they were
// inserted that way explicitly; Calculate never produces a collision without
// scheduling a rebalance.
type Tracker[K comparable] struct {
	pos     map[K]float64
	buckets map[float64][]K
	sorted  []float64 // distinct positions, ascending; rebuilt when dirty
	dirty   bool
}

func NewTracker[K comparable]() *Tracker[K] {
	return &Tracker[K]{
		pos:     make(map[K]float64),
		buckets: make(map[float64][]K),
	}
}

func (t *Tracker[K]) Len() int {
	return len(t.pos)
}

func (t *Tracker[K]) Position(key K) (float64, bool) {
	p, ok := t.pos[key]
	return p, ok
}

// Insert places key at the given position, replacing the key's previous
// position if it had one.
func (t *Tracker[K]) Insert(key K, position float64) {
	if _, ok := t.pos[key]; ok {
		t.Remove(key)
	}
	t.pos[key] = position
	t.buckets[position] = append(t.buckets[position], key)
	t.dirty = true
}

// Remove drops the key and returns the position it held.
func (t *Tracker[K]) Remove(key K) (float64, bool) {
	p, ok := t.pos[key]
	if !ok {
		return 0, false
	}
	delete(t.pos, key)
	bucket := t.buckets[p]
	for i, k := range bucket {
		if k == key {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(t.buckets, p)
	} else {
		t.buckets[p] = bucket
	}
	t.dirty = true
	return p, true
}

// rebuild heap-sorts the distinct positions into t.sorted.
func (t *Tracker[K]) rebuild() {
	if !t.dirty {
		return
	}
	var h utils.Heap[float64]
	for p := range t.buckets {
		h.Push(p)
	}
	t.sorted = t.sorted[:0]
	for h.Len() > 0 {
		t.sorted = append(t.sorted, h.Pop())
	}
	t.dirty = false
}

// Ordered yields (key, position) pairs in ascending position order. Keys that
// share a position come out in insertion order. The sequence is restartable.
func (t *Tracker[K]) Ordered() iter.Seq2[K, float64] {
	return func(yield func(K, float64) bool) {
		t.rebuild()
		for _, p := range t.sorted {
			for _, k := range t.buckets[p] {
				if !yield(k, p) {
					return
				}
			}
		}
	}
}

// Calculate returns the position for a new placement. With a nil reference the
// placement is before the whole range or after it. With a reference key the
// target slot is between the reference and its neighbour on the requested
// side. When the slot is too narrow the tracker rebalances once and retries;
// if the retry is still too narrow the computed position is accepted as-is.
func (t *Tracker[K]) Calculate(reference *K, before bool, step float64) (float64, error) {
	cand, narrow, err := t.calculate(reference, before, step)
	if err != nil {
		return 0, err
	}
	if narrow {
		t.Rebalance(step)
		cand, _, err = t.calculate(reference, before, step)
		if err != nil {
			return 0, err
		}
	}
	return cand, nil
}

func (t *Tracker[K]) calculate(reference *K, before bool, step float64) (cand float64, narrow bool, err error) {
	t.rebuild()
	if reference == nil {
		if len(t.sorted) == 0 {
			return 0, false, nil
		}
		if before {
			return t.sorted[0] - step, false, nil
		}
		return t.sorted[len(t.sorted)-1] + step, false, nil
	}
	ref, ok := t.pos[*reference]
	if !ok {
		return 0, false, fmt.Errorf("%w: reference key is not tracked", shelfdb_errors.ErrNotFound)
	}
	i := sort.SearchFloat64s(t.sorted, ref)
	var lower, upper float64
	var hasLower, hasUpper bool
	if before {
		upper, hasUpper = ref, true
		if i > 0 {
			lower, hasLower = t.sorted[i-1], true
		}
	} else {
		lower, hasLower = ref, true
		if i+1 < len(t.sorted) {
			upper, hasUpper = t.sorted[i+1], true
		}
	}
	switch {
	case hasLower && hasUpper:
		cand = lower + (upper-lower)/2
		if !(cand > lower && cand < upper) {
			return cand, true, nil
		}
		if cand-lower < MinGap || upper-cand < MinGap {
			return cand, true, nil
		}
	case hasLower:
		cand = lower + step
	default:
		cand = upper - step
	}
	return cand, false, nil
}

// Rebalance reassigns every key to i*step (i = 1..n) in ascending order of
// its prior position, preserving relative order exactly.
func (t *Tracker[K]) Rebalance(step float64) {
	t.rebuild()
	type placement struct {
		key K
		pos float64
	}
	ordered := make([]placement, 0, len(t.pos))
	i := 0
	for _, p := range t.sorted {
		for _, k := range t.buckets[p] {
			i++
			ordered = append(ordered, placement{key: k, pos: float64(i) * step})
		}
	}
	clear(t.pos)
	clear(t.buckets)
	for _, pl := range ordered {
		t.pos[pl.key] = pl.pos
		t.buckets[pl.pos] = append(t.buckets[pl.pos], pl.key)
	}
	t.dirty = true
}

// Snapshot returns a plain key-to-position map copy.
func (t *Tracker[K]) Snapshot() map[K]float64 {
	out := make(map[K]float64, len(t.pos))
	for k, p := range t.pos {
		out[k] = p
	}
	return out
}
