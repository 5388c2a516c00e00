package indexes

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/AlexandriaDAO/shelfdb/host"
	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// DiscoveryPoolSize bounds the shuffled-feed candidate pool.
const DiscoveryPoolSize = 1000

var IndexWriteCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelfdb",
	Subsystem: "indexes",
	Name:      "writes",
}, []string{"index", "op"})

var AssetBacklinkSkips = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "shelfdb",
	Subsystem: "indexes",
	Name:      "asset_backlink_skips",
})

// TagMeta is the per-tag bookkeeping record.
type TagMeta struct {
	FirstSeen       uint64 `json:"first_seen"`
	LastAssociation uint64 `json:"last_association"`
	LastActive      uint64 `json:"last_active"`
	ShelfCount      uint64 `json:"shelf_count"`
}

// TimelineEntry is the denormalized global-timeline record plus the
// timestamp recovered from its key.
type TimelineEntry struct {
	Timestamp     uint64    `json:"-"`
	ShelfID       string    `json:"shelf_id"`
	Owner         shelf.UID `json:"owner"`
	Tags          []string  `json:"tags,omitempty"`
	PublicEditing bool      `json:"public_editing,omitempty"`
}

type TagCount struct {
	Tag   string
	Count uint64
}

// Coordinator owns every secondary index. All writes go through the batch the
// engine commits, all reads go to committed state.
type Coordinator struct {
	h host.Host
}

func NewCoordinator(h host.Host) *Coordinator {
	return &Coordinator{h: h}
}

func (c *Coordinator) TagMeta(tag string) (TagMeta, bool, error) {
	var meta TagMeta
	data, closer, err := c.h.Database().Get(tagMetaKey(tag))
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return meta, false, nil
	}
	if err != nil {
		return meta, false, errors.Wrap(err, "read tag meta")
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, false, errors.Wrap(err, "decode tag meta")
	}
	return meta, true, nil
}

func globalEntryValue(s *shelf.Shelf) ([]byte, error) {
	entry := TimelineEntry{
		ShelfID:       s.ID,
		Owner:         s.Owner,
		Tags:          s.Tags,
		PublicEditing: s.PublicEditing,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Wrap(err, "encode timeline entry")
	}
	return data, nil
}

// OnShelfCreated inserts the owner-timeline and global-timeline entries and
// feeds the discovery pool while it has room.
func (c *Coordinator) OnShelfCreated(batch *pebble.Batch, s *shelf.Shelf) error {
	wo := c.h.WriteOptions()
	if err := batch.Set(ownerTimeKey(string(s.Owner), s.CreatedAt), []byte(s.ID), wo); err != nil {
		return err
	}
	value, err := globalEntryValue(s)
	if err != nil {
		return err
	}
	if err := batch.Set(globalTimeKey(s.CreatedAt), value, wo); err != nil {
		return err
	}
	IndexWriteCount.WithLabelValues("timeline", "add").Inc()

	size, err := c.poolSize()
	if err != nil {
		return err
	}
	if size < DiscoveryPoolSize {
		if err := batch.Set(poolKey(s.ID), []byte{}, wo); err != nil {
			return err
		}
		if err := batch.Set(poolCountKey, binary.BigEndian.AppendUint64(nil, size+1), wo); err != nil {
			return err
		}
		IndexWriteCount.WithLabelValues("pool", "add").Inc()
	}
	return nil
}

// RefreshGlobalEntry rewrites the denormalized global-timeline record after a
// tag or visibility change.
func (c *Coordinator) RefreshGlobalEntry(batch *pebble.Batch, s *shelf.Shelf) error {
	value, err := globalEntryValue(s)
	if err != nil {
		return err
	}
	IndexWriteCount.WithLabelValues("timeline", "refresh").Inc()
	return batch.Set(globalTimeKey(s.CreatedAt), value, c.h.WriteOptions())
}

// AddTag records one more shelf using the tag: metadata counters, both
// association directions, the popularity ranking, the lexical index and the
// per-tag creation timeline move together.
func (c *Coordinator) AddTag(batch *pebble.Batch, s *shelf.Shelf, tag string, now uint64) error {
	wo := c.h.WriteOptions()
	meta, found, err := c.TagMeta(tag)
	if err != nil {
		return err
	}
	if !found {
		meta.FirstSeen = now
	} else {
		if err := batch.Delete(popularityKey(meta.ShelfCount, tag), wo); err != nil {
			return err
		}
	}
	meta.ShelfCount++
	meta.LastAssociation = now
	meta.LastActive = now
	metaData, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "encode tag meta")
	}
	for _, kv := range []struct {
		key   []byte
		value []byte
	}{
		{tagMetaKey(tag), metaData},
		{popularityKey(meta.ShelfCount, tag), nil},
		{tagShelfKey(tag, s.ID), nil},
		{shelfTagKey(s.ID, tag), nil},
		{lexicalKey(tag), nil},
		{tagTimeKey(tag, s.CreatedAt, s.ID), nil},
	} {
		if err := batch.Set(kv.key, kv.value, wo); err != nil {
			return err
		}
	}
	IndexWriteCount.WithLabelValues("tag", "add").Inc()
	return c.RefreshGlobalEntry(batch, s)
}

// RemoveTag is the mirror image of AddTag. When the last shelf drops the tag
// its metadata and lexical entry disappear entirely.
func (c *Coordinator) RemoveTag(batch *pebble.Batch, s *shelf.Shelf, tag string, now uint64) error {
	wo := c.h.WriteOptions()
	meta, found, err := c.TagMeta(tag)
	if err != nil {
		return err
	}
	if !found || meta.ShelfCount == 0 {
		return fmt.Errorf("tag %q has no metadata to decrement", tag)
	}
	if err := batch.Delete(popularityKey(meta.ShelfCount, tag), wo); err != nil {
		return err
	}
	meta.ShelfCount--
	meta.LastActive = now
	if meta.ShelfCount == 0 {
		if err := batch.Delete(tagMetaKey(tag), wo); err != nil {
			return err
		}
		if err := batch.Delete(lexicalKey(tag), wo); err != nil {
			return err
		}
	} else {
		metaData, err := json.Marshal(meta)
		if err != nil {
			return errors.Wrap(err, "encode tag meta")
		}
		if err := batch.Set(tagMetaKey(tag), metaData, wo); err != nil {
			return err
		}
		if err := batch.Set(popularityKey(meta.ShelfCount, tag), nil, wo); err != nil {
			return err
		}
	}
	for _, key := range [][]byte{
		tagShelfKey(tag, s.ID),
		shelfTagKey(s.ID, tag),
		tagTimeKey(tag, s.CreatedAt, s.ID),
	} {
		if err := batch.Delete(key, wo); err != nil {
			return err
		}
	}
	IndexWriteCount.WithLabelValues("tag", "remove").Inc()
	return c.RefreshGlobalEntry(batch, s)
}

// AssetShelves returns the shelves referencing an asset.
func (c *Coordinator) AssetShelves(assetID string) ([]string, error) {
	data, closer, err := c.h.Database().Get(assetKey(assetID))
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read asset membership")
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.Wrap(err, "decode asset membership")
	}
	return ids, nil
}

// AddAssetRef appends the shelf to the asset's membership list. A saturated
// list makes membership tracking best-effort: the addition is skipped and
// logged, not failed.
func (c *Coordinator) AddAssetRef(batch *pebble.Batch, assetID, shelfID string) error {
	ids, err := c.AssetShelves(assetID)
	if err != nil {
		return err
	}
	if slices.Contains(ids, shelfID) {
		return nil
	}
	if len(ids) >= shelf.MaxAssetBacklinks {
		AssetBacklinkSkips.Inc()
		c.h.Logger().Warn("asset membership list saturated, skipping",
			"asset", assetID, "shelf", shelfID)
		return nil
	}
	ids = append(ids, shelfID)
	data, err := json.Marshal(ids)
	if err != nil {
		return errors.Wrap(err, "encode asset membership")
	}
	IndexWriteCount.WithLabelValues("asset", "add").Inc()
	return batch.Set(assetKey(assetID), data, c.h.WriteOptions())
}

// RemoveAssetRef drops the shelf from the membership list, deleting the list
// once empty.
func (c *Coordinator) RemoveAssetRef(batch *pebble.Batch, assetID, shelfID string) error {
	ids, err := c.AssetShelves(assetID)
	if err != nil {
		return err
	}
	i := slices.Index(ids, shelfID)
	if i < 0 {
		return nil
	}
	ids = slices.Delete(ids, i, i+1)
	IndexWriteCount.WithLabelValues("asset", "remove").Inc()
	if len(ids) == 0 {
		return batch.Delete(assetKey(assetID), c.h.WriteOptions())
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return errors.Wrap(err, "encode asset membership")
	}
	return batch.Set(assetKey(assetID), data, c.h.WriteOptions())
}

func (c *Coordinator) poolSize() (uint64, error) {
	data, closer, err := c.h.Database().Get(poolCountKey)
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read discovery pool size")
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("discovery pool size record is %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
