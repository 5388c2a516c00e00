// Package shelfdb is a curation engine for user-owned ordered collections
// ("shelves") backed by Pebble. Items carry text, external asset references
// or nested shelves; fractional positions keep them ordered without
// renumbering; a set of secondary indexes (tags, timelines, asset
// membership) stays consistent with the shelf records because every mutation
// commits through a single batch.
package shelfdb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexandriaDAO/shelfdb/indexes"
	"github.com/AlexandriaDAO/shelfdb/shelf"
	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/AlexandriaDAO/shelfdb/utils"
)

const defaultLogLevel = slog.LevelInfo

// AssetOracle answers whether an identity owns an external asset. It is
// consulted once per asset-bearing item insertion, before any mutation.
type AssetOracle interface {
	Owns(ctx context.Context, assetID string, owner shelf.UID) (bool, error)
}

type Options struct {
	Logger utils.Logger
	Clock  shelf.Clock
	// Oracle verifies external asset ownership. Nil skips verification.
	Oracle AssetOracle
	// SyncWrites forces a WAL sync on every commit.
	SyncWrites     bool
	ShelfCacheSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(defaultLogLevel)
	}
	if o.Clock == nil {
		o.Clock = &shelf.SystemClock{}
	}
	if o.ShelfCacheSize == 0 {
		o.ShelfCacheSize = 10000
	}
}

type Engine struct {
	db  *pebble.DB
	dir string

	log    utils.Logger
	clock  shelf.Clock
	oracle AssetOracle
	opts   Options

	idx   *indexes.Coordinator
	cache *lru.Cache[string, *shelf.Shelf]
	locks *xsync.MapOf[string, *sync.Mutex]

	latency utils.CMap[string, *utils.AvgVal]
	closed  atomic.Bool
}

func Open(dir string, opts Options) (*Engine, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open substrate")
	}
	cache, _ := lru.New[string, *shelf.Shelf](opts.ShelfCacheSize)
	e := &Engine{
		db:     db,
		dir:    dir,
		log:    opts.Logger,
		clock:  opts.Clock,
		oracle: opts.Oracle,
		opts:   opts,
		cache:  cache,
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
	e.idx = indexes.NewCoordinator(e)
	e.log.Info("engine open", "dir", dir)
	return e, nil
}

func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return shelfdb_errors.ErrClosed
	}
	return e.db.Close()
}

// Database, WriteOptions, Logger and Now satisfy host.Host for the index
// coordinator.
func (e *Engine) Database() *pebble.DB { return e.db }

func (e *Engine) WriteOptions() *pebble.WriteOptions {
	if e.opts.SyncWrites {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (e *Engine) Logger() utils.Logger { return e.log }

func (e *Engine) Now() uint64 { return e.clock.Now() }

// opCtx stamps the logging context with the operation name and a fresh id.
func (e *Engine) opCtx(ctx context.Context, op string) context.Context {
	return utils.WithDefaultArgs(ctx, "op", op, "op_id", uuid.NewString())
}

func (e *Engine) observe(op string, start time.Time, err error) {
	sec := time.Since(start).Seconds()
	OpDuration.WithLabelValues(op).Observe(sec)
	result := "ok"
	if err != nil {
		result = "error"
	}
	OpCount.WithLabelValues(op, result).Inc()
	if avg, loaded := e.latency.LoadOrStore(op, utils.NewAvgVal(sec)); loaded {
		avg.Add(sec)
	}
}

// Stats reports the mean latency per operation, in seconds.
func (e *Engine) Stats() map[string]float64 {
	out := make(map[string]float64)
	e.latency.Range(func(op string, avg *utils.AvgVal) bool {
		out[op] = avg.Val()
		return true
	})
	return out
}

// lockKeys serializes operations on shared read-modify-write scopes: shelf
// ids, plus namespaced keys for an owner's shelf count ("owner/"), a tag's
// counters ("tag/"), an asset's membership list ("asset/") and the discovery
// pool counter ("pool"). Keys are locked in sorted order so two operations
// spanning the same set cannot deadlock.
func (e *Engine) lockKeys(keys ...string) func() {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)
	locked := make([]*sync.Mutex, 0, len(sorted))
	for _, k := range sorted {
		m, _ := e.locks.LoadOrStore(k, &sync.Mutex{})
		m.Lock()
		locked = append(locked, m)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// loadShelf returns the canonical in-memory shelf. Callers must clone before
// mutating.
func (e *Engine) loadShelf(shelfID string) (*shelf.Shelf, error) {
	if s, ok := e.cache.Get(shelfID); ok {
		return s, nil
	}
	data, closer, err := e.db.Get(shelfKey(shelfID))
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return nil, fmt.Errorf("%w: shelf %s", shelfdb_errors.ErrNotFound, shelfID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read shelf record")
	}
	s, err := shelf.DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	e.cache.Add(shelfID, s)
	return s, nil
}

func (e *Engine) putShelf(batch *pebble.Batch, s *shelf.Shelf) error {
	data, err := shelf.EncodeRecord(s)
	if err != nil {
		return err
	}
	return batch.Set(shelfKey(s.ID), data, e.WriteOptions())
}

// commit applies a fully validated change. A substrate failure here would
// leave the indexes contradicting the records, so it aborts the process
// instead of surfacing as an error.
func (e *Engine) commit(ctx context.Context, batch *pebble.Batch) {
	if err := batch.Commit(e.WriteOptions()); err != nil {
		e.log.ErrorCtx(ctx, "commit failed, aborting", "err", err)
		panic(fmt.Errorf("%w: %s", shelfdb_errors.ErrIntegrity, err))
	}
}

func requireUser(as shelf.UID) error {
	if !as.Valid() {
		return fmt.Errorf("%w: operation requires an authenticated identity", shelfdb_errors.ErrUnauthorized)
	}
	return nil
}
