// Package pomelo provides an embeddable record container: variable
// length byte records packed into fixed-size pages, addressed by stable
// opaque ids, with pluggable space-allocation strategies.
package pomelo

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/pomelodb/pomelo/pager"
	"github.com/pomelodb/pomelo/recman"
)

// ObjectID names one logical record for its entire lifetime.
type ObjectID = recman.ObjectID

// Errors surfaced by store operations. See the recman package for the
// full taxonomy.
var (
	ErrNotFound = recman.ErrNotFound
	ErrFormat   = recman.ErrFormat
	ErrCorrupt  = recman.ErrCorrupt
	ErrReadOnly = pager.ErrReadOnly
)

// Open opens the named file as a pomelo store and returns a DB instance
// for accessing it. If the file doesn't exist, it will be created and
// initialized if not in read-only mode. Pass ":memory:" to get an
// ephemeral in-memory store. If 'opts' is nil, default options are used.
func Open(filePath string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &defaultOptions
	}

	pgr, err := pager.Open(filePath, &pager.Options{
		PageSize: opts.PageSize,
		ReadOnly: opts.ReadOnly,
		FileMode: opts.FileMode,
	})
	if err != nil {
		return nil, err
	}

	rm, err := recman.New(pgr, recman.Options{
		Strategy: opts.Strategy.strategy(),
		Verify:   opts.Verify,
		MaxSlots: opts.MaxSlots,
		Log:      opts.Log,
	})
	if err != nil {
		_ = pgr.Close()
		return nil, err
	}

	db := &DB{
		mu:         &sync.RWMutex{},
		pgr:        pgr,
		rm:         rm,
		filePath:   filePath,
		strategy:   opts.Strategy,
		isReadOnly: opts.ReadOnly,
	}

	if opts.CacheSize > 0 {
		db.cache, err = ristretto.NewCache(&ristretto.Config[uint64, []byte]{
			NumCounters: 10_000,
			MaxCost:     opts.CacheSize,
			BufferItems: 64,
		})
		if err != nil {
			_ = pgr.Close()
			return nil, err
		}
	}

	return db, nil
}

// DB represents an instance of a pomelo store. All operations are
// serialized through an internal mutex; the underlying engine is
// single-threaded by contract.
type DB struct {
	// external configs
	filePath   string
	strategy   StrategyType
	isReadOnly bool

	// internal state
	mu    *sync.RWMutex
	pgr   pager.Pager
	rm    *recman.Manager
	cache *ristretto.Cache[uint64, []byte]
}

// Insert stores the payload and returns the id under which it can be
// read back. The id is stable for the lifetime of the record.
func (db *DB) Insert(data []byte) (ObjectID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isReadOnly {
		return 0, ErrReadOnly
	}
	return db.rm.Insert(data)
}

// Get returns the payload stored under id. Returns ErrNotFound if the
// id is unknown or the record has been removed.
func (db *DB) Get(id ObjectID) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.cache != nil {
		if data, found := db.cache.Get(uint64(id)); found {
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil
		}
	}

	data, err := db.rm.Get(id)
	if err != nil {
		return nil, err
	}

	if db.cache != nil {
		db.cache.Set(uint64(id), data, int64(len(data)))
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Update replaces the payload stored under id. The id remains valid
// regardless of whether the new payload is larger or smaller.
func (db *DB) Update(id ObjectID, data []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isReadOnly {
		return ErrReadOnly
	}

	if err := db.rm.Update(id, data); err != nil {
		return err
	}
	if db.cache != nil {
		db.cache.Del(uint64(id))
	}
	return nil
}

// Remove deletes the record stored under id and reclaims its space.
func (db *DB) Remove(id ObjectID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isReadOnly {
		return ErrReadOnly
	}

	if err := db.rm.Remove(id); err != nil {
		return err
	}
	if db.cache != nil {
		db.cache.Del(uint64(id))
	}
	return nil
}

// Reserve allocates an id with a placeholder slot and no payload. Use
// it when the payload depends on the id itself; the first Update
// populates the placeholder.
func (db *DB) Reserve() (ObjectID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isReadOnly {
		return 0, ErrReadOnly
	}
	return db.rm.Reserve()
}

// Size returns the number of live records in the store.
func (db *DB) Size() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.rm.Size()
}

// IDConverter returns the fixed-size binary codec for object ids.
func (db *DB) IDConverter() recman.IDConverter {
	return db.rm.IDConverter()
}

// Stats represents a point-in-time snapshot of store occupancy.
type Stats struct {
	recman.Stats
	Strategy string `json:"strategy"`
}

// Stats returns a snapshot of store occupancy.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return Stats{
		Stats:    db.rm.Stats(),
		Strategy: db.strategy.String(),
	}
}

// Close flushes and closes the underlying page file.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.cache != nil {
		db.cache.Close()
		db.cache = nil
	}

	_ = db.rm.Close()
	return db.pgr.Close()
}

func (db *DB) String() string {
	return fmt.Sprintf("DB{file='%s', strategy=%s, readOnly=%t}",
		db.filePath, db.strategy, db.isReadOnly)
}
