package pomelo

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
)

func testOptions() *Options {
	return &Options{
		PageSize:  4096,
		Strategy:  BestFit,
		Verify:    true,
		CacheSize: 1 << 20,
		FileMode:  0664,
		Log:       log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}},
	}
}

func TestDB_InMemory(t *testing.T) {
	db, err := Open(":memory:", testOptions())
	assert.NoError(t, err)
	defer db.Close()

	t.Run("round trip", func(t *testing.T) {
		id, err := db.Insert([]byte("hello"))
		assert.NoError(t, err)

		got, err := db.Get(id)
		assert.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
		assert.Equal(t, 1, db.Size())
	})

	t.Run("returned payloads are private copies", func(t *testing.T) {
		id, err := db.Insert([]byte("immutable"))
		assert.NoError(t, err)

		got, _ := db.Get(id)
		got[0] = 'X'

		again, err := db.Get(id)
		assert.NoError(t, err)
		assert.Equal(t, []byte("immutable"), again)
	})

	t.Run("stats name the strategy", func(t *testing.T) {
		st := db.Stats()
		assert.Equal(t, "best-fit", st.Strategy)
		assert.Equal(t, 4096, st.PageSize)
		assert.NotZero(t, st.Pages)
	})
}

func TestDB_CacheConsistency(t *testing.T) {
	db, err := Open(":memory:", testOptions())
	assert.NoError(t, err)
	defer db.Close()

	id, err := db.Insert([]byte("v1"))
	assert.NoError(t, err)

	// prime the cache, then drain the write buffer so the following
	// assertions see applied state, not in-flight sets
	_, err = db.Get(id)
	assert.NoError(t, err)
	db.cache.Wait()

	t.Run("update invalidates", func(t *testing.T) {
		assert.NoError(t, db.Update(id, []byte("v2")))
		db.cache.Wait()

		got, err := db.Get(id)
		assert.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("remove invalidates", func(t *testing.T) {
		_, err := db.Get(id) // cache v2
		assert.NoError(t, err)
		db.cache.Wait()

		assert.NoError(t, db.Remove(id))
		db.cache.Wait()

		_, err = db.Get(id)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDB_OnDisk(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(file, testOptions())
	assert.NoError(t, err)

	id, err := db.Insert([]byte("durable"))
	assert.NoError(t, err)
	assert.NoError(t, db.Close())

	t.Run("payloads survive reopen", func(t *testing.T) {
		db, err := Open(file, testOptions())
		assert.NoError(t, err)
		defer db.Close()

		got, err := db.Get(id)
		assert.NoError(t, err)
		assert.Equal(t, []byte("durable"), got)
	})

	t.Run("read-only mode rejects mutations", func(t *testing.T) {
		opts := testOptions()
		opts.ReadOnly = true

		db, err := Open(file, opts)
		assert.NoError(t, err)
		defer db.Close()

		got, err := db.Get(id)
		assert.NoError(t, err)
		assert.Equal(t, []byte("durable"), got)

		_, err = db.Insert([]byte("nope"))
		assert.ErrorIs(t, err, ErrReadOnly)
		assert.ErrorIs(t, db.Update(id, []byte("nope")), ErrReadOnly)
		assert.ErrorIs(t, db.Remove(id), ErrReadOnly)
		_, err = db.Reserve()
		assert.ErrorIs(t, err, ErrReadOnly)
	})
}

func TestDB_Reserve(t *testing.T) {
	db, err := Open(":memory:", testOptions())
	assert.NoError(t, err)
	defer db.Close()

	id, err := db.Reserve()
	assert.NoError(t, err)

	_, err = db.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// a payload that embeds its own id, the case Reserve exists for
	payload := append([]byte("self:"), db.IDConverter().MarshalID(id)...)
	assert.NoError(t, db.Update(id, payload))

	got, err := db.Get(id)
	assert.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpen_Defaults(t *testing.T) {
	db, err := Open(":memory:", nil)
	assert.NoError(t, err)
	defer db.Close()

	id, err := db.Insert([]byte("defaults"))
	assert.NoError(t, err)
	got, err := db.Get(id)
	assert.NoError(t, err)
	assert.Equal(t, []byte("defaults"), got)
	assert.Equal(t, "best-fit", db.Stats().Strategy)
}
