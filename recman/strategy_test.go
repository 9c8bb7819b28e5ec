package recman

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// pageWithFree builds a PageInfo with exactly 'free' free bytes.
func pageWithFree(free int) *PageInfo {
	pi := NewPageInfo(free+8+100, 8, 16)
	pi.recordInserted(0, 100, false)
	return pi
}

func TestFirstFit(t *testing.T) {

	t.Run("picks the lowest page id with enough room", func(t *testing.T) {
		f := NewFirstFit()
		f.PageInserted(3, pageWithFree(50))
		f.PageInserted(1, pageWithFree(10))
		f.PageInserted(2, pageWithFree(80))

		id, ok := f.PageForRecord(40)
		assert.True(t, ok)
		assert.Equal(t, PageID(2), id)

		id, ok = f.PageForRecord(5)
		assert.True(t, ok)
		assert.Equal(t, PageID(1), id)

		_, ok = f.PageForRecord(100)
		assert.False(t, ok)
	})

	t.Run("drops every reference on removal", func(t *testing.T) {
		f := NewFirstFit()
		info := pageWithFree(50)
		f.PageInserted(7, info)

		_, ok := f.PageForRecord(10)
		assert.True(t, ok)

		f.PageRemoved(7, info)
		_, ok = f.PageForRecord(0)
		assert.False(t, ok)
		assert.Empty(t, f.pages)
		assert.Empty(t, f.order)
	})

	t.Run("skips slot-exhausted pages", func(t *testing.T) {
		full := NewPageInfo(1000, 8, 1)
		full.recordInserted(0, 10, false)

		f := NewFirstFit()
		f.PageInserted(1, full)
		f.PageInserted(2, pageWithFree(500))

		id, ok := f.PageForRecord(10)
		assert.True(t, ok)
		assert.Equal(t, PageID(2), id)
	})
}

func TestBestFit(t *testing.T) {

	t.Run("minimizes leftover space", func(t *testing.T) {
		b := NewBestFit()
		b.PageInserted(1, pageWithFree(90))
		b.PageInserted(2, pageWithFree(45))
		b.PageInserted(3, pageWithFree(60))

		id, ok := b.PageForRecord(40)
		assert.True(t, ok)
		assert.Equal(t, PageID(2), id)

		id, ok = b.PageForRecord(50)
		assert.True(t, ok)
		assert.Equal(t, PageID(3), id)

		_, ok = b.PageForRecord(91)
		assert.False(t, ok)
	})

	t.Run("breaks leftover ties with the lower page id", func(t *testing.T) {
		b := NewBestFit()
		b.PageInserted(5, pageWithFree(30))
		b.PageInserted(2, pageWithFree(30))
		b.PageInserted(9, pageWithFree(30))

		id, ok := b.PageForRecord(10)
		assert.True(t, ok)
		assert.Equal(t, PageID(2), id)
	})

	t.Run("rankings follow live page state", func(t *testing.T) {
		b := NewBestFit()
		info := pageWithFree(100)
		b.PageInserted(1, info)

		// the record manager mutates the shared PageInfo and notifies
		info.recordInserted(1, 70, false)
		b.RecordUpdated(1, info, 1, 1, 70, 0)

		_, ok := b.PageForRecord(50)
		assert.False(t, ok)
		id, ok := b.PageForRecord(30)
		assert.True(t, ok)
		assert.Equal(t, PageID(1), id)
	})
}

func TestNextFit(t *testing.T) {

	t.Run("cursor roves over the page set", func(t *testing.T) {
		nf := NewNextFit()
		nf.PageInserted(0, pageWithFree(100))
		nf.PageInserted(1, pageWithFree(100))
		nf.PageInserted(2, pageWithFree(100))

		var got []PageID
		for i := 0; i < 4; i++ {
			id, ok := nf.PageForRecord(10)
			assert.True(t, ok)
			got = append(got, id)
		}
		assert.Equal(t, []PageID{0, 1, 2, 0}, got)
	})

	t.Run("wraps past pages without room", func(t *testing.T) {
		nf := NewNextFit()
		nf.PageInserted(0, pageWithFree(100))
		nf.PageInserted(1, pageWithFree(5))
		nf.PageInserted(2, pageWithFree(100))

		id, ok := nf.PageForRecord(50)
		assert.True(t, ok)
		assert.Equal(t, PageID(0), id)

		id, ok = nf.PageForRecord(50)
		assert.True(t, ok)
		assert.Equal(t, PageID(2), id)

		id, ok = nf.PageForRecord(50)
		assert.True(t, ok)
		assert.Equal(t, PageID(0), id)
	})

	t.Run("survives removal of the page under the cursor", func(t *testing.T) {
		nf := NewNextFit()
		a, b, c := pageWithFree(100), pageWithFree(100), pageWithFree(100)
		nf.PageInserted(0, a)
		nf.PageInserted(1, b)
		nf.PageInserted(2, c)

		id, ok := nf.PageForRecord(10)
		assert.True(t, ok)
		assert.Equal(t, PageID(0), id) // cursor now on page 1

		nf.PageRemoved(1, b)

		id, ok = nf.PageForRecord(10)
		assert.True(t, ok)
		assert.Equal(t, PageID(2), id)

		nf.PageRemoved(0, a)
		nf.PageRemoved(2, c)
		_, ok = nf.PageForRecord(10)
		assert.False(t, ok)
	})
}
